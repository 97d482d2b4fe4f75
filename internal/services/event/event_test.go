package services_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pereloman/cardperks/internal/models"
	services "github.com/pereloman/cardperks/internal/services/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Мок для EventRepository
type EventRepoMock struct {
	mock.Mock
}

func (m *EventRepoMock) CreateEvent(ctx context.Context, event models.Event) (int, error) {
	args := m.Called(ctx, event)
	return args.Int(0), args.Error(1)
}

func (m *EventRepoMock) ReadEvent(ctx context.Context, id int) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *EventRepoMock) ListEvents(ctx context.Context, cardID int) ([]*models.Event, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Event), args.Error(1)
}

func (m *EventRepoMock) UpdateEvent(ctx context.Context, event models.Event, id int) (int, error) {
	args := m.Called(ctx, event, id)
	return args.Int(0), args.Error(1)
}

func (m *EventRepoMock) RemoveEvent(ctx context.Context, id int) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *EventRepoMock) ReadCard(ctx context.Context, id int) (*models.Card, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Card), args.Error(1)
}

func (m *EventRepoMock) UpdateAnnualFeeDate(ctx context.Context, cardID int, date *time.Time) error {
	args := m.Called(ctx, cardID, date)
	return args.Error(0)
}

func (m *EventRepoMock) CreateBonus(ctx context.Context, bonus models.Bonus) (int, error) {
	args := m.Called(ctx, bonus)
	return args.Int(0), args.Error(1)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func intPtr(v int) *int { return &v }

func TestEventService_Create_FeePostingBecomesExact(t *testing.T) {
	repo := new(EventRepoMock)
	svc := services.NewEventService(repo, slog.Default())

	card := &models.Card{ID: 4, Status: models.StatusActive, OpenDate: datePtr(2023, time.June, 1)}
	feeEvent := &models.Event{
		ID: 1, CardID: 4, Type: models.EventAnnualFeePosted,
		Date:   date(2025, time.June, 1),
		Detail: models.ExactFee{Fee: 95},
	}

	repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		d, ok := e.Detail.(models.ExactFee)
		return ok && d.Fee == 95 && e.Type == models.EventAnnualFeePosted
	})).Return(1, nil).Once()
	repo.On("ReadCard", mock.Anything, 4).Return(card, nil).Once()
	repo.On("ListEvents", mock.Anything, 4).Return([]*models.Event{feeEvent}, nil).Once()
	// Последнее списание точное — следующая дата ровно через год.
	repo.On("UpdateAnnualFeeDate", mock.Anything, 4, mock.MatchedBy(func(d *time.Time) bool {
		return d != nil && d.Equal(date(2026, time.June, 1))
	})).Return(nil).Once()

	id, err := svc.Create(context.Background(), 4, models.DummyEvent{
		Type: models.EventAnnualFeePosted,
		Date: "2025-06-01",
		Fee:  intPtr(95),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	repo.AssertExpectations(t)
}

func TestEventService_Create_FeePostingWithoutFee(t *testing.T) {
	repo := new(EventRepoMock)
	svc := services.NewEventService(repo, slog.Default())

	_, err := svc.Create(context.Background(), 4, models.DummyEvent{
		Type: models.EventAnnualFeePosted,
		Date: "2025-06-01",
	})
	assert.ErrorIs(t, err, services.ErrFeeRequired)
}

func TestEventService_Create_UserModifiedDateUntouched(t *testing.T) {
	repo := new(EventRepoMock)
	svc := services.NewEventService(repo, slog.Default())

	card := &models.Card{ID: 4, Status: models.StatusActive, AnnualFeeUserModified: true}
	repo.On("CreateEvent", mock.Anything, mock.Anything).Return(1, nil).Once()
	repo.On("ReadCard", mock.Anything, 4).Return(card, nil).Once()

	_, err := svc.Create(context.Background(), 4, models.DummyEvent{
		Type: models.EventOther,
		Date: "2025-06-01",
	})
	require.NoError(t, err)
	repo.AssertNotCalled(t, "UpdateAnnualFeeDate")
}

func TestEventService_Remove_RecomputesDueDate(t *testing.T) {
	repo := new(EventRepoMock)
	svc := services.NewEventService(repo, slog.Default())

	existing := &models.Event{ID: 9, CardID: 4, Type: models.EventAnnualFeePosted}
	card := &models.Card{ID: 4, Status: models.StatusActive, OpenDate: datePtr(2023, time.June, 1)}

	repo.On("ReadEvent", mock.Anything, 9).Return(existing, nil).Once()
	repo.On("RemoveEvent", mock.Anything, 9).Return(1, nil).Once()
	repo.On("ReadCard", mock.Anything, 4).Return(card, nil).Once()
	repo.On("ListEvents", mock.Anything, 4).Return([]*models.Event{}, nil).Once()
	// Журнал пуст — дата считается от даты открытия.
	repo.On("UpdateAnnualFeeDate", mock.Anything, 4, mock.MatchedBy(func(d *time.Time) bool {
		return d != nil && d.After(time.Now().UTC())
	})).Return(nil).Once()

	count, err := svc.Remove(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	repo.AssertExpectations(t)
}

func TestEventService_RecordRetentionOffer(t *testing.T) {
	repo := new(EventRepoMock)
	svc := services.NewEventService(repo, slog.Default())

	repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventRetentionOffer && e.CardID == 4
	})).Return(15, nil).Once()
	repo.On("CreateBonus", mock.Anything, mock.MatchedBy(func(b models.Bonus) bool {
		return b.Source == models.BonusRetention &&
			b.Amount == 20000 &&
			b.EventID != nil && *b.EventID == 15 &&
			b.SpendRequirement != nil && *b.SpendRequirement == 4000
	})).Return(3, nil).Once()

	id, err := svc.RecordRetentionOffer(context.Background(), 4, models.DummyRetentionOffer{
		Date:             "2025-05-01",
		Description:      "called retention line",
		BonusAmount:      intPtr(20000),
		BonusType:        "points",
		SpendRequirement: intPtr(4000),
		SpendDeadline:    "2025-08-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 15, id)
	repo.AssertExpectations(t)
}

func TestEventService_RecordRetentionOffer_NoBonus(t *testing.T) {
	repo := new(EventRepoMock)
	svc := services.NewEventService(repo, slog.Default())

	repo.On("CreateEvent", mock.Anything, mock.Anything).Return(16, nil).Once()

	id, err := svc.RecordRetentionOffer(context.Background(), 4, models.DummyRetentionOffer{
		Date:        "2025-05-01",
		Description: "offer declined",
	})
	require.NoError(t, err)
	assert.Equal(t, 16, id)
	repo.AssertNotCalled(t, "CreateBonus")
}
