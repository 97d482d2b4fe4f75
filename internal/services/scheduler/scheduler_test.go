package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pereloman/cardperks/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindCardsWithUpcomingFee(ctx context.Context, leadDays int) ([]*models.CardFeeInfo, error) {
	args := m.Called(ctx, leadDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CardFeeInfo), args.Error(1)
}

func (m *MockRepository) ListBenefitReminderCandidates(ctx context.Context) ([]*models.BenefitReminderInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BenefitReminderInfo), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSchedulerService_publishAnnualFeeReminders(t *testing.T) {
	feeInfo := &models.CardFeeInfo{
		Email:    "test@example.com",
		Username: "testuser",
		CardID:   1,
		CardName: "Sapphire Reserve",
		DueDate:  time.Now().AddDate(0, 0, 10),
		Fee:      550,
	}

	tests := []struct {
		name       string
		setupMocks func(*MockRepository)
	}{
		{
			name: "success - found upcoming fees",
			setupMocks: func(r *MockRepository) {
				r.On("FindCardsWithUpcomingFee", mock.Anything, 30).Return([]*models.CardFeeInfo{feeInfo}, nil).Once()
				// Не ожидаем Publish, так как канал nil
			},
		},
		{
			name: "success - no upcoming fees",
			setupMocks: func(r *MockRepository) {
				r.On("FindCardsWithUpcomingFee", mock.Anything, 30).Return([]*models.CardFeeInfo{}, nil).Once()
			},
		},
		{
			name: "repository error",
			setupMocks: func(r *MockRepository) {
				r.On("FindCardsWithUpcomingFee", mock.Anything, 30).Return(nil, errors.New("db error")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			service := NewSchedulerService(repo, 30, newNoopLogger())

			tt.setupMocks(repo)

			// Метод не возвращает ошибку, только логирует.
			service.publishAnnualFeeReminders(context.Background(), nil)

			repo.AssertExpectations(t)
		})
	}
}

func TestSchedulerService_SelectExpiring(t *testing.T) {
	now := time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC)

	candidates := []*models.BenefitReminderInfo{
		{
			// Календарный месяц кончается 31 марта — внутри 30-дневного окна.
			BenefitID: 1, BenefitName: "Dining credit",
			Amount: 10, AmountUsed: 3,
			Frequency: models.FrequencyMonthly, ResetType: models.ResetCalendar,
		},
		{
			// Календарный год кончается 31 декабря — за пределами окна.
			BenefitID: 2, BenefitName: "Travel credit",
			Amount: 300, AmountUsed: 0,
			Frequency: models.FrequencyAnnual, ResetType: models.ResetCalendar,
		},
		{
			// Cardiversary-год от 10 апреля: окно кончается 9 апреля.
			BenefitID: 3, BenefitName: "Free night",
			Amount: 1, AmountUsed: 0,
			Frequency: models.FrequencyAnnual, ResetType: models.ResetCardiversary,
			CardOpenDate: datePtr(2023, time.April, 10),
		},
	}

	repo := new(MockRepository)
	service := NewSchedulerService(repo, 30, newNoopLogger())
	service.now = func() time.Time { return now }

	expiring := service.SelectExpiring(candidates)

	assert.Len(t, expiring, 2)
	assert.Equal(t, 1, expiring[0].BenefitID)
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), expiring[0].PeriodEnd)
	assert.Equal(t, 7, expiring[0].Remaining())
	assert.Equal(t, 3, expiring[1].BenefitID)
	assert.Equal(t, time.Date(2025, time.April, 9, 0, 0, 0, 0, time.UTC), expiring[1].PeriodEnd)
}

func TestSchedulerService_SelectExpiring_Empty(t *testing.T) {
	repo := new(MockRepository)
	service := NewSchedulerService(repo, 30, newNoopLogger())

	assert.Empty(t, service.SelectExpiring(nil))
}

func TestSchedulerService_NewSchedulerService(t *testing.T) {
	repo := new(MockRepository)
	logger := newNoopLogger()

	service := NewSchedulerService(repo, 30, logger)

	assert.NotNil(t, service)
	assert.Equal(t, repo, service.repo)
	assert.Equal(t, 30, service.leadDays)
	assert.Equal(t, logger, service.log)
}
