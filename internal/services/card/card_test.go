package services_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pereloman/cardperks/internal/models"
	services "github.com/pereloman/cardperks/internal/services/card"
	"github.com/pereloman/cardperks/internal/services/feeschedule"
	"github.com/pereloman/cardperks/internal/services/templatesync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Мок для CardRepository
type CardRepoMock struct {
	mock.Mock
}

func (m *CardRepoMock) CreateCard(ctx context.Context, card models.Card) (int, error) {
	args := m.Called(ctx, card)
	return args.Int(0), args.Error(1)
}

func (m *CardRepoMock) ReadCard(ctx context.Context, id int) (*models.Card, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Card), args.Error(1)
}

func (m *CardRepoMock) ListCards(ctx context.Context, username string, limit, offset int) ([]*models.Card, error) {
	args := m.Called(ctx, username, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Card), args.Error(1)
}

func (m *CardRepoMock) UpdateCard(ctx context.Context, card models.Card, id int) (int, error) {
	args := m.Called(ctx, card, id)
	return args.Int(0), args.Error(1)
}

func (m *CardRepoMock) RemoveCard(ctx context.Context, id int) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *CardRepoMock) ListEvents(ctx context.Context, cardID int) ([]*models.Event, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Event), args.Error(1)
}

func (m *CardRepoMock) CreateEvent(ctx context.Context, event models.Event) (int, error) {
	args := m.Called(ctx, event)
	return args.Int(0), args.Error(1)
}

func (m *CardRepoMock) CreateBonus(ctx context.Context, bonus models.Bonus) (int, error) {
	args := m.Called(ctx, bonus)
	return args.Int(0), args.Error(1)
}

func (m *CardRepoMock) ApplyFeePlan(ctx context.Context, cardID int, plan feeschedule.Plan) error {
	args := m.Called(ctx, cardID, plan)
	return args.Error(0)
}

// Мок для Cache: всегда промах, операции успешны.
type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Get(_ context.Context, key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *CacheMock) Invalidate(_ context.Context, key string) error {
	args := m.Called(key)
	return args.Error(0)
}

// Мок для Catalog
type CatalogMock struct {
	mock.Mock
}

func (m *CatalogMock) Resolve(templateID string) (*models.Template, bool) {
	args := m.Called(templateID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*models.Template), args.Bool(1)
}

func (m *CatalogMock) VersionHistory(templateID string) []models.TemplateVersion {
	args := m.Called(templateID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.TemplateVersion)
}

// Мок для Syncer
type SyncerMock struct {
	mock.Mock
}

func (m *SyncerMock) SyncCard(ctx context.Context, card *models.Card) (*templatesync.Summary, error) {
	args := m.Called(ctx, card)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*templatesync.Summary), args.Error(1)
}

type fixture struct {
	repo    *CardRepoMock
	cache   *CacheMock
	catalog *CatalogMock
	syncer  *SyncerMock
	svc     *services.CardService
}

func newFixture() *fixture {
	f := &fixture{
		repo:    new(CardRepoMock),
		cache:   new(CacheMock),
		catalog: new(CatalogMock),
		syncer:  new(SyncerMock),
	}
	f.svc = services.NewCardService(f.repo, f.cache, f.catalog, f.syncer, slog.Default())
	return f
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func intPtr(v int) *int { return &v }

func TestCardService_Create_ManualCardWithOpenDate(t *testing.T) {
	f := newFixture()

	f.repo.On("CreateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
		return c.Username == "alice" && c.Name == "My Card" && c.Status == models.StatusActive
	})).Return(11, nil).Once()
	f.repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.CardID == 11 && e.Type == models.EventOpened && e.Date.Equal(date(2022, time.May, 10))
	})).Return(1, nil).Once()
	f.repo.On("ApplyFeePlan", mock.Anything, 11, mock.MatchedBy(func(p feeschedule.Plan) bool {
		// Карта открыта в 2022 — к сегодняшнему дню накопились годовщины.
		return len(p.Add) > 0 && p.DueDate != nil
	})).Return(nil).Once()

	id, err := f.svc.Create(context.Background(), "alice", models.DummyCard{
		Name:      "My Card",
		Issuer:    "Big Bank",
		OpenDate:  "2022-05-10",
		AnnualFee: intPtr(95),
	})
	require.NoError(t, err)
	assert.Equal(t, 11, id)
	f.repo.AssertExpectations(t)
}

func TestCardService_Create_TemplatedCardFillsDefaults(t *testing.T) {
	f := newFixture()

	fee := 550
	tmpl := &models.Template{
		ID:        "chase/sapphire_reserve",
		Name:      "Sapphire Reserve",
		Issuer:    "Chase",
		Network:   "visa",
		VersionID: "csr_2024_01",
		AnnualFee: &fee,
	}
	f.catalog.On("Resolve", "chase/sapphire_reserve").Return(tmpl, true).Once()
	f.repo.On("CreateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
		return c.Name == "Sapphire Reserve" &&
			c.Issuer == "Chase" &&
			c.AnnualFee != nil && *c.AnnualFee == 550 &&
			c.TemplateID != nil && *c.TemplateID == "chase/sapphire_reserve"
	})).Return(12, nil).Once()
	f.syncer.On("SyncCard", mock.Anything, mock.Anything).Return(&templatesync.Summary{}, nil).Once()

	id, err := f.svc.Create(context.Background(), "alice", models.DummyCard{
		TemplateID: "chase/sapphire_reserve",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, id)
	f.repo.AssertExpectations(t)
	f.syncer.AssertExpectations(t)
}

func TestCardService_Create_UnknownTemplate(t *testing.T) {
	f := newFixture()
	f.catalog.On("Resolve", "nope/missing").Return(nil, false).Once()

	_, err := f.svc.Create(context.Background(), "alice", models.DummyCard{
		TemplateID: "nope/missing",
		Name:       "X",
		Issuer:     "Y",
	})
	assert.ErrorIs(t, err, services.ErrTemplateNotFound)
}

func TestCardService_Create_SpendReminderValidation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), "alice", models.DummyCard{
		Name:                 "X",
		Issuer:               "Y",
		SpendReminderEnabled: true,
	})
	assert.ErrorIs(t, err, services.ErrSpendReminderFields)
}

func TestCardService_Close(t *testing.T) {
	tests := []struct {
		name      string
		card      *models.Card
		closeDate string
		wantErr   error
	}{
		{
			name:      "already closed",
			card:      &models.Card{ID: 1, Status: models.StatusClosed},
			closeDate: "2024-01-01",
			wantErr:   services.ErrAlreadyClosed,
		},
		{
			name: "close before open",
			card: &models.Card{
				ID: 1, Status: models.StatusActive,
				OpenDate: datePtr(2023, time.June, 1),
			},
			closeDate: "2023-01-01",
			wantErr:   services.ErrCloseBeforeOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.repo.On("ReadCard", mock.Anything, 1).Return(tt.card, nil).Once()

			err := f.svc.Close(context.Background(), 1, models.DummyCloseCard{CloseDate: tt.closeDate})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCardService_Close_Success(t *testing.T) {
	f := newFixture()

	fee := 95
	card := &models.Card{
		ID: 1, Status: models.StatusActive,
		OpenDate:             datePtr(2023, time.June, 1),
		AnnualFee:            &fee,
		SpendReminderEnabled: true,
		SpendRequirement:     intPtr(4000),
		SpendDeadline:        datePtr(2025, time.September, 1),
	}
	futureApprox := &models.Event{
		ID: 30, CardID: 1, Type: models.EventAnnualFeePosted,
		Date:   date(2026, time.June, 1),
		Detail: models.ApproximateFee{Fee: 95},
	}

	f.repo.On("ReadCard", mock.Anything, 1).Return(card, nil).Once()
	f.repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventClosed
	})).Return(2, nil).Once()
	f.repo.On("UpdateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
		// Вместе со статусом снимается напоминание о тратах.
		return c.Status == models.StatusClosed && c.CloseDate != nil &&
			!c.SpendReminderEnabled && c.SpendDeadline == nil
	}), 1).Return(1, nil).Once()
	f.repo.On("ListEvents", mock.Anything, 1).Return([]*models.Event{futureApprox}, nil).Once()
	f.repo.On("ApplyFeePlan", mock.Anything, 1, mock.MatchedBy(func(p feeschedule.Plan) bool {
		// Будущее автоматическое списание удаляется, дата очищается.
		return len(p.RemoveIDs) == 1 && p.RemoveIDs[0] == 30 && p.DueDate == nil
	})).Return(nil).Once()
	f.cache.On("Invalidate", "card:1").Return(nil).Once()

	err := f.svc.Close(context.Background(), 1, models.DummyCloseCard{CloseDate: "2025-03-01"})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestCardService_Reopen_NotClosed(t *testing.T) {
	f := newFixture()
	f.repo.On("ReadCard", mock.Anything, 1).
		Return(&models.Card{ID: 1, Status: models.StatusActive}, nil).Once()

	err := f.svc.Reopen(context.Background(), 1, "2025-01-01")
	assert.ErrorIs(t, err, services.ErrNotClosed)
}

func TestCardService_ProductChange(t *testing.T) {
	t.Run("closed card", func(t *testing.T) {
		f := newFixture()
		f.repo.On("ReadCard", mock.Anything, 1).
			Return(&models.Card{ID: 1, Status: models.StatusClosed}, nil).Once()

		err := f.svc.ProductChange(context.Background(), 1, models.DummyProductChange{
			NewName: "New", ChangeDate: "2025-01-01",
		})
		assert.ErrorIs(t, err, services.ErrClosedProductChange)
	})

	t.Run("same template", func(t *testing.T) {
		f := newFixture()
		tid := "chase/freedom"
		f.repo.On("ReadCard", mock.Anything, 1).
			Return(&models.Card{ID: 1, Status: models.StatusActive, TemplateID: &tid}, nil).Once()

		err := f.svc.ProductChange(context.Background(), 1, models.DummyProductChange{
			NewTemplateID: "chase/freedom", NewName: "New", ChangeDate: "2025-01-01",
		})
		assert.ErrorIs(t, err, services.ErrSameTemplate)
	})

	t.Run("success posts exact fee and resets version", func(t *testing.T) {
		f := newFixture()
		card := &models.Card{
			ID: 1, Status: models.StatusActive,
			Name:     "Old Card",
			OpenDate: datePtr(2023, time.June, 1),
		}
		f.repo.On("ReadCard", mock.Anything, 1).Return(card, nil).Once()
		f.repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
			return e.Type == models.EventProductChange && e.Description == "Old Card -> New Card"
		})).Return(7, nil).Once()
		f.repo.On("UpdateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
			return c.Name == "New Card" && c.TemplateVersionID == nil &&
				c.AnnualFee != nil && *c.AnnualFee == 195
		}), 1).Return(1, nil).Once()
		f.repo.On("ListEvents", mock.Anything, 1).Return([]*models.Event{}, nil).Once()
		f.repo.On("ApplyFeePlan", mock.Anything, 1, mock.MatchedBy(func(p feeschedule.Plan) bool {
			if len(p.Add) == 0 {
				return false
			}
			_, exact := p.Add[0].Detail.(models.ExactFee)
			return exact
		})).Return(nil).Once()
		f.cache.On("Invalidate", "card:1").Return(nil).Once()

		err := f.svc.ProductChange(context.Background(), 1, models.DummyProductChange{
			NewName:      "New Card",
			ChangeDate:   "2025-02-01",
			NewAnnualFee: intPtr(195),
		})
		require.NoError(t, err)
		f.repo.AssertExpectations(t)
	})

	t.Run("keeps current fee when none supplied", func(t *testing.T) {
		f := newFixture()
		card := &models.Card{
			ID: 1, Status: models.StatusActive,
			Name:      "Old Card",
			OpenDate:  datePtr(2023, time.June, 1),
			AnnualFee: intPtr(95),
		}
		f.repo.On("ReadCard", mock.Anything, 1).Return(card, nil).Once()
		f.repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
			return e.Type == models.EventProductChange
		})).Return(8, nil).Once()
		f.repo.On("UpdateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
			return c.AnnualFee != nil && *c.AnnualFee == 95
		}), 1).Return(1, nil).Once()
		f.repo.On("ListEvents", mock.Anything, 1).Return([]*models.Event{}, nil).Once()
		f.repo.On("ApplyFeePlan", mock.Anything, 1, mock.Anything).Return(nil).Once()
		f.cache.On("Invalidate", "card:1").Return(nil).Once()

		err := f.svc.ProductChange(context.Background(), 1, models.DummyProductChange{
			NewName:    "New Card",
			ChangeDate: "2025-02-01",
		})
		require.NoError(t, err)
		f.repo.AssertExpectations(t)
	})
}

func TestCardService_Update_StickyAnnualFeeDate(t *testing.T) {
	f := newFixture()

	existing := &models.Card{
		ID: 1, Status: models.StatusActive,
		Name: "Card", Issuer: "Bank",
		OpenDate:      datePtr(2023, time.June, 1),
		AnnualFeeDate: datePtr(2026, time.June, 1),
	}
	f.repo.On("ReadCard", mock.Anything, 1).Return(existing, nil).Once()
	f.repo.On("UpdateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
		return c.AnnualFeeUserModified && c.AnnualFeeDate.Equal(date(2026, time.July, 15))
	}), 1).Return(1, nil).Once()
	f.cache.On("Invalidate", "card:1").Return(nil).Once()

	_, err := f.svc.Update(context.Background(), 1, models.DummyCard{
		Name:          "Card",
		Issuer:        "Bank",
		AnnualFeeDate: "2026-07-15",
	})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestCardService_Update_ManualFeeMarksSticky(t *testing.T) {
	f := newFixture()

	existing := &models.Card{
		ID: 1, Status: models.StatusActive,
		Name: "Card", Issuer: "Bank",
		OpenDate:  datePtr(2023, time.June, 1),
		AnnualFee: intPtr(95),
	}
	f.repo.On("ReadCard", mock.Anything, 1).Return(existing, nil).Once()
	f.repo.On("UpdateCard", mock.Anything, mock.MatchedBy(func(c models.Card) bool {
		return c.AnnualFeeUserModified && c.AnnualFee != nil && *c.AnnualFee == 550
	}), 1).Return(1, nil).Once()
	f.cache.On("Invalidate", "card:1").Return(nil).Once()

	_, err := f.svc.Update(context.Background(), 1, models.DummyCard{
		Name:      "Card",
		Issuer:    "Bank",
		AnnualFee: intPtr(550),
	})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestCardService_Update_OpenDateBackfill(t *testing.T) {
	f := newFixture()

	existing := &models.Card{
		ID: 1, Status: models.StatusActive,
		Name: "Card", Issuer: "Bank",
	}
	f.repo.On("ReadCard", mock.Anything, 1).Return(existing, nil).Once()
	f.repo.On("UpdateCard", mock.Anything, mock.Anything, 1).Return(1, nil).Once()
	f.cache.On("Invalidate", "card:1").Return(nil).Once()
	f.repo.On("CreateEvent", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventOpened && e.Date.Equal(date(2022, time.March, 1))
	})).Return(3, nil).Once()
	f.repo.On("ListEvents", mock.Anything, 1).Return([]*models.Event{}, nil).Once()
	f.repo.On("ApplyFeePlan", mock.Anything, 1, mock.MatchedBy(func(p feeschedule.Plan) bool {
		return len(p.Add) > 0
	})).Return(nil).Once()

	_, err := f.svc.Update(context.Background(), 1, models.DummyCard{
		Name:      "Card",
		Issuer:    "Bank",
		OpenDate:  "2022-03-01",
		AnnualFee: intPtr(95),
	})
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestCardService_FiveTwentyFour(t *testing.T) {
	f := newFixture()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	inWindow := today.AddDate(0, -3, 0)
	inWindowEarlier := today.AddDate(0, -20, 0)
	outOfWindow := today.AddDate(0, -30, 0)

	f.repo.On("ListCards", mock.Anything, "alice", mock.Anything, 0).Return([]*models.Card{
		{ID: 1, Name: "Recent", OpenDate: &inWindow},
		{ID: 2, Name: "Aged Out", OpenDate: &outOfWindow},
		{ID: 3, Name: "No Open Date"},
		{ID: 4, Name: "Earlier", OpenDate: &inWindowEarlier},
	}, nil).Once()

	res, err := f.svc.FiveTwentyFour(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "green", res.Status)
	// Отсортированы по дате открытия, выпадение через 24 месяца.
	require.Len(t, res.Dropoffs, 2)
	assert.Equal(t, 4, res.Dropoffs[0].CardID)
	assert.Equal(t, 1, res.Dropoffs[1].CardID)
	assert.True(t, res.Dropoffs[1].DropoffDate.Equal(inWindow.AddDate(2, 0, 0)))
	f.repo.AssertExpectations(t)
}

func TestCardService_Read_CacheHit(t *testing.T) {
	f := newFixture()

	f.cache.On("Get", "card:5", mock.Anything).
		Run(func(args mock.Arguments) {
			ptr := args.Get(1).(**models.Card)
			*ptr = &models.Card{ID: 5, Name: "Cached"}
		}).Return(true, nil).Once()

	card, err := f.svc.Read(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Cached", card.Name)
	f.repo.AssertNotCalled(t, "ReadCard")
}

func TestCardService_Read_CacheMiss(t *testing.T) {
	f := newFixture()

	f.cache.On("Get", "card:5", mock.Anything).Return(false, nil).Once()
	f.repo.On("ReadCard", mock.Anything, 5).
		Return(&models.Card{ID: 5, Name: "FromDB"}, nil).Once()
	f.cache.On("Set", "card:5", mock.Anything, time.Hour).Return(nil).Once()

	card, err := f.svc.Read(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "FromDB", card.Name)
	f.repo.AssertExpectations(t)
}

func TestCardService_Remove(t *testing.T) {
	f := newFixture()

	f.cache.On("Invalidate", "card:9").Return(nil).Once()
	f.repo.On("RemoveCard", mock.Anything, 9).Return(1, nil).Once()

	count, err := f.svc.Remove(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
