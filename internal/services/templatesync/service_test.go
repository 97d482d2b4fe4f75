package templatesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pereloman/cardperks/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ListActiveTemplatedCards(ctx context.Context) ([]*models.Card, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Card), args.Error(1)
}
func (m *RepoMock) ListBenefits(ctx context.Context, cardID int) ([]models.Benefit, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Benefit), args.Error(1)
}
func (m *RepoMock) ListBonusCategories(ctx context.Context, cardID int) ([]models.BonusCategory, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BonusCategory), args.Error(1)
}
func (m *RepoMock) ApplySync(ctx context.Context, cardID int, cs ChangeSet) error {
	return m.Called(ctx, cardID, cs).Error(0)
}

type CatalogMock struct{ mock.Mock }

func (m *CatalogMock) Resolve(templateID string) (*models.Template, bool) {
	args := m.Called(templateID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*models.Template), args.Bool(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncAll_SyncsOutdatedCard(t *testing.T) {
	repo := new(RepoMock)
	catalog := new(CatalogMock)
	svc := New(repo, catalog, discardLogger())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	card := templatedCard("csr_2023_v1")
	tmpl := baseTemplate("csr_2025_v2")
	tmpl.AnnualFee = intPtr(795)

	repo.On("ListActiveTemplatedCards", mock.Anything).Return([]*models.Card{card}, nil)
	catalog.On("Resolve", "chase/sapphire_reserve").Return(tmpl, true)
	repo.On("ListBenefits", mock.Anything, 1).Return([]models.Benefit{}, nil)
	repo.On("ListBonusCategories", mock.Anything, 1).Return([]models.BonusCategory{}, nil)
	repo.On("ApplySync", mock.Anything, 1, mock.MatchedBy(func(cs ChangeSet) bool {
		return cs.NewVersion == "csr_2025_v2" && cs.NewAnnualFee != nil
	})).Return(nil)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CardsSynced)
	assert.Equal(t, 1, summary.BenefitsAdded) // Travel Credit из шаблона
	assert.Empty(t, summary.Errors)
	repo.AssertExpectations(t)
}

func TestSyncAll_SkipsMissingTemplate(t *testing.T) {
	repo := new(RepoMock)
	catalog := new(CatalogMock)
	svc := New(repo, catalog, discardLogger())

	card := templatedCard("csr_2023_v1")
	repo.On("ListActiveTemplatedCards", mock.Anything).Return([]*models.Card{card}, nil)
	catalog.On("Resolve", "chase/sapphire_reserve").Return(nil, false)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CardsSkipped)
	assert.Zero(t, summary.CardsSynced)
	repo.AssertNotCalled(t, "ApplySync", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncAll_SkipsUnversionedTemplate(t *testing.T) {
	repo := new(RepoMock)
	catalog := new(CatalogMock)
	svc := New(repo, catalog, discardLogger())

	card := templatedCard("csr_2023_v1")
	repo.On("ListActiveTemplatedCards", mock.Anything).Return([]*models.Card{card}, nil)
	catalog.On("Resolve", "chase/sapphire_reserve").Return(baseTemplate(""), true)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CardsSkipped)
}

func TestSyncAll_SecondRunIsNoop(t *testing.T) {
	repo := new(RepoMock)
	catalog := new(CatalogMock)
	svc := New(repo, catalog, discardLogger())

	// Карта уже проштампована текущей версией.
	card := templatedCard("csr_2025_v2")
	repo.On("ListActiveTemplatedCards", mock.Anything).Return([]*models.Card{card}, nil)
	catalog.On("Resolve", "chase/sapphire_reserve").Return(baseTemplate("csr_2025_v2"), true)
	repo.On("ListBenefits", mock.Anything, 1).Return([]models.Benefit{}, nil)
	repo.On("ListBonusCategories", mock.Anything, 1).Return([]models.BonusCategory{}, nil)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CardsSkipped)
	assert.Zero(t, summary.CardsSynced+summary.CardsInitialized)
	assert.Zero(t, summary.BenefitsAdded+summary.BenefitsUpdated+summary.BenefitsRetired)
	repo.AssertNotCalled(t, "ApplySync", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncAll_OneFailureDoesNotAbortBatch(t *testing.T) {
	repo := new(RepoMock)
	catalog := new(CatalogMock)
	svc := New(repo, catalog, discardLogger())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	bad := templatedCard("csr_2023_v1")
	good := templatedCard("csr_2023_v1")
	good.ID = 2

	repo.On("ListActiveTemplatedCards", mock.Anything).Return([]*models.Card{bad, good}, nil)
	catalog.On("Resolve", "chase/sapphire_reserve").Return(baseTemplate("csr_2025_v2"), true)
	repo.On("ListBenefits", mock.Anything, 1).Return(nil, errors.New("connection reset"))
	repo.On("ListBenefits", mock.Anything, 2).Return([]models.Benefit{}, nil)
	repo.On("ListBonusCategories", mock.Anything, 2).Return([]models.BonusCategory{}, nil)
	repo.On("ApplySync", mock.Anything, 2, mock.Anything).Return(nil)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CardsSynced)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "card 1")
}

func TestSyncCard_InitializesFirstContact(t *testing.T) {
	repo := new(RepoMock)
	catalog := new(CatalogMock)
	svc := New(repo, catalog, discardLogger())
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	card := templatedCard("")
	catalog.On("Resolve", "chase/sapphire_reserve").Return(baseTemplate("csr_2025_v2"), true)
	repo.On("ListBenefits", mock.Anything, 1).Return([]models.Benefit{
		{ID: 10, CardID: 1, Name: "Travel Credit", Type: models.BenefitCredit},
	}, nil)
	repo.On("ListBonusCategories", mock.Anything, 1).Return([]models.BonusCategory{}, nil)
	repo.On("ApplySync", mock.Anything, 1, mock.MatchedBy(func(cs ChangeSet) bool {
		return cs.Initialized && len(cs.TagBenefitIDs) == 1
	})).Return(nil)

	summary, err := svc.SyncCard(context.Background(), card)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CardsInitialized)
	repo.AssertExpectations(t)
}
