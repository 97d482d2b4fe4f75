package templatesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
)

// Repository определяет методы хранилища, нужные синхронизации.
type Repository interface {
	// ListActiveTemplatedCards возвращает активные карты с привязанным шаблоном.
	ListActiveTemplatedCards(ctx context.Context) ([]*models.Card, error)
	// ListBenefits возвращает все бенефиты карты.
	ListBenefits(ctx context.Context, cardID int) ([]models.Benefit, error)
	// ListBonusCategories возвращает все бонусные категории карты.
	ListBonusCategories(ctx context.Context, cardID int) ([]models.BonusCategory, error)
	// ApplySync применяет ChangeSet к карте одной транзакцией.
	ApplySync(ctx context.Context, cardID int, cs ChangeSet) error
}

// Catalog — каталог шаблонов, только на чтение.
type Catalog interface {
	Resolve(templateID string) (*models.Template, bool)
}

// Summary — итог прохода синхронизации по картам.
type Summary struct {
	CardsSynced            int      `json:"cards_synced"`
	CardsInitialized       int      `json:"cards_initialized"`
	CardsSkipped           int      `json:"cards_skipped"`
	BenefitsAdded          int      `json:"benefits_added"`
	BenefitsUpdated        int      `json:"benefits_updated"`
	BenefitsRetired        int      `json:"benefits_retired"`
	BonusCategoriesAdded   int      `json:"bonus_categories_added"`
	BonusCategoriesRemoved int      `json:"bonus_categories_removed"`
	Errors                 []string `json:"errors,omitempty"`
}

// Service применяет шаблонную синхронизацию к картам.
type Service struct {
	repo    Repository
	catalog Catalog
	log     *slog.Logger
	now     func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, catalog Catalog, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		log:     log,
		now:     time.Now,
	}
}

// SyncAll сверяет все активные шаблонные карты с текущими версиями
// шаблонов. Ошибка на одной карте записывается в итог и не прерывает
// обход остальных. Повторный запуск без изменений шаблонов — no-op.
func (s *Service) SyncAll(ctx context.Context) (*Summary, error) {
	const op = "templatesync.SyncAll"

	cards, err := s.repo.ListActiveTemplatedCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary := &Summary{}
	for _, card := range cards {
		if err := s.syncOne(ctx, card, summary); err != nil {
			s.log.Error("failed to sync card", slog.Int("card_id", card.ID), sl.Err(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("card %d: %v", card.ID, err))
		}
	}

	s.log.Info("template sync finished",
		slog.Int("synced", summary.CardsSynced),
		slog.Int("initialized", summary.CardsInitialized),
		slog.Int("skipped", summary.CardsSkipped),
		slog.Int("errors", len(summary.Errors)))
	return summary, nil
}

// SyncCard сверяет одну карту с её шаблоном и возвращает итог.
func (s *Service) SyncCard(ctx context.Context, card *models.Card) (*Summary, error) {
	const op = "templatesync.SyncCard"

	summary := &Summary{}
	if err := s.syncOne(ctx, card, summary); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return summary, nil
}

func (s *Service) syncOne(ctx context.Context, card *models.Card, summary *Summary) error {
	if !card.IsTemplated() {
		summary.CardsSkipped++
		return nil
	}

	tmpl, ok := s.catalog.Resolve(*card.TemplateID)
	if !ok {
		// Шаблон пропал из каталога — не фатально, карту не трогаем.
		s.log.Warn("template not found in catalog", slog.String("template_id", *card.TemplateID))
		summary.CardsSkipped++
		return nil
	}
	if tmpl.VersionID == "" {
		summary.CardsSkipped++
		return nil
	}

	benefits, err := s.repo.ListBenefits(ctx, card.ID)
	if err != nil {
		return err
	}
	categories, err := s.repo.ListBonusCategories(ctx, card.ID)
	if err != nil {
		return err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	cs := Diff(card, benefits, categories, tmpl, today)
	if cs.Skipped {
		summary.CardsSkipped++
		return nil
	}

	if err := s.repo.ApplySync(ctx, card.ID, cs); err != nil {
		return err
	}

	if cs.Initialized {
		summary.CardsInitialized++
	} else {
		summary.CardsSynced++
	}
	summary.BenefitsAdded += len(cs.AddBenefits)
	summary.BenefitsUpdated += len(cs.UpdateBenefits)
	summary.BenefitsRetired += len(cs.RetireBenefitIDs)
	summary.BonusCategoriesAdded += len(cs.AddCategories)
	summary.BonusCategoriesRemoved += len(cs.RemoveCategoryIDs)
	return nil
}
