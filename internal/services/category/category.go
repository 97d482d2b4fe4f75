// Package services содержит бизнес-логику бонусных категорий трат.
package services

import (
	"context"
	"log/slog"

	"github.com/pereloman/cardperks/internal/models"
)

// CategoryRepository определяет методы для работы с категориями в хранилище.
type CategoryRepository interface {
	// CreateBonusCategory добавляет категорию и возвращает её ID.
	CreateBonusCategory(ctx context.Context, category models.BonusCategory) (int, error)
	// ListBonusCategories возвращает все категории карты.
	ListBonusCategories(ctx context.Context, cardID int) ([]models.BonusCategory, error)
	// UpdateBonusCategory обновляет категорию по ID.
	UpdateBonusCategory(ctx context.Context, category models.BonusCategory, id int) (int, error)
	// RemoveBonusCategory удаляет категорию по ID.
	RemoveBonusCategory(ctx context.Context, id int) (int, error)
}

// CategoryService реализует бизнес-логику бонусных категорий.
type CategoryService struct {
	repo CategoryRepository
	log  *slog.Logger
}

// NewCategoryService создает новый экземпляр CategoryService.
func NewCategoryService(repo CategoryRepository, log *slog.Logger) *CategoryService {
	return &CategoryService{
		repo: repo,
		log:  log,
	}
}

// Create добавляет пользовательскую категорию к карте и возвращает её ID.
func (s *CategoryService) Create(ctx context.Context, cardID int, req models.DummyBonusCategory) (int, error) {
	category := models.BonusCategory{
		CardID:     cardID,
		Category:   req.Category,
		Multiplier: req.Multiplier,
		PortalOnly: req.PortalOnly,
		Cap:        req.Cap,
	}
	id, err := s.repo.CreateBonusCategory(ctx, category)
	if err != nil {
		return 0, err
	}
	s.log.Info("created new bonus category", slog.Int("id", id), slog.Int("card_id", cardID))
	return id, nil
}

// List возвращает все категории карты.
func (s *CategoryService) List(ctx context.Context, cardID int) ([]models.BonusCategory, error) {
	return s.repo.ListBonusCategories(ctx, cardID)
}

// Update обновляет пользовательские поля категории.
func (s *CategoryService) Update(ctx context.Context, id int, req models.DummyBonusCategory) (int, error) {
	category := models.BonusCategory{
		Category:   req.Category,
		Multiplier: req.Multiplier,
		PortalOnly: req.PortalOnly,
		Cap:        req.Cap,
	}
	return s.repo.UpdateBonusCategory(ctx, category, id)
}

// Remove удаляет категорию по ID.
func (s *CategoryService) Remove(ctx context.Context, id int) (int, error) {
	return s.repo.RemoveBonusCategory(ctx, id)
}
