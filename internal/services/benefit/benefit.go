// Package services содержит бизнес-логику для управления бенефитами карт.
//
// Периоды бенефитов обновляются лениво: при каждом чтении сервис
// сравнивает сохранённое начало периода с текущим окном и при
// устаревании сбрасывает использование в ноль. Фоновых задач для
// этого не требуется.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pereloman/cardperks/internal/lib/period"
	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
)

// ErrUsageExceedsAmount возвращается, когда использование превышает номинал бенефита.
var ErrUsageExceedsAmount = errors.New("amount_used cannot exceed benefit amount")

// BenefitRepository определяет методы для работы с бенефитами в хранилище.
type BenefitRepository interface {
	// CreateBenefit добавляет новый бенефит и возвращает его ID.
	CreateBenefit(ctx context.Context, benefit models.Benefit) (int, error)
	// ReadBenefit возвращает бенефит по ID.
	ReadBenefit(ctx context.Context, id int) (*models.Benefit, error)
	// ListBenefits возвращает все бенефиты карты.
	ListBenefits(ctx context.Context, cardID int) ([]models.Benefit, error)
	// UpdateBenefit обновляет данные бенефита по ID.
	UpdateBenefit(ctx context.Context, benefit models.Benefit, id int) (int, error)
	// UpdateBenefitUsage обновляет использование бенефита.
	UpdateBenefitUsage(ctx context.Context, id, amountUsed int) (int, error)
	// RefreshBenefitPeriod переводит бенефит в новый период, сбрасывая использование.
	RefreshBenefitPeriod(ctx context.Context, id int, periodStart time.Time) error
	// RemoveBenefit удаляет бенефит по ID.
	RemoveBenefit(ctx context.Context, id int) (int, error)
	// ReadCard возвращает карту по ID.
	ReadCard(ctx context.Context, id int) (*models.Card, error)
}

// BenefitService реализует бизнес-логику работы с бенефитами.
type BenefitService struct {
	repo BenefitRepository
	log  *slog.Logger
	now  func() time.Time
}

// NewBenefitService создает новый экземпляр BenefitService.
func NewBenefitService(repo BenefitRepository, log *slog.Logger) *BenefitService {
	return &BenefitService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Create добавляет пользовательский бенефит к карте и возвращает его ID.
// Начало периода сразу выставляется в текущее окно.
func (s *BenefitService) Create(ctx context.Context, cardID int, req models.DummyBenefit) (int, error) {
	card, err := s.repo.ReadCard(ctx, cardID)
	if err != nil {
		return 0, err
	}

	benefitType := req.Type
	if benefitType == "" {
		benefitType = models.BenefitCredit
	}

	start, _ := period.Current(req.Frequency, req.ResetType, card.OpenDate, s.now().UTC())
	benefit := models.Benefit{
		CardID:      cardID,
		Name:        req.Name,
		Amount:      req.Amount,
		Frequency:   req.Frequency,
		ResetType:   req.ResetType,
		Type:        benefitType,
		PeriodStart: &start,
	}
	if req.Notes != "" {
		benefit.Notes = &req.Notes
	}

	id, err := s.repo.CreateBenefit(ctx, benefit)
	if err != nil {
		return 0, err
	}
	s.log.Info("created new benefit", slog.Int("id", id), slog.Int("card_id", cardID))
	return id, nil
}

// List возвращает бенефиты карты, предварительно освежив устаревшие периоды.
func (s *BenefitService) List(ctx context.Context, cardID int) ([]models.Benefit, error) {
	card, err := s.repo.ReadCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	benefits, err := s.repo.ListBenefits(ctx, cardID)
	if err != nil {
		return nil, err
	}
	for i := range benefits {
		if err := s.refreshIfStale(ctx, &benefits[i], card.OpenDate); err != nil {
			s.log.Warn("failed to refresh benefit period",
				slog.Int("benefit_id", benefits[i].ID), sl.Err(err))
		}
	}
	return benefits, nil
}

// Read возвращает бенефит по ID, предварительно освежив период.
func (s *BenefitService) Read(ctx context.Context, id int) (*models.Benefit, error) {
	benefit, err := s.repo.ReadBenefit(ctx, id)
	if err != nil {
		return nil, err
	}
	card, err := s.repo.ReadCard(ctx, benefit.CardID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshIfStale(ctx, benefit, card.OpenDate); err != nil {
		return nil, err
	}
	return benefit, nil
}

// Update обновляет пользовательские поля бенефита.
func (s *BenefitService) Update(ctx context.Context, id int, req models.DummyBenefit) (int, error) {
	existing, err := s.repo.ReadBenefit(ctx, id)
	if err != nil {
		return 0, err
	}

	existing.Name = req.Name
	existing.Amount = req.Amount
	existing.Frequency = req.Frequency
	existing.ResetType = req.ResetType
	if req.Type != "" {
		existing.Type = req.Type
	}
	if req.Notes != "" {
		existing.Notes = &req.Notes
	} else {
		existing.Notes = nil
	}

	return s.repo.UpdateBenefit(ctx, *existing, id)
}

// UpdateUsage записывает использование бенефита в текущем периоде.
// Перед записью период освежается, чтобы использование не попало
// в уже закончившееся окно.
func (s *BenefitService) UpdateUsage(ctx context.Context, id, amountUsed int) (int, error) {
	benefit, err := s.repo.ReadBenefit(ctx, id)
	if err != nil {
		return 0, err
	}
	if amountUsed > benefit.Amount {
		return 0, fmt.Errorf("%w: %d > %d", ErrUsageExceedsAmount, amountUsed, benefit.Amount)
	}

	card, err := s.repo.ReadCard(ctx, benefit.CardID)
	if err != nil {
		return 0, err
	}
	if err := s.refreshIfStale(ctx, benefit, card.OpenDate); err != nil {
		return 0, err
	}

	return s.repo.UpdateBenefitUsage(ctx, id, amountUsed)
}

// Remove удаляет бенефит по ID.
func (s *BenefitService) Remove(ctx context.Context, id int) (int, error) {
	return s.repo.RemoveBenefit(ctx, id)
}

// refreshIfStale сравнивает сохранённое начало периода с текущим окном
// и при отставании переводит бенефит в новый период. Retired-бенефиты
// не трогаются: их история заморожена.
func (s *BenefitService) refreshIfStale(ctx context.Context, benefit *models.Benefit, anchor *time.Time) error {
	if benefit.Retired {
		return nil
	}

	start, _ := period.Current(benefit.Frequency, benefit.ResetType, anchor, s.now().UTC())
	if benefit.PeriodStart != nil && !benefit.PeriodStart.Before(start) {
		return nil
	}

	if err := s.repo.RefreshBenefitPeriod(ctx, benefit.ID, start); err != nil {
		return err
	}
	benefit.PeriodStart = &start
	benefit.AmountUsed = 0
	s.log.Info("benefit period rolled over",
		slog.Int("benefit_id", benefit.ID),
		slog.String("period_start", start.Format("2006-01-02")))
	return nil
}
