// Package services содержит бизнес-логику журнала событий карты.
// Журнал append-only по духу: пользователь может исправлять свои
// записи, но каждая мутация пересчитывает дату следующего списания
// годовой платы по фактическому содержимому журнала.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pereloman/cardperks/internal/models"
	"github.com/pereloman/cardperks/internal/services/feeschedule"
)

const dateLayout = "2006-01-02"

// ErrFeeRequired возвращается, когда событие списания приходит без суммы.
var ErrFeeRequired = errors.New("fee is required for annual_fee_posted events")

// EventRepository определяет методы хранилища, нужные сервису событий.
type EventRepository interface {
	// CreateEvent добавляет событие в журнал карты.
	CreateEvent(ctx context.Context, event models.Event) (int, error)
	// ReadEvent возвращает событие по ID.
	ReadEvent(ctx context.Context, id int) (*models.Event, error)
	// ListEvents возвращает журнал событий карты.
	ListEvents(ctx context.Context, cardID int) ([]*models.Event, error)
	// UpdateEvent обновляет событие по ID.
	UpdateEvent(ctx context.Context, event models.Event, id int) (int, error)
	// RemoveEvent удаляет событие по ID.
	RemoveEvent(ctx context.Context, id int) (int, error)
	// ReadCard возвращает карту по ID.
	ReadCard(ctx context.Context, id int) (*models.Card, error)
	// UpdateAnnualFeeDate выставляет дату следующего списания годовой платы.
	UpdateAnnualFeeDate(ctx context.Context, cardID int, date *time.Time) error
	// CreateBonus добавляет бонус по карте.
	CreateBonus(ctx context.Context, bonus models.Bonus) (int, error)
}

// EventService реализует бизнес-логику журнала событий.
type EventService struct {
	repo EventRepository
	log  *slog.Logger
	now  func() time.Time
}

// NewEventService создает новый экземпляр EventService.
func NewEventService(repo EventRepository, log *slog.Logger) *EventService {
	return &EventService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Create добавляет пользовательское событие в журнал карты и возвращает
// его ID. Списания годовой платы, внесённые пользователем, становятся
// точными записями: движок их больше не трогает.
func (s *EventService) Create(ctx context.Context, cardID int, req models.DummyEvent) (int, error) {
	const op = "event.Create"

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid date: %w", op, err)
	}

	event := models.Event{
		CardID:      cardID,
		Type:        req.Type,
		Date:        date,
		Description: req.Description,
	}
	event.Detail, err = detailFromRequest(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.repo.CreateEvent(ctx, event)
	if err != nil {
		return 0, err
	}
	s.log.Info("created new event", slog.Int("id", id),
		slog.Int("card_id", cardID), slog.String("type", req.Type))

	if err := s.recomputeDueDate(ctx, cardID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// Read возвращает событие по ID.
func (s *EventService) Read(ctx context.Context, id int) (*models.Event, error) {
	return s.repo.ReadEvent(ctx, id)
}

// List возвращает журнал событий карты в хронологическом порядке.
func (s *EventService) List(ctx context.Context, cardID int) ([]*models.Event, error) {
	return s.repo.ListEvents(ctx, cardID)
}

// Update обновляет событие. Правка approximate-списания превращает его
// в точную запись: пользователь подтвердил сумму.
func (s *EventService) Update(ctx context.Context, id int, req models.DummyEvent) (int, error) {
	const op = "event.Update"

	existing, err := s.repo.ReadEvent(ctx, id)
	if err != nil {
		return 0, err
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid date: %w", op, err)
	}

	event := models.Event{
		CardID:      existing.CardID,
		Type:        req.Type,
		Date:        date,
		Description: req.Description,
	}
	event.Detail, err = detailFromRequest(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.repo.UpdateEvent(ctx, event, id)
	if err != nil {
		return 0, err
	}

	if err := s.recomputeDueDate(ctx, existing.CardID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Remove удаляет событие и пересчитывает дату следующего списания.
func (s *EventService) Remove(ctx context.Context, id int) (int, error) {
	const op = "event.Remove"

	existing, err := s.repo.ReadEvent(ctx, id)
	if err != nil {
		return 0, err
	}

	res, err := s.repo.RemoveEvent(ctx, id)
	if err != nil {
		return 0, err
	}

	if err := s.recomputeDueDate(ctx, existing.CardID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// RecordRetentionOffer фиксирует retention-предложение: событие в журнале
// плюс связанный бонус, если предложение содержит вознаграждение.
func (s *EventService) RecordRetentionOffer(ctx context.Context, cardID int, req models.DummyRetentionOffer) (int, error) {
	const op = "event.RecordRetentionOffer"

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid date: %w", op, err)
	}

	eventID, err := s.repo.CreateEvent(ctx, models.Event{
		CardID:      cardID,
		Type:        models.EventRetentionOffer,
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		return 0, err
	}

	if req.BonusAmount != nil {
		bonus := models.Bonus{
			CardID:           cardID,
			EventID:          &eventID,
			Source:           models.BonusRetention,
			Amount:           *req.BonusAmount,
			SpendRequirement: req.SpendRequirement,
		}
		if req.BonusType != "" {
			bonus.Type = &req.BonusType
		}
		if req.SpendDeadline != "" {
			d, err := time.Parse(dateLayout, req.SpendDeadline)
			if err != nil {
				return 0, fmt.Errorf("%s: invalid spend_deadline: %w", op, err)
			}
			bonus.SpendDeadline = &d
		}
		if _, err := s.repo.CreateBonus(ctx, bonus); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Info("recorded retention offer", slog.Int("card_id", cardID), slog.Int("event_id", eventID))
	return eventID, nil
}

// recomputeDueDate пересчитывает annual_fee_date карты по журналу.
// Ручная дата пользователя (annual_fee_user_modified) не трогается.
func (s *EventService) recomputeDueDate(ctx context.Context, cardID int) error {
	card, err := s.repo.ReadCard(ctx, cardID)
	if err != nil {
		return err
	}
	if card.AnnualFeeUserModified || card.Status == models.StatusClosed {
		return nil
	}

	list, err := s.repo.ListEvents(ctx, cardID)
	if err != nil {
		return err
	}
	events := make([]models.Event, 0, len(list))
	for _, e := range list {
		events = append(events, *e)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	due := feeschedule.RecomputeDueDate(events, card.OpenDate, today)
	return s.repo.UpdateAnnualFeeDate(ctx, cardID, due)
}

// detailFromRequest собирает метаданные события из запроса.
func detailFromRequest(req models.DummyEvent) (models.EventDetail, error) {
	switch req.Type {
	case models.EventAnnualFeePosted:
		if req.Fee == nil {
			return nil, ErrFeeRequired
		}
		return models.ExactFee{Fee: *req.Fee}, nil
	case models.EventAnnualFeeRefund:
		if req.Amount == nil {
			return nil, nil
		}
		return models.FeeRefund{Amount: *req.Amount}, nil
	default:
		return nil, nil
	}
}
