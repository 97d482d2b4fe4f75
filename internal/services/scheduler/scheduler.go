// Package services содержит планировщик напоминаний: периодически
// находит карты с приближающимся списанием годовой платы и бенефиты
// со сгорающим остатком, и публикует напоминания в очередь.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pereloman/cardperks/internal/lib/period"
	"github.com/pereloman/cardperks/internal/lib/rabbitmq"
	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
	"github.com/streadway/amqp"
)

// ReminderRepository определяет выборки хранилища для напоминаний.
type ReminderRepository interface {
	// FindCardsWithUpcomingFee возвращает карты, годовая плата по которым
	// спишется в ближайшие leadDays дней.
	FindCardsWithUpcomingFee(ctx context.Context, leadDays int) ([]*models.CardFeeInfo, error)
	// ListBenefitReminderCandidates возвращает бенефиты с неизрасходованным остатком.
	ListBenefitReminderCandidates(ctx context.Context) ([]*models.BenefitReminderInfo, error)
}

// SchedulerService публикует напоминания в очереди RabbitMQ.
type SchedulerService struct {
	repo     ReminderRepository
	log      *slog.Logger
	leadDays int
	now      func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// leadDays — за сколько дней до события отправлять напоминание.
func NewSchedulerService(repo ReminderRepository, leadDays int, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:     repo,
		log:      log,
		leadDays: leadDays,
		now:      time.Now,
	}
}

// RunAnnualFeeReminders находит карты с приближающимся списанием годовой
// платы и публикует напоминания. Запускается сразу и далее раз в сутки.
func (s *SchedulerService) RunAnnualFeeReminders(ctx context.Context, channel *amqp.Channel) {
	s.publishAnnualFeeReminders(ctx, channel)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishAnnualFeeReminders(ctx, channel)
		}
	}
}

func (s *SchedulerService) publishAnnualFeeReminders(ctx context.Context, channel *amqp.Channel) {
	s.log.Info("looking for cards with upcoming annual fee", slog.Int("lead_days", s.leadDays))
	cards, err := s.repo.FindCardsWithUpcomingFee(ctx, s.leadDays)
	if err != nil {
		s.log.Error("failed to find cards with upcoming fee", sl.Err(err))
		return
	}
	if len(cards) == 0 {
		s.log.Info("no upcoming annual fees found")
		return
	}
	s.log.Info("found cards with upcoming annual fee", slog.Int("count", len(cards)))
	for _, info := range cards {
		if err := rabbitmq.PublishMessage(channel, rabbitmq.ReminderExchange, "annual_fee", info); err != nil {
			s.log.Error("failed to publish annual fee reminder",
				slog.Int("card_id", info.CardID), sl.Err(err))
		}
	}
}

// RunExpiringCreditReminders находит бенефиты, чей период заканчивается
// в ближайшие дни при неизрасходованном остатке, и публикует напоминания.
// Запускается сразу и далее раз в сутки.
func (s *SchedulerService) RunExpiringCreditReminders(ctx context.Context, channel *amqp.Channel) {
	s.publishExpiringCreditReminders(ctx, channel)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishExpiringCreditReminders(ctx, channel)
		}
	}
}

func (s *SchedulerService) publishExpiringCreditReminders(ctx context.Context, channel *amqp.Channel) {
	s.log.Info("looking for expiring benefit credits")
	candidates, err := s.repo.ListBenefitReminderCandidates(ctx)
	if err != nil {
		s.log.Error("failed to list benefit reminder candidates", sl.Err(err))
		return
	}

	expiring := s.SelectExpiring(candidates)
	if len(expiring) == 0 {
		s.log.Info("no expiring benefit credits found")
		return
	}
	s.log.Info("found expiring benefit credits", slog.Int("count", len(expiring)))
	for _, info := range expiring {
		if err := rabbitmq.PublishMessage(channel, rabbitmq.ReminderExchange, "expiring_credit", info); err != nil {
			s.log.Error("failed to publish expiring credit reminder",
				slog.Int("benefit_id", info.BenefitID), sl.Err(err))
		}
	}
}

// SelectExpiring оставляет кандидатов, чей текущий период заканчивается
// в ближайшие leadDays дней, и проставляет им конец периода.
func (s *SchedulerService) SelectExpiring(candidates []*models.BenefitReminderInfo) []*models.BenefitReminderInfo {
	today := s.now().UTC().Truncate(24 * time.Hour)
	cutoff := today.AddDate(0, 0, s.leadDays)

	var result []*models.BenefitReminderInfo
	for _, c := range candidates {
		_, end := period.Current(c.Frequency, c.ResetType, c.CardOpenDate, today)
		if end.Before(today) || end.After(cutoff) {
			continue
		}
		c.PeriodEnd = end
		result = append(result, c)
	}
	return result
}
