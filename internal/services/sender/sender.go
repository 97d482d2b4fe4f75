// Package services содержит отправку email-напоминаний по сообщениям
// из очередей RabbitMQ.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/lib/smtp"
	"github.com/pereloman/cardperks/internal/models"
)

// SenderService отправляет письма-напоминания через SMTP.
type SenderService struct {
	transport Transport
	log       *slog.Logger
}

// Transport описывает SMTP-подключение.
type Transport interface {
	Connect() (smtp.Client, error)
	GetSMTPUser() string
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport Transport) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendAnnualFeeReminder отправляет напоминание о предстоящем списании
// годовой платы. Вызывается консьюмером очереди reminders.annual_fee.
func (s *SenderService) SendAnnualFeeReminder(body []byte) error {
	var message models.CardFeeInfo
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal annual fee reminder", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{message.Email}
	subject := "Напоминание о годовой плате по карте"
	bodyText := fmt.Sprintf("Здравствуйте, %s!\n\nПо карте %s %s спишется годовая плата %d.\n\nЕсли карта больше не нужна, самое время позвонить в банк.",
		message.Username, message.CardName, message.DueDate.Format("2006-01-02"), message.Fee)

	return s.sendEmail(to, subject, bodyText)
}

// SendExpiringCreditReminder отправляет напоминание о сгорающем остатке
// бенефита. Вызывается консьюмером очереди reminders.expiring_credit.
func (s *SenderService) SendExpiringCreditReminder(body []byte) error {
	var message models.BenefitReminderInfo
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal expiring credit reminder", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{message.Email}
	subject := "Сгорающий кредит по карте"
	bodyText := fmt.Sprintf("Здравствуйте, %s!\n\nПо карте %s остался неизрасходованный бенефит «%s»: %d из %d.\nТекущий период заканчивается %s.",
		message.Username, message.CardName, message.BenefitName,
		message.Remaining(), message.Amount, message.PeriodEnd.Format("2006-01-02"))

	return s.sendEmail(to, subject, bodyText)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), "error", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, "error", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
