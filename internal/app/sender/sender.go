package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/pereloman/cardperks/internal/config"
	"github.com/pereloman/cardperks/internal/lib/rabbitmq"
	"github.com/pereloman/cardperks/internal/lib/smtp"
	senderservice "github.com/pereloman/cardperks/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.ConnectRetries, cfg.ConnectDelay)
	if err != nil {
		return nil, err
	}

	queues := rabbitmq.GetReminderQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		conn.Close()
		return nil, err
	}

	newTransport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(logger, newTransport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeMessages(ctx, a.ch, "reminders.annual_fee", a.senderService.SendAnnualFeeReminder)
	if err != nil {
		a.logger.Error("failed to start reminders.annual_fee consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumeMessages(ctx, a.ch, "reminders.expiring_credit", a.senderService.SendExpiringCreditReminder)
	if err != nil {
		a.logger.Error("failed to start reminders.expiring_credit consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("Sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
