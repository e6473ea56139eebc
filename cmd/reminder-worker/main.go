package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/config"
	"github.com/dentalops/booking-engine/internal/notify"
	"github.com/dentalops/booking-engine/internal/observability/metrics"
	"github.com/dentalops/booking-engine/internal/reminders"
	"github.com/dentalops/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reminder worker",
		"env", cfg.Env,
		"interval", cfg.ReminderInterval.String(),
		"batch_size", cfg.ReminderBatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}

	// The worker reads settings straight from Postgres; no cache needed at
	// one poll per interval.
	clinicStore := clinic.NewStore(pool, nil, logger)
	reminderStore := reminders.NewStore(pool)

	emailSender := buildEmailSender(ctx, cfg, logger)
	senders := map[clinic.Channel]reminders.Sender{
		clinic.ChannelEmail:    reminders.NewEmailSender(emailSender),
		clinic.ChannelWhatsApp: reminders.NewLogSender(logger),
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	worker := reminders.NewWorker(reminderStore, clinicStore, senders, bookingMetrics, logger).
		WithInterval(cfg.ReminderInterval).
		WithBatchSize(cfg.ReminderBatchSize).
		WithStaleAfter(cfg.ReminderStaleAfter)

	worker.Run(ctx)
	logger.Info("reminder worker stopped")
}

func buildEmailSender(ctx context.Context, cfg *config.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		logger.Warn("sendgrid selected but not configured, falling back to log sender")
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Warn("failed to load AWS config, falling back to log sender", "error", err)
			break
		}
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
	}
	return notify.NewLogEmailSender(logger)
}
