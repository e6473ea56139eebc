package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dentalops/booking-engine/internal/api"
	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/internal/calendar"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/config"
	"github.com/dentalops/booking-engine/internal/doctors"
	"github.com/dentalops/booking-engine/internal/notify"
	"github.com/dentalops/booking-engine/internal/observability/metrics"
	"github.com/dentalops/booking-engine/internal/patients"
	"github.com/dentalops/booking-engine/internal/reminders"
	"github.com/dentalops/booking-engine/internal/schedule"
	"github.com/dentalops/booking-engine/internal/sessions"
	"github.com/dentalops/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	// Stores.
	clinicStore := clinic.NewStore(pool, redisClient, logger)
	doctorStore := doctors.NewStore(pool)
	patientStore := patients.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	reminderStore := reminders.NewStore(pool)

	// Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(registry)

	// Core services.
	resolver := schedule.NewResolver(apptStore, doctorStore)
	scheduler := reminders.NewScheduler(reminderStore, clinicStore, logger)
	bookingSvc := booking.NewService(booking.ServiceConfig{
		Settings:            clinicStore,
		Doctors:             doctorStore,
		Appts:               apptStore,
		Patients:            patientStore,
		Resolver:            resolver,
		Reminders:           scheduler,
		Locker:              booking.NewRedisDoctorLocker(redisClient, cfg.BookingLockTTL),
		Metrics:             bookingMetrics,
		Logger:              logger,
		SearchHorizonDays:   cfg.SearchHorizonDays,
		MaxAlternativeSlots: cfg.MaxAlternativeSlots,
	})

	// Post-commit effects: calendar mirror plus patient notifications.
	emailSender := buildEmailSender(ctx, cfg, logger)
	notifier := notify.NewService(emailSender, cfg.ClinicName, clinicTimezone(clinicStore), logger)
	effects := booking.NewEffectRunner(calendar.NewLogSync(logger), notifier, apptStore, logger)

	sessionStore := sessions.NewStore(redisClient, cfg.SessionTTL)

	// HTTP surface.
	bookingHandler := api.NewBookingHandler(bookingSvc, resolver, clinicStore, effects, bookingMetrics, logger)
	handler := api.New(&api.Config{
		Logger:             logger,
		Booking:            bookingHandler,
		Voice:              api.NewVoiceHandler(bookingSvc, effects, logger),
		WhatsApp:           api.NewWhatsAppHandler(bookingSvc, doctorStore, sessionStore, effects, logger),
		Admin:              api.NewAdminHandler(clinicStore, doctorStore, apptStore, bookingSvc, reminderStore, logger),
		AdminToken:         cfg.AdminToken,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildEmailSender picks the confirmation/reminder email transport.
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

// clinicTimezone exposes the configured clinic location to the notifier.
func clinicTimezone(store *clinic.Store) func() *time.Location {
	return func() *time.Location {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := store.Get(ctx)
		if err != nil {
			return time.UTC
		}
		return st.Location()
	}
}
