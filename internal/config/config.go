package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Slot search policy. The scan step is fixed at 30 minutes; horizon and
	// cap are tunable so conversational prompts can be adjusted per deployment.
	SearchHorizonDays   int
	MaxAlternativeSlots int

	// Doctor-scoped booking lock.
	BookingLockTTL time.Duration

	// Channel session state (WhatsApp multi-step flows).
	SessionTTL time.Duration

	// Reminder dispatch loop.
	ReminderInterval   time.Duration
	ReminderBatchSize  int
	ReminderStaleAfter time.Duration

	// HTTP surface.
	ClinicName         string
	AdminToken         string
	CORSAllowedOrigins []string

	// Email provider: "sendgrid", "ses" or "log".
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AWSRegion         string
	SESFromEmail      string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SearchHorizonDays:   getEnvAsInt("SEARCH_HORIZON_DAYS", 2),
		MaxAlternativeSlots: getEnvAsInt("MAX_ALTERNATIVE_SLOTS", 3),

		BookingLockTTL: getEnvAsDuration("BOOKING_LOCK_TTL", 10*time.Second),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 30*time.Minute),

		ReminderInterval:   getEnvAsDuration("REMINDER_INTERVAL", 5*time.Minute),
		ReminderBatchSize:  getEnvAsInt("REMINDER_BATCH_SIZE", 50),
		ReminderStaleAfter: getEnvAsDuration("REMINDER_STALE_AFTER", 30*time.Minute),

		ClinicName:         getEnv("CLINIC_NAME", "the clinic"),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "log"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "DentalOps"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
