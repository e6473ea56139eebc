package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2, cfg.SearchHorizonDays)
	assert.Equal(t, 3, cfg.MaxAlternativeSlots)
	assert.Equal(t, 5*time.Minute, cfg.ReminderInterval)
	assert.Equal(t, "log", cfg.EmailProvider)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SEARCH_HORIZON_DAYS", "5")
	t.Setenv("MAX_ALTERNATIVE_SLOTS", "7")
	t.Setenv("REMINDER_INTERVAL", "90s")
	t.Setenv("SESSION_TTL", "1h")

	cfg := Load()

	assert.Equal(t, 5, cfg.SearchHorizonDays)
	assert.Equal(t, 7, cfg.MaxAlternativeSlots)
	assert.Equal(t, 90*time.Second, cfg.ReminderInterval)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("SEARCH_HORIZON_DAYS", "two")
	t.Setenv("REMINDER_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 2, cfg.SearchHorizonDays)
	assert.Equal(t, 5*time.Minute, cfg.ReminderInterval)
}
