package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/dentalops/booking-engine/pkg/logging"
)

const (
	settingsCacheKey = "clinic:settings"
	settingsCacheTTL = 5 * time.Minute
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store loads and saves the settings singleton, with a short Redis cache in
// front of Postgres since every booking reads it.
type Store struct {
	db     DB
	cache  *redis.Client
	logger *logging.Logger
}

// NewStore creates a settings store. The cache client is optional.
func NewStore(db DB, cache *redis.Client, logger *logging.Logger) *Store {
	if db == nil {
		panic("clinic: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, cache: cache, logger: logger}
}

// Get returns the current settings, falling back to defaults when no row
// has been saved yet.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT payload FROM clinic_settings WHERE id = 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("clinic: load settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return Settings{}, fmt.Errorf("clinic: decode settings: %w", err)
	}

	s.toCache(ctx, payload)
	return settings, nil
}

// Update validates and saves new settings, then invalidates the cache.
func (s *Store) Update(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinic: encode settings: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO clinic_settings (id, payload, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET payload = $1, updated_at = $2`,
		payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clinic: save settings: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, settingsCacheKey).Err(); err != nil {
			s.logger.Warn("clinic settings cache invalidation failed", "error", err)
		}
	}
	return nil
}

func (s *Store) fromCache(ctx context.Context) (Settings, bool) {
	if s.cache == nil {
		return Settings{}, false
	}
	payload, err := s.cache.Get(ctx, settingsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("clinic settings cache read failed", "error", err)
		}
		return Settings{}, false
	}
	var settings Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return Settings{}, false
	}
	return settings, true
}

func (s *Store) toCache(ctx context.Context, payload []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, settingsCacheKey, payload, settingsCacheTTL).Err(); err != nil {
		s.logger.Warn("clinic settings cache write failed", "error", err)
	}
}
