// Package doctors persists practitioners and their availability exceptions.
package doctors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("doctor not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for doctors and availability blocks.
type Store struct {
	db DB
}

// NewStore creates a doctors store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("doctors: db required")
	}
	return &Store{db: db}
}

// Get returns a doctor by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := s.db.QueryRow(ctx, `
		SELECT id, name, is_active, COALESCE(calendar_ref, ''), created_at
		FROM doctors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.IsActive, &d.CalendarRef, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("doctors: get: %w", err)
	}
	return &d, nil
}

// ListActive returns doctors that can currently take bookings.
func (s *Store) ListActive(ctx context.Context) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, is_active, COALESCE(calendar_ref, ''), created_at
		FROM doctors WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("doctors: list active: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.IsActive, &d.CalendarRef, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("doctors: scan: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// Create inserts a doctor.
func (s *Store) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO doctors (id, name, is_active, calendar_ref, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		d.ID, d.Name, d.IsActive, d.CalendarRef, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("doctors: create: %w", err)
	}
	return nil
}

// ListBlocksForDay returns all availability blocks for a doctor on a
// clinic-local calendar day, blocked intervals first.
func (s *Store) ListBlocksForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]AvailabilityBlock, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, doctor_id, block_date, start_time, end_time, is_available, COALESCE(reason, ''), created_at
		FROM doctor_availability_blocks
		WHERE doctor_id = $1 AND block_date = $2
		ORDER BY is_available, start_time`,
		doctorID, day.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("doctors: list blocks: %w", err)
	}
	defer rows.Close()

	var result []AvailabilityBlock
	for rows.Next() {
		var b AvailabilityBlock
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.Date, &b.StartTime, &b.EndTime, &b.Available, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("doctors: scan block: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// CreateBlock inserts an availability block.
func (s *Store) CreateBlock(ctx context.Context, b *AvailabilityBlock) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO doctor_availability_blocks (id, doctor_id, block_date, start_time, end_time, is_available, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		b.ID, b.DoctorID, b.Date.Format(time.DateOnly), b.StartTime, b.EndTime, b.Available, b.Reason, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("doctors: create block: %w", err)
	}
	return nil
}

// DeleteBlock removes an availability block.
func (s *Store) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM doctor_availability_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("doctors: delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
