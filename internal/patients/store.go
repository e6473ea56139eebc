// Package patients persists patient identities. Patients are keyed by
// email first, then phone, so repeat bookings never create duplicates.
package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("patient not found")

// Patient is a clinic patient reachable by phone and/or email.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for patients.
type Store struct {
	db DB
}

// NewStore creates a patients store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("patients: db required")
	}
	return &Store{db: db}
}

// Upsert finds an existing patient by email, then phone, updating their
// contact details on match; otherwise a new row is created.
func (s *Store) Upsert(ctx context.Context, name, phone, email string) (*Patient, error) {
	existing, err := s.findByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		existing, err = s.findByPhone(ctx, phone)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if existing != nil {
		existing.Name = name
		existing.Phone = phone
		existing.Email = email
		existing.UpdatedAt = now
		_, err := s.db.Exec(ctx, `
			UPDATE patients SET name = $1, phone = $2, email = $3, updated_at = $4
			WHERE id = $5`,
			name, phone, email, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("patients: update: %w", err)
		}
		return existing, nil
	}

	p := &Patient{
		ID:        uuid.New(),
		Name:      name,
		Phone:     phone,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO patients (id, name, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Phone, p.Email, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("patients: insert: %w", err)
	}
	return p, nil
}

// Get returns a patient by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients WHERE id = $1`, id))
}

func (s *Store) findByEmail(ctx context.Context, email string) (*Patient, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients WHERE lower(email) = lower($1)`, email))
}

func (s *Store) findByPhone(ctx context.Context, phone string) (*Patient, error) {
	if phone == "" {
		return nil, ErrNotFound
	}
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients WHERE phone = $1`, phone))
}

func (s *Store) scanOne(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: scan: %w", err)
	}
	return &p, nil
}
