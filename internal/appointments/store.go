// Package appointments owns the appointment record and its persistence.
// The appointments table carries a btree_gist exclusion constraint over
// (doctor_id, [starts_at, ends_at)) for non-cancelled rows, so the database
// is the last line of defense against double-booking even if two requests
// race past the in-process conflict check.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrSlotTaken surfaces the exclusion constraint: another non-cancelled
	// appointment for the same doctor overlaps the requested interval.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrReferenceTaken reports a reference-number collision; callers
	// regenerate and retry.
	ErrReferenceTaken = errors.New("reference already in use")
	// ErrNotScheduled reports an update against a terminal appointment.
	ErrNotScheduled = errors.New("appointment is not in scheduled state")
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for appointments.
type Store struct {
	db DB
}

// NewStore creates an appointments store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("appointments: db required")
	}
	return &Store{db: db}
}

const appointmentColumns = `id, reference, doctor_id, patient_id, starts_at, duration_minutes, status, service, source, COALESCE(calendar_event_id, ''), COALESCE(notes, ''), created_at, updated_at`

// Create inserts a scheduled appointment. Overlap with an existing
// non-cancelled appointment returns ErrSlotTaken; a reference collision
// returns ErrReferenceTaken.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, reference, doctor_id, patient_id, starts_at, duration_minutes, status, service, source, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`,
		a.ID, a.Reference, a.DoctorID, a.PatientID, a.StartsAt.UTC(), a.Duration,
		string(a.Status), a.Service, string(a.Source), a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", translateConflict(err))
	}
	return nil
}

// GetByReference loads an appointment by its patient-facing reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (*Appointment, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE reference = $1`,
		strings.ToUpper(strings.TrimSpace(reference))))
}

// ListForDoctorRange returns non-cancelled appointments for a doctor whose
// start falls in [from, to).
func (s *Store) ListForDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND status <> 'cancelled' AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at`,
		doctorID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: list for doctor: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// ListUpcomingForPatient returns scheduled appointments for a patient from
// the given instant onward.
func (s *Store) ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND status = 'scheduled' AND starts_at >= $2
		ORDER BY starts_at`,
		patientID, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: list for patient: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// UpdateStatus transitions a scheduled appointment into a terminal state.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'scheduled'`,
		string(to), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotScheduled
	}
	return nil
}

// Reschedule moves a scheduled appointment to a new start and duration.
// The exclusion constraint still applies; an overlap with another
// appointment returns ErrSlotTaken.
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, startsAt time.Time, duration int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET starts_at = $1, duration_minutes = $2, updated_at = $3
		WHERE id = $4 AND status = 'scheduled'`,
		startsAt.UTC(), duration, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: reschedule: %w", translateConflict(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotScheduled
	}
	return nil
}

// SetCalendarEventID records the external-calendar mirror id, best-effort.
func (s *Store) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments SET calendar_event_id = NULLIF($1, ''), updated_at = $2
		WHERE id = $3`,
		eventID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: set calendar event: %w", err)
	}
	return nil
}

func (s *Store) scanOne(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, source string
	err := row.Scan(&a.ID, &a.Reference, &a.DoctorID, &a.PatientID, &a.StartsAt,
		&a.Duration, &status, &a.Service, &source, &a.CalendarEventID, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.Status = Status(status)
	a.Source = Source(source)
	return &a, nil
}

func (s *Store) scanAll(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var a Appointment
		var status, source string
		err := rows.Scan(&a.ID, &a.Reference, &a.DoctorID, &a.PatientID, &a.StartsAt,
			&a.Duration, &status, &a.Service, &source, &a.CalendarEventID, &a.Notes,
			&a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		a.Status = Status(status)
		a.Source = Source(source)
		result = append(result, a)
	}
	return result, rows.Err()
}

func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		return ErrSlotTaken
	case pgUniqueViolation:
		if strings.Contains(pgErr.ConstraintName, "reference") {
			return ErrReferenceTaken
		}
	}
	return err
}
