// Package reminders derives pending reminder rows from appointments and
// clinic policy and promotes them through a fire-once dispatch loop.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dentalops/booking-engine/internal/clinic"
)

// DB abstracts the pgx query interface for testing. Begin is needed so
// regeneration (delete then recreate) is atomic per appointment.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for appointment reminders.
type Store struct {
	db DB
}

// NewStore creates a reminders store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("reminders: db required")
	}
	return &Store{db: db}
}

// Regenerate atomically replaces all reminder rows for an appointment.
func (s *Store) Regenerate(ctx context.Context, appointmentID uuid.UUID, rows []Reminder) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reminders: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM appointment_reminders WHERE appointment_id = $1`, appointmentID); err != nil {
		return fmt.Errorf("reminders: clear existing: %w", err)
	}

	now := time.Now().UTC()
	for i := range rows {
		r := &rows[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.AppointmentID = appointmentID
		r.Status = StatusPending
		r.CreatedAt = now
		r.UpdatedAt = now
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_reminders (id, appointment_id, offset_minutes, channel, due_at, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.AppointmentID, r.OffsetMinutes, string(r.Channel), r.DueAt.UTC(), string(r.Status), r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("reminders: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reminders: commit: %w", err)
	}
	return nil
}

// Purge deletes every reminder row for an appointment.
func (s *Store) Purge(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM appointment_reminders WHERE appointment_id = $1`, appointmentID); err != nil {
		return fmt.Errorf("reminders: purge: %w", err)
	}
	return nil
}

// ClaimDue atomically moves up to limit due pending reminders to "sending"
// and returns them joined with delivery details. SKIP LOCKED keeps
// concurrent workers from claiming the same rows.
func (s *Store) ClaimDue(ctx context.Context, asOf time.Time, limit int) ([]DueReminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		WITH claimed AS (
			UPDATE appointment_reminders SET status = 'sending', updated_at = $1
			WHERE id IN (
				SELECT id FROM appointment_reminders
				WHERE status = 'pending' AND due_at <= $1
				ORDER BY due_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED)
			RETURNING id, appointment_id, offset_minutes, channel, due_at, status, created_at, updated_at
		)
		SELECT c.id, c.appointment_id, c.offset_minutes, c.channel, c.due_at, c.status, c.created_at, c.updated_at,
		       a.reference, a.starts_at, a.service, p.name, p.email, p.phone, d.name
		FROM claimed c
		JOIN appointments a ON a.id = c.appointment_id
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		ORDER BY c.due_at`, asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: claim due: %w", err)
	}
	defer rows.Close()

	var result []DueReminder
	for rows.Next() {
		var r DueReminder
		var channel, status string
		err := rows.Scan(&r.ID, &r.AppointmentID, &r.OffsetMinutes, &channel, &r.DueAt, &status,
			&r.CreatedAt, &r.UpdatedAt,
			&r.Reference, &r.StartsAt, &r.Service,
			&r.PatientName, &r.PatientEmail, &r.PatientPhone, &r.DoctorName)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan due: %w", err)
		}
		r.Channel = clinic.Channel(channel)
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}

// MarkSent transitions a claimed reminder to sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'sent', updated_at = $1
		WHERE id = $2 AND status = 'sending'`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent: no claimed reminder %s", id)
	}
	return nil
}

// MarkFailed transitions a claimed reminder to failed with a reason.
// Failed reminders are terminal and are never retried automatically.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'failed', failure_reason = $1, updated_at = $2
		WHERE id = $3 AND status = 'sending'`, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reminders: mark failed: %w", err)
	}
	return nil
}

// SweepStale fails "sending" rows older than the cutoff. A row stuck there
// means the process died between claim and status update; failing it keeps
// the fire-once guarantee instead of risking a duplicate send.
func (s *Store) SweepStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'failed', failure_reason = 'dispatch interrupted', updated_at = $1
		WHERE status = 'sending' AND updated_at < $2`, time.Now().UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("reminders: sweep stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListFailed returns recently failed reminders so operators can see
// undelivered sends.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, appointment_id, offset_minutes, channel, due_at, status, COALESCE(failure_reason, ''), created_at, updated_at
		FROM appointment_reminders
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list failed: %w", err)
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		var r Reminder
		var channel, status string
		err := rows.Scan(&r.ID, &r.AppointmentID, &r.OffsetMinutes, &channel, &r.DueAt, &status,
			&r.FailureReason, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan failed row: %w", err)
		}
		r.Channel = clinic.Channel(channel)
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}

// CountForAppointment returns how many reminder rows an appointment has.
func (s *Store) CountForAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment_reminders WHERE appointment_id = $1`, appointmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reminders: count: %w", err)
	}
	return n, nil
}
