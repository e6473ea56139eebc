package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// rowStore is the subset of Store the scheduler needs.
type rowStore interface {
	Regenerate(ctx context.Context, appointmentID uuid.UUID, rows []Reminder) error
	Purge(ctx context.Context, appointmentID uuid.UUID) error
}

// settingsSource loads the clinic settings snapshot.
type settingsSource interface {
	Get(ctx context.Context) (clinic.Settings, error)
}

// Scheduler materializes reminder rows from clinic policy. Regeneration
// always recomputes from current settings, so a policy change only affects
// bookings and reschedules made after it.
type Scheduler struct {
	store    rowStore
	settings settingsSource
	logger   *logging.Logger
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(store rowStore, settings settingsSource, logger *logging.Logger) *Scheduler {
	if store == nil || settings == nil {
		panic("reminders: store and settings required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{store: store, settings: settings, logger: logger}
}

// Regenerate replaces the appointment's reminders with one pending row per
// configured (offset, channel) pair. With reminders disabled it only clears
// existing rows.
func (s *Scheduler) Regenerate(ctx context.Context, appointmentID uuid.UUID, startsAt time.Time) error {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("reminders: load settings: %w", err)
	}

	if !st.ReminderEnabled {
		return s.store.Purge(ctx, appointmentID)
	}

	rows := Plan(appointmentID, startsAt, st)
	if err := s.store.Regenerate(ctx, appointmentID, rows); err != nil {
		return err
	}

	s.logger.Info("reminders regenerated",
		"appointment_id", appointmentID,
		"count", len(rows),
	)
	return nil
}

// Purge removes every reminder for a cancelled appointment.
func (s *Scheduler) Purge(ctx context.Context, appointmentID uuid.UUID) error {
	return s.store.Purge(ctx, appointmentID)
}

// Plan computes the reminder rows for an appointment under the given
// settings: the cross product of configured offsets and channels.
func Plan(appointmentID uuid.UUID, startsAt time.Time, st clinic.Settings) []Reminder {
	var rows []Reminder
	for _, offset := range st.ReminderOffsets {
		for _, channel := range st.ReminderChannels {
			rows = append(rows, Reminder{
				AppointmentID: appointmentID,
				OffsetMinutes: offset,
				Channel:       channel,
				DueAt:         startsAt.Add(-time.Duration(offset) * time.Minute),
				Status:        StatusPending,
			})
		}
	}
	return rows
}
