// Package calendar mirrors committed appointments into the doctors'
// external calendars. The appointment row is authoritative; the mirror is
// best-effort and a sync failure never unwinds a booking.
package calendar

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// LogSync is the default mirror used in development and in deployments
// without a calendar integration. It records what would have been synced
// and hands back a synthetic event id so the recording path stays exercised.
type LogSync struct {
	logger *logging.Logger
}

// NewLogSync creates a logging calendar mirror.
func NewLogSync(logger *logging.Logger) *LogSync {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSync{logger: logger.Component("calendar")}
}

func (s *LogSync) CreateEvent(_ context.Context, ev booking.Event) (string, error) {
	eventID := fmt.Sprintf("log-%s", uuid.NewString())
	s.logger.Info("calendar event created",
		"calendar_ref", ev.CalendarRef,
		"event_id", eventID,
		"reference", ev.Appointment.Reference,
		"doctor", ev.DoctorName,
		"starts_at", ev.Appointment.StartsAt,
	)
	return eventID, nil
}

func (s *LogSync) DeleteEvent(_ context.Context, calendarRef, eventID string) error {
	s.logger.Info("calendar event deleted",
		"calendar_ref", calendarRef,
		"event_id", eventID,
	)
	return nil
}

var _ booking.CalendarSync = (*LogSync)(nil)
