package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/pkg/logging"
)

// CalendarSync mirrors appointments into an external calendar. Best-effort:
// failures are logged and never affect the committed appointment.
type CalendarSync interface {
	CreateEvent(ctx context.Context, ev Event) (eventID string, err error)
	DeleteEvent(ctx context.Context, calendarRef, eventID string) error
}

// Notifier sends patient-facing confirmation, reschedule and cancellation
// messages.
type Notifier interface {
	AppointmentCreated(ctx context.Context, ev Event) error
	AppointmentRescheduled(ctx context.Context, ev Event) error
	AppointmentCancelled(ctx context.Context, ev Event) error
}

// CalendarEventRecorder stores the external event id on the appointment row
// once the mirror event exists.
type CalendarEventRecorder interface {
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error
}

// EffectRunner drains post-commit events into calendar sync and
// notifications. The channel layer runs it on its own goroutine; the
// booking itself is authoritative over the calendar mirror, so every
// failure here is swallowed after logging.
type EffectRunner struct {
	calendar CalendarSync
	notifier Notifier
	recorder CalendarEventRecorder
	logger   *logging.Logger
	timeout  time.Duration
}

// NewEffectRunner creates an effect runner. Any collaborator may be nil.
func NewEffectRunner(calendar CalendarSync, notifier Notifier, recorder CalendarEventRecorder, logger *logging.Logger) *EffectRunner {
	if logger == nil {
		logger = logging.Default()
	}
	return &EffectRunner{
		calendar: calendar,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		timeout:  30 * time.Second,
	}
}

// Drain processes the events from one lifecycle operation. It must be
// called with a background context, not the request context, since the
// request has usually completed by the time effects run.
func (r *EffectRunner) Drain(ctx context.Context, events []Event) {
	for _, ev := range events {
		evCtx, cancel := context.WithTimeout(ctx, r.timeout)
		r.drainOne(evCtx, ev)
		cancel()
	}
}

func (r *EffectRunner) drainOne(ctx context.Context, ev Event) {
	if r.calendar != nil {
		switch ev.Type {
		case EventCreated, EventRescheduled:
			eventID, err := r.calendar.CreateEvent(ctx, ev)
			if err != nil {
				r.logger.Error("calendar sync failed",
					"event", ev.Type, "reference", ev.Appointment.Reference, "error", err)
			} else if eventID != "" && r.recorder != nil {
				if err := r.recorder.SetCalendarEventID(ctx, ev.Appointment.ID, eventID); err != nil {
					r.logger.Error("calendar event id not recorded",
						"reference", ev.Appointment.Reference, "error", err)
				}
			}
		case EventCancelled:
			if err := r.calendar.DeleteEvent(ctx, ev.CalendarRef, ev.Appointment.CalendarEventID); err != nil {
				r.logger.Error("calendar event deletion failed",
					"reference", ev.Appointment.Reference, "error", err)
			}
		}
	}

	if r.notifier == nil {
		return
	}
	var err error
	switch ev.Type {
	case EventCreated:
		err = r.notifier.AppointmentCreated(ctx, ev)
	case EventRescheduled:
		err = r.notifier.AppointmentRescheduled(ctx, ev)
	case EventCancelled:
		err = r.notifier.AppointmentCancelled(ctx, ev)
	}
	if err != nil {
		r.logger.Error("notification failed",
			"event", ev.Type, "reference", ev.Appointment.Reference, "error", err)
	}
}
