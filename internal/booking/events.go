package booking

import (
	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/patients"
)

// EventType identifies a lifecycle event emitted after a successful commit.
type EventType string

const (
	EventCreated     EventType = "appointment_created"
	EventRescheduled EventType = "appointment_rescheduled"
	EventCancelled   EventType = "appointment_cancelled"
)

// Event is a post-commit notification. The booking pipeline returns events
// instead of invoking calendar sync and email inline, so the core stays
// deterministic and the infra layer drains side effects asynchronously.
type Event struct {
	Type        EventType
	Appointment appointments.Appointment
	// Previous holds the pre-reschedule appointment for EventRescheduled.
	Previous   *appointments.Appointment
	Patient    patients.Patient
	DoctorName string
	// CalendarRef is the doctor's external-calendar linkage token, passed
	// through opaquely.
	CalendarRef string
}
