package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Source identifies the channel a booking command arrived on.
type Source string

const (
	SourceAdmin    Source = "admin"
	SourceChat     Source = "chat"
	SourceVoice    Source = "voice"
	SourceWhatsApp Source = "whatsapp"
)

// Appointment is the booked visit record. StartsAt is an absolute instant
// resolved from the clinic-local date and time; Duration is a snapshot of
// the clinic setting at booking time and is not recomputed when settings
// change later.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	Reference       string    `json:"reference"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	StartsAt        time.Time `json:"starts_at"`
	Duration        int       `json:"duration"` // minutes
	Status          Status    `json:"status"`
	Service         string    `json:"service"`
	Source          Source    `json:"source"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EndsAt returns the exclusive end of the appointment interval.
func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.Duration) * time.Minute)
}
