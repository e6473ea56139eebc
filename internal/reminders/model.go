package reminders

import (
	"time"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/clinic"
)

// Status tracks the dispatch lifecycle of a reminder. "sending" is the
// transient in-flight claim: a row is moved there before delivery is
// attempted, so a crash mid-send cannot cause a duplicate on restart.
// Failed is terminal; the engine never re-queues a failed reminder.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Reminder is one (offset, channel) notification for an appointment,
// materialized at booking or reschedule time from the settings then in
// effect.
type Reminder struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	OffsetMinutes int            `json:"offset_minutes"`
	Channel       clinic.Channel `json:"channel"`
	DueAt         time.Time      `json:"due_at"`
	Status        Status         `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// DueReminder is a claimed reminder joined with the appointment, patient
// and doctor details the senders need.
type DueReminder struct {
	Reminder
	Reference    string    `json:"reference"`
	StartsAt     time.Time `json:"starts_at"`
	Service      string    `json:"service"`
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email"`
	PatientPhone string    `json:"patient_phone"`
	DoctorName   string    `json:"doctor_name"`
}
