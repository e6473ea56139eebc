package booking

import "github.com/dentalops/booking-engine/internal/schedule"

// RejectionKind classifies why a booking command was refused. Every kind is
// recoverable by the caller; none indicates a system failure.
type RejectionKind string

const (
	// KindMissingInfo means the patient must supply or correct a field.
	KindMissingInfo RejectionKind = "missing_info"
	// KindPastDate covers dates before today and same-day times already passed.
	KindPastDate RejectionKind = "past_date"
	// KindOutsideWorkingHours means the interval does not fit inside
	// opening hours.
	KindOutsideWorkingHours RejectionKind = "outside_working_hours"
	// KindNotWorkingDay means the clinic is closed on the requested weekday.
	KindNotWorkingDay RejectionKind = "not_working_day"
	// KindDoctorBlocked means the doctor marked the interval unavailable.
	KindDoctorBlocked RejectionKind = "doctor_blocked"
	// KindSlotUnavailable means another appointment occupies the interval
	// and no alternatives were found.
	KindSlotUnavailable RejectionKind = "slot_unavailable"
	// KindSlotUnavailableWithAlternatives is a conflict with suggested slots.
	KindSlotUnavailableWithAlternatives RejectionKind = "slot_unavailable_with_alternatives"
	// KindAuthorizationFailure means the presented phone did not match the
	// appointment's patient.
	KindAuthorizationFailure RejectionKind = "authorization_failure"
	// KindNotFound means no appointment matches the reference, or the
	// doctor is unknown or inactive.
	KindNotFound RejectionKind = "not_found"
	// KindAlreadyCancelled means the appointment is terminal and cannot be
	// cancelled or rescheduled again.
	KindAlreadyCancelled RejectionKind = "already_cancelled"
)

// Rejection is the typed refusal returned by the booking pipeline. Message
// is written for the patient; the conversational layer surfaces it verbatim.
type Rejection struct {
	Kind         RejectionKind   `json:"kind"`
	Field        string          `json:"field,omitempty"` // set for missing_info
	Message      string          `json:"message"`
	Alternatives []schedule.Slot `json:"alternatives,omitempty"`
}

func missingInfo(field, message string) *Rejection {
	return &Rejection{Kind: KindMissingInfo, Field: field, Message: message}
}

func reject(kind RejectionKind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}
