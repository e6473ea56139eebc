package doctors

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is a bookable practitioner. CalendarRef is the external-calendar
// linkage token; the engine passes it through without interpreting it.
type Doctor struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	CalendarRef string    `json:"calendar_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AvailabilityBlock is a doctor-specific exception layered on top of
// clinic-wide hours. Available=false marks the interval as blocked.
type AvailabilityBlock struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      time.Time `json:"date"` // date component only, clinic-local
	StartTime string    `json:"start_time"` // "HH:MM"
	EndTime   string    `json:"end_time"`   // "HH:MM"
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
