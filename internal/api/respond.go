package api

import (
	"encoding/json"
	"net/http"

	"github.com/dentalops/booking-engine/internal/booking"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// rejectionStatus maps a booking rejection to the HTTP status the REST
// surface reports. The rejection body itself is returned verbatim so the
// channel layer can speak it to the patient.
func rejectionStatus(rej *booking.Rejection) int {
	switch rej.Kind {
	case booking.KindMissingInfo:
		return http.StatusBadRequest
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindAuthorizationFailure:
		return http.StatusForbidden
	case booking.KindSlotUnavailable, booking.KindSlotUnavailableWithAlternatives,
		booking.KindDoctorBlocked, booking.KindAlreadyCancelled:
		return http.StatusConflict
	default:
		// past_date, outside_working_hours, not_working_day
		return http.StatusUnprocessableEntity
	}
}

func respondRejection(w http.ResponseWriter, rej *booking.Rejection) {
	respondJSON(w, rejectionStatus(rej), map[string]any{"rejection": rej})
}
