package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// VoiceHandler adapts the booking pipeline for the voice gateway. The
// speech layer upstream has already transcribed the caller; this handler
// normalizes spoken artifacts (spaced-out references, dashed phone numbers)
// and returns a `speech` string ready to be read back to the caller.
type VoiceHandler struct {
	svc     BookingService
	effects *booking.EffectRunner
	logger  *logging.Logger
}

// NewVoiceHandler creates the voice channel adapter.
func NewVoiceHandler(svc BookingService, effects *booking.EffectRunner, logger *logging.Logger) *VoiceHandler {
	if svc == nil {
		panic("api: booking service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceHandler{svc: svc, effects: effects, logger: logger.Component("api.voice")}
}

func (h *VoiceHandler) drain(events []booking.Event) {
	if h.effects == nil || len(events) == 0 {
		return
	}
	go h.effects.Drain(context.Background(), events)
}

type voiceBookingRequest struct {
	CallerPhone string `json:"caller_phone"`
	PatientName string `json:"patient_name"`
	Email       string `json:"email"`
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Service     string `json:"service"`
}

type voiceLifecycleRequest struct {
	CallerPhone string `json:"caller_phone"`
	Reference   string `json:"reference"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
}

type voiceResponse struct {
	Speech    string `json:"speech"`
	Reference string `json:"reference,omitempty"`
	Booked    bool   `json:"booked,omitempty"`
}

// normalizeSpokenReference strips the spaces and dashes a transcription
// layer inserts when a caller spells out a reference.
func normalizeSpokenReference(raw string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return -1
		}
		return r
	}, raw))
}

// spellOut renders a reference letter by letter for text-to-speech.
func spellOut(reference string) string {
	parts := make([]string, 0, len(reference))
	for _, r := range reference {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}

func speakRejection(rej *booking.Rejection) string {
	speech := rej.Message
	if len(rej.Alternatives) > 0 {
		times := make([]string, 0, len(rej.Alternatives))
		for _, s := range rej.Alternatives {
			times = append(times, fmt.Sprintf("%s at %s", s.Date, s.Time))
		}
		speech += " The nearest openings are " + strings.Join(times, ", ") + "."
	}
	return speech
}

// HandleBooking handles POST /channels/voice/bookings.
func (h *VoiceHandler) HandleBooking(w http.ResponseWriter, r *http.Request) {
	var req voiceBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	bookReq := booking.Request{
		Date:         strings.TrimSpace(req.Date),
		Time:         strings.TrimSpace(req.Time),
		Service:      strings.TrimSpace(req.Service),
		PatientName:  strings.TrimSpace(req.PatientName),
		PatientPhone: strings.TrimSpace(req.CallerPhone),
		PatientEmail: strings.TrimSpace(req.Email),
		Source:       appointments.SourceVoice,
	}
	if id, err := uuid.Parse(strings.TrimSpace(req.DoctorID)); err == nil {
		bookReq.DoctorID = id
	}

	conf, rej, err := h.svc.Book(r.Context(), &bookReq)
	if err != nil {
		h.logger.Error("voice booking failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondJSON(w, http.StatusOK, voiceResponse{Speech: speakRejection(rej)})
		return
	}

	h.drain(conf.Events)
	ref := conf.Appointment.Reference
	respondJSON(w, http.StatusOK, voiceResponse{
		Speech: fmt.Sprintf(
			"You're booked for %s on %s. Your reference is %s. Let me spell that: %s.",
			conf.Appointment.Service,
			conf.Appointment.StartsAt.Format("Monday, January 2 at 15:04"),
			ref, spellOut(ref)),
		Reference: ref,
		Booked:    true,
	})
}

// HandleLookup handles POST /channels/voice/lookup.
func (h *VoiceHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	var req voiceLifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reference := normalizeSpokenReference(req.Reference)
	conf, rej, err := h.svc.Lookup(r.Context(), reference, req.CallerPhone)
	if err != nil {
		h.logger.Error("voice lookup failed", "reference", reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondJSON(w, http.StatusOK, voiceResponse{Speech: speakRejection(rej)})
		return
	}

	respondJSON(w, http.StatusOK, voiceResponse{
		Speech: fmt.Sprintf("Your %s appointment is on %s, status %s.",
			conf.Appointment.Service,
			conf.Appointment.StartsAt.Format("Monday, January 2 at 15:04"),
			conf.Appointment.Status),
		Reference: conf.Appointment.Reference,
	})
}

// HandleCancel handles POST /channels/voice/cancel.
func (h *VoiceHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req voiceLifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reference := normalizeSpokenReference(req.Reference)
	conf, rej, err := h.svc.Cancel(r.Context(), reference, req.CallerPhone)
	if err != nil {
		h.logger.Error("voice cancel failed", "reference", reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondJSON(w, http.StatusOK, voiceResponse{Speech: speakRejection(rej)})
		return
	}

	h.drain(conf.Events)
	respondJSON(w, http.StatusOK, voiceResponse{
		Speech:    "Your appointment has been cancelled. Thanks for letting us know.",
		Reference: conf.Appointment.Reference,
	})
}
