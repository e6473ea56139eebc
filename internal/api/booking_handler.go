package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/observability/metrics"
	"github.com/dentalops/booking-engine/internal/schedule"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// BookingService is the slice of the booking pipeline the HTTP surface uses.
type BookingService interface {
	Book(ctx context.Context, req *booking.Request) (*booking.Confirmation, *booking.Rejection, error)
	Lookup(ctx context.Context, reference, phone string) (*booking.Confirmation, *booking.Rejection, error)
	Cancel(ctx context.Context, reference, phone string) (*booking.Confirmation, *booking.Rejection, error)
	Reschedule(ctx context.Context, reference, phone, newDate, newTime string) (*booking.Confirmation, *booking.Rejection, error)
}

// AvailabilitySource resolves a doctor's open slots for one day.
type AvailabilitySource interface {
	ResolveDay(ctx context.Context, doctorID uuid.UUID, day time.Time, st clinic.Settings) (*schedule.DayAvailability, error)
}

// SettingsSource loads the clinic settings snapshot.
type SettingsSource interface {
	Get(ctx context.Context) (clinic.Settings, error)
}

// BookingHandler exposes the booking pipeline over REST. It is the web-chat
// channel's backend and the shared substrate the other channel adapters
// build on.
type BookingHandler struct {
	svc      BookingService
	avail    AvailabilitySource
	settings SettingsSource
	effects  *booking.EffectRunner
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewBookingHandler creates the public booking handler.
func NewBookingHandler(svc BookingService, avail AvailabilitySource, settings SettingsSource, effects *booking.EffectRunner, m *metrics.BookingMetrics, logger *logging.Logger) *BookingHandler {
	if svc == nil {
		panic("api: booking service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{
		svc:      svc,
		avail:    avail,
		settings: settings,
		effects:  effects,
		metrics:  m,
		logger:   logger.Component("api.booking"),
	}
}

// drain hands post-commit events to the effect runner off the request path.
func (h *BookingHandler) drain(events []booking.Event) {
	if h.effects == nil || len(events) == 0 {
		return
	}
	go h.effects.Drain(context.Background(), events)
}

// CreateBooking handles POST /api/bookings.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Source == "" {
		req.Source = appointments.SourceChat
	}

	conf, rej, err := h.svc.Book(r.Context(), &req)
	if err != nil {
		h.logger.Error("booking failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondRejection(w, rej)
		return
	}

	h.drain(conf.Events)
	respondJSON(w, http.StatusCreated, conf)
}

// GetAvailability handles GET /api/availability?doctor_id=&date=.
func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "doctor_id must be a valid UUID")
		return
	}
	dateStr := r.URL.Query().Get("date")

	st, err := h.settings.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, st.Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveAvailability()
	}
	result, err := h.avail.ResolveDay(r.Context(), doctorID, day, st)
	if err != nil {
		h.logger.Error("availability resolution failed", "doctor_id", doctorID, "date", dateStr, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"doctor_id":       doctorID,
		"date":            dateStr,
		"slots":           result.Slots,
		"blocked_periods": result.Blocked,
	})
}

// LookupAppointment handles GET /api/appointments/{reference}?phone=.
func (h *BookingHandler) LookupAppointment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	phone := r.URL.Query().Get("phone")

	conf, rej, err := h.svc.Lookup(r.Context(), reference, phone)
	if err != nil {
		h.logger.Error("lookup failed", "reference", reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondRejection(w, rej)
		return
	}
	respondJSON(w, http.StatusOK, conf)
}

type lifecycleRequest struct {
	Phone string `json:"phone"`
	Date  string `json:"date,omitempty"`
	Time  string `json:"time,omitempty"`
}

// CancelAppointment handles POST /api/appointments/{reference}/cancel.
func (h *BookingHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conf, rej, err := h.svc.Cancel(r.Context(), reference, req.Phone)
	if err != nil {
		h.logger.Error("cancel failed", "reference", reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondRejection(w, rej)
		return
	}

	h.drain(conf.Events)
	respondJSON(w, http.StatusOK, conf)
}

// RescheduleAppointment handles POST /api/appointments/{reference}/reschedule.
func (h *BookingHandler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conf, rej, err := h.svc.Reschedule(r.Context(), reference, req.Phone, req.Date, req.Time)
	if err != nil {
		h.logger.Error("reschedule failed", "reference", reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondRejection(w, rej)
		return
	}

	h.drain(conf.Events)
	respondJSON(w, http.StatusOK, conf)
}
