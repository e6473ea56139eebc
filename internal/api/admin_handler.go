package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/doctors"
	"github.com/dentalops/booking-engine/internal/reminders"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// SettingsStore reads and writes the clinic configuration.
type SettingsStore interface {
	Get(ctx context.Context) (clinic.Settings, error)
	Update(ctx context.Context, settings clinic.Settings) error
}

// DoctorAdmin is the roster and blocks management surface.
type DoctorAdmin interface {
	Get(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
	ListActive(ctx context.Context) ([]doctors.Doctor, error)
	Create(ctx context.Context, d *doctors.Doctor) error
	ListBlocksForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]doctors.AvailabilityBlock, error)
	CreateBlock(ctx context.Context, b *doctors.AvailabilityBlock) error
	DeleteBlock(ctx context.Context, id uuid.UUID) error
}

// AppointmentAdmin reads the schedule and completes appointments.
type AppointmentAdmin interface {
	ListForDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointments.Appointment, error)
}

// Completer marks appointments completed after the visit.
type Completer interface {
	Complete(ctx context.Context, reference string) (*appointments.Appointment, *booking.Rejection, error)
}

// ReminderLog exposes failed reminders for the front desk to chase by hand.
type ReminderLog interface {
	ListFailed(ctx context.Context, limit int) ([]reminders.Reminder, error)
}

// AdminHandler is the staff-facing management surface: clinic settings,
// the doctor roster and their blocks, the day schedule, completion, and the
// failed-reminder log.
type AdminHandler struct {
	settings  SettingsStore
	doctors   DoctorAdmin
	appts     AppointmentAdmin
	completer Completer
	reminders ReminderLog
	logger    *logging.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(settings SettingsStore, doctorStore DoctorAdmin, appts AppointmentAdmin, completer Completer, reminderLog ReminderLog, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		settings:  settings,
		doctors:   doctorStore,
		appts:     appts,
		completer: completer,
		reminders: reminderLog,
		logger:    logger.Component("api.admin"),
	}
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// UpdateSettings handles PUT /admin/settings. The body is a full settings
// document; validation rejects inverted hours and unknown weekdays.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var st clinic.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := st.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.settings.Update(r.Context(), st); err != nil {
		h.logger.Error("failed to update settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ListDoctors handles GET /admin/doctors.
func (h *AdminHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	list, err := h.doctors.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to list doctors", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"doctors": list})
}

type createDoctorRequest struct {
	Name        string `json:"name"`
	CalendarRef string `json:"calendar_ref,omitempty"`
}

// CreateDoctor handles POST /admin/doctors.
func (h *AdminHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req createDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	d := &doctors.Doctor{Name: req.Name, IsActive: true, CalendarRef: req.CalendarRef}
	if err := h.doctors.Create(r.Context(), d); err != nil {
		h.logger.Error("failed to create doctor", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// GetDoctorSchedule handles GET /admin/doctors/{doctorID}/schedule?date=.
// Returns the doctor's appointments and blocks for the clinic-local day.
func (h *AdminHandler) GetDoctorSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "doctorID must be a valid UUID")
		return
	}

	st, err := h.settings.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), st.Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if _, err := h.doctors.Get(r.Context(), doctorID); err != nil {
		if errors.Is(err, doctors.ErrNotFound) {
			respondError(w, http.StatusNotFound, "doctor not found")
			return
		}
		h.logger.Error("failed to load doctor", "doctor_id", doctorID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	appts, err := h.appts.ListForDoctorRange(r.Context(), doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		h.logger.Error("failed to list appointments", "doctor_id", doctorID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	blocks, err := h.doctors.ListBlocksForDay(r.Context(), doctorID, day)
	if err != nil {
		h.logger.Error("failed to list blocks", "doctor_id", doctorID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"doctor_id":    doctorID,
		"date":         day.Format("2006-01-02"),
		"appointments": appts,
		"blocks":       blocks,
	})
}

type createBlockRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

// CreateBlock handles POST /admin/doctors/{doctorID}/blocks.
func (h *AdminHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "doctorID must be a valid UUID")
		return
	}
	var req createBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	start, err1 := clinic.MinuteOfDay(req.StartTime)
	end, err2 := clinic.MinuteOfDay(req.EndTime)
	if err1 != nil || err2 != nil || start >= end {
		respondError(w, http.StatusBadRequest, "start_time and end_time must be HH:MM with start before end")
		return
	}

	b := &doctors.AvailabilityBlock{
		DoctorID:  doctorID,
		Date:      day,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	}
	if err := h.doctors.CreateBlock(r.Context(), b); err != nil {
		h.logger.Error("failed to create block", "doctor_id", doctorID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

// DeleteBlock handles DELETE /admin/blocks/{blockID}.
func (h *AdminHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "blockID must be a valid UUID")
		return
	}
	if err := h.doctors.DeleteBlock(r.Context(), blockID); err != nil {
		if errors.Is(err, doctors.ErrNotFound) {
			respondError(w, http.StatusNotFound, "block not found")
			return
		}
		h.logger.Error("failed to delete block", "block_id", blockID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteAppointment handles POST /admin/appointments/{reference}/complete.
func (h *AdminHandler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	appt, rej, err := h.completer.Complete(r.Context(), reference)
	if err != nil {
		h.logger.Error("failed to complete appointment", "reference", reference, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rej != nil {
		respondRejection(w, rej)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

// ListFailedReminders handles GET /admin/reminders/failed.
func (h *AdminHandler) ListFailedReminders(w http.ResponseWriter, r *http.Request) {
	list, err := h.reminders.ListFailed(r.Context(), 100)
	if err != nil {
		h.logger.Error("failed to list failed reminders", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reminders": list})
}
