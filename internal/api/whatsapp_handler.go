package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/internal/doctors"
	"github.com/dentalops/booking-engine/internal/sessions"
	"github.com/dentalops/booking-engine/pkg/logging"
)

const whatsappChannel = "whatsapp"

// DoctorDirectory lists the doctors a patient can pick from.
type DoctorDirectory interface {
	ListActive(ctx context.Context) ([]doctors.Doctor, error)
}

// SessionStore persists the per-sender conversation state.
type SessionStore interface {
	Get(ctx context.Context, channel, identity string) (*sessions.Session, error)
	Save(ctx context.Context, sess *sessions.Session) error
	Clear(ctx context.Context, channel, identity string) error
}

// WhatsAppHandler walks a sender through the booking flow one message at a
// time. The sender's WhatsApp number doubles as the patient phone, so
// lifecycle commands (status, cancel) authorize against it directly.
type WhatsAppHandler struct {
	svc      BookingService
	doctors  DoctorDirectory
	sessions SessionStore
	effects  *booking.EffectRunner
	logger   *logging.Logger
}

// NewWhatsAppHandler creates the WhatsApp channel adapter.
func NewWhatsAppHandler(svc BookingService, dir DoctorDirectory, store SessionStore, effects *booking.EffectRunner, logger *logging.Logger) *WhatsAppHandler {
	if svc == nil {
		panic("api: booking service required")
	}
	if store == nil {
		panic("api: session store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppHandler{
		svc:      svc,
		doctors:  dir,
		sessions: store,
		effects:  effects,
		logger:   logger.Component("api.whatsapp"),
	}
}

type whatsappInbound struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type whatsappOutbound struct {
	To    string `json:"to"`
	Reply string `json:"reply"`
}

// HandleMessage handles POST /channels/whatsapp/webhook. The gateway in
// front of us normalizes provider payloads to {from, text}; the response
// body carries the reply to deliver.
func (h *WhatsAppHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var in whatsappInbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	phone := strings.TrimPrefix(strings.TrimSpace(in.From), "whatsapp:")
	text := strings.TrimSpace(in.Text)
	if phone == "" {
		respondError(w, http.StatusBadRequest, "from is required")
		return
	}

	reply := h.converse(r.Context(), phone, text)
	respondJSON(w, http.StatusOK, whatsappOutbound{To: in.From, Reply: reply})
}

func (h *WhatsAppHandler) converse(ctx context.Context, phone, text string) string {
	lower := strings.ToLower(text)

	switch {
	case strings.HasPrefix(lower, "status "):
		return h.lookup(ctx, phone, strings.TrimSpace(text[len("status "):]))
	case strings.HasPrefix(lower, "cancel "):
		return h.cancel(ctx, phone, strings.TrimSpace(text[len("cancel "):]))
	case lower == "stop" || lower == "restart":
		_ = h.sessions.Clear(ctx, whatsappChannel, phone)
		return "Okay, I've cleared that. Say \"book\" whenever you'd like to start again."
	}

	sess, err := h.sessions.Get(ctx, whatsappChannel, phone)
	if errors.Is(err, sessions.ErrNotFound) {
		if lower == "book" || strings.Contains(lower, "appointment") {
			sess = &sessions.Session{Channel: whatsappChannel, Identity: phone, Phone: phone}
			if err := h.sessions.Save(ctx, sess); err != nil {
				h.logger.Error("failed to start session", "error", err)
				return somethingWentWrong
			}
			return "Hi! Let's get you booked in. What's your full name?"
		}
		return "Hi! I can book dental appointments. Say \"book\" to start, " +
			"\"status <reference>\" to check one, or \"cancel <reference>\" to cancel."
	}
	if err != nil {
		h.logger.Error("failed to load session", "error", err)
		return somethingWentWrong
	}

	return h.advance(ctx, sess, text)
}

const somethingWentWrong = "Sorry, something went wrong on our side. Please try again in a moment."

// advance fills the next missing field from the message, then either asks
// for the following one or submits the booking.
func (h *WhatsAppHandler) advance(ctx context.Context, sess *sessions.Session, text string) string {
	switch {
	case sess.PatientName == "":
		sess.PatientName = text
	case sess.Email == "":
		sess.Email = text
	case sess.Service == "":
		sess.Service = text
	case sess.DoctorID == "":
		if reply := h.pickDoctor(ctx, sess, text); reply != "" {
			return reply
		}
	case sess.Date == "":
		if _, err := time.Parse("2006-01-02", text); err != nil {
			return "I need the date as YYYY-MM-DD, for example 2026-09-03. Which date works?"
		}
		sess.Date = text
	case sess.Time == "":
		if _, err := time.Parse("15:04", text); err != nil {
			return "I need the time as HH:MM in 24-hour clock, for example 14:30. What time works?"
		}
		sess.Time = text
	}

	if next := h.nextPrompt(ctx, sess); next != "" {
		if err := h.sessions.Save(ctx, sess); err != nil {
			h.logger.Error("failed to save session", "error", err)
			return somethingWentWrong
		}
		return next
	}

	return h.submit(ctx, sess)
}

func (h *WhatsAppHandler) nextPrompt(ctx context.Context, sess *sessions.Session) string {
	switch {
	case sess.PatientName == "":
		return "What's your full name?"
	case sess.Email == "":
		return "What email should we send the confirmation to?"
	case sess.Service == "":
		return "What do you need? For example: cleaning, checkup, filling."
	case sess.DoctorID == "":
		return h.doctorPrompt(ctx)
	case sess.Date == "":
		return "Which date? Please use YYYY-MM-DD."
	case sess.Time == "":
		return "What time? Please use HH:MM, 24-hour clock."
	}
	return ""
}

func (h *WhatsAppHandler) doctorPrompt(ctx context.Context) string {
	list, err := h.listDoctors(ctx)
	if err != nil {
		return "Which doctor would you like to see?"
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "Which doctor would you like to see? Reply with a number:")
	for i, d := range list {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, d.Name))
	}
	return strings.Join(lines, "\n")
}

// pickDoctor resolves a numbered choice or a name fragment. Returns a
// re-prompt when the message matches nothing.
func (h *WhatsAppHandler) pickDoctor(ctx context.Context, sess *sessions.Session, text string) string {
	list, err := h.listDoctors(ctx)
	if err != nil || len(list) == 0 {
		return somethingWentWrong
	}
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
		if n >= 1 && n <= len(list) {
			sess.DoctorID = list[n-1].ID.String()
			return ""
		}
		return h.doctorPrompt(ctx)
	}
	needle := strings.ToLower(text)
	for _, d := range list {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			sess.DoctorID = d.ID.String()
			return ""
		}
	}
	return h.doctorPrompt(ctx)
}

func (h *WhatsAppHandler) listDoctors(ctx context.Context) ([]doctors.Doctor, error) {
	if h.doctors == nil {
		return nil, errors.New("api: doctor directory not configured")
	}
	return h.doctors.ListActive(ctx)
}

func (h *WhatsAppHandler) submit(ctx context.Context, sess *sessions.Session) string {
	doctorID, err := uuid.Parse(sess.DoctorID)
	if err != nil {
		sess.DoctorID = ""
		_ = h.sessions.Save(ctx, sess)
		return h.doctorPrompt(ctx)
	}

	conf, rej, err := h.svc.Book(ctx, &booking.Request{
		DoctorID:     doctorID,
		Date:         sess.Date,
		Time:         sess.Time,
		Service:      sess.Service,
		PatientName:  sess.PatientName,
		PatientPhone: sess.Phone,
		PatientEmail: sess.Email,
		Source:       appointments.SourceWhatsApp,
	})
	if err != nil {
		h.logger.Error("whatsapp booking failed", "error", err)
		return somethingWentWrong
	}
	if rej != nil {
		return h.handleRejection(ctx, sess, rej)
	}

	_ = h.sessions.Clear(ctx, whatsappChannel, sess.Identity)
	if h.effects != nil && len(conf.Events) > 0 {
		go h.effects.Drain(context.Background(), conf.Events)
	}
	return fmt.Sprintf(
		"Done! You're booked for %s on %s at %s. Your reference is %s — keep it for any changes.",
		conf.Appointment.Service, sess.Date, sess.Time, conf.Appointment.Reference)
}

// handleRejection re-opens the slot fields so the sender can answer the
// follow-up question without restarting the whole flow.
func (h *WhatsAppHandler) handleRejection(ctx context.Context, sess *sessions.Session, rej *booking.Rejection) string {
	switch rej.Kind {
	case booking.KindSlotUnavailable, booking.KindSlotUnavailableWithAlternatives, booking.KindDoctorBlocked, booking.KindOutsideWorkingHours:
		sess.Time = ""
	case booking.KindNotWorkingDay, booking.KindPastDate:
		sess.Date, sess.Time = "", ""
	case booking.KindMissingInfo:
		switch rej.Field {
		case "patient_name":
			sess.PatientName = ""
		case "patient_email":
			sess.Email = ""
		}
	}
	if err := h.sessions.Save(ctx, sess); err != nil {
		h.logger.Error("failed to save session", "error", err)
	}

	reply := rej.Message
	if len(rej.Alternatives) > 0 {
		times := make([]string, 0, len(rej.Alternatives))
		for _, s := range rej.Alternatives {
			times = append(times, fmt.Sprintf("%s %s", s.Date, s.Time))
		}
		reply += " Nearest openings: " + strings.Join(times, ", ") + ". Reply with a time (and date if different) to take one."
	}
	return reply
}

func (h *WhatsAppHandler) lookup(ctx context.Context, phone, reference string) string {
	conf, rej, err := h.svc.Lookup(ctx, reference, phone)
	if err != nil {
		h.logger.Error("whatsapp lookup failed", "reference", reference, "error", err)
		return somethingWentWrong
	}
	if rej != nil {
		return rej.Message
	}
	return fmt.Sprintf("Your %s appointment %s is %s, scheduled for %s.",
		conf.Appointment.Service, conf.Appointment.Reference, conf.Appointment.Status,
		conf.Appointment.StartsAt.Format("2006-01-02 15:04"))
}

func (h *WhatsAppHandler) cancel(ctx context.Context, phone, reference string) string {
	conf, rej, err := h.svc.Cancel(ctx, reference, phone)
	if err != nil {
		h.logger.Error("whatsapp cancel failed", "reference", reference, "error", err)
		return somethingWentWrong
	}
	if rej != nil {
		return rej.Message
	}
	if h.effects != nil && len(conf.Events) > 0 {
		go h.effects.Drain(context.Background(), conf.Events)
	}
	return fmt.Sprintf("Appointment %s is cancelled. Say \"book\" any time to rebook.", conf.Appointment.Reference)
}
