// Package api wires the booking engine's HTTP surface: the public REST
// endpoints backing the web-chat widget, the WhatsApp and voice channel
// adapters, and the staff admin routes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dentalops/booking-engine/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Booking            *BookingHandler
	Voice              *VoiceHandler
	WhatsApp           *WhatsAppHandler
	Admin              *AdminHandler
	AdminToken         string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Booking != nil {
		r.Route("/api", func(api chi.Router) {
			api.Post("/bookings", cfg.Booking.CreateBooking)
			api.Get("/availability", cfg.Booking.GetAvailability)
			api.Get("/appointments/{reference}", cfg.Booking.LookupAppointment)
			api.Post("/appointments/{reference}/cancel", cfg.Booking.CancelAppointment)
			api.Post("/appointments/{reference}/reschedule", cfg.Booking.RescheduleAppointment)
		})
	}

	r.Route("/channels", func(channels chi.Router) {
		if cfg.WhatsApp != nil {
			channels.Post("/whatsapp/webhook", cfg.WhatsApp.HandleMessage)
		}
		if cfg.Voice != nil {
			channels.Route("/voice", func(voice chi.Router) {
				voice.Post("/bookings", cfg.Voice.HandleBooking)
				voice.Post("/lookup", cfg.Voice.HandleLookup)
				voice.Post("/cancel", cfg.Voice.HandleCancel)
			})
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(RequireAdminToken(cfg.AdminToken))
			admin.Get("/settings", cfg.Admin.GetSettings)
			admin.Put("/settings", cfg.Admin.UpdateSettings)
			admin.Get("/doctors", cfg.Admin.ListDoctors)
			admin.Post("/doctors", cfg.Admin.CreateDoctor)
			admin.Get("/doctors/{doctorID}/schedule", cfg.Admin.GetDoctorSchedule)
			admin.Post("/doctors/{doctorID}/blocks", cfg.Admin.CreateBlock)
			admin.Delete("/blocks/{blockID}", cfg.Admin.DeleteBlock)
			admin.Post("/appointments/{reference}/complete", cfg.Admin.CompleteAppointment)
			admin.Get("/reminders/failed", cfg.Admin.ListFailedReminders)
		})
	}

	return r
}
