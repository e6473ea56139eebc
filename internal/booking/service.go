// Package booking implements the shared availability validation pipeline
// and the appointment lifecycle that every channel adapter calls into.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/doctors"
	"github.com/dentalops/booking-engine/internal/observability/metrics"
	"github.com/dentalops/booking-engine/internal/patients"
	"github.com/dentalops/booking-engine/internal/schedule"
	"github.com/dentalops/booking-engine/pkg/logging"
)

var bookingTracer = otel.Tracer("bookingengine.internal.booking")

// errSlotConflict signals a double-booking detected inside the doctor lock.
var errSlotConflict = errors.New("booking: slot conflict")

const referenceRetries = 3

// Request is the canonical booking command every channel adapter produces.
type Request struct {
	DoctorID     uuid.UUID           `json:"doctor_id"`
	Date         string              `json:"date"` // "2006-01-02", clinic-local
	Time         string              `json:"time"` // "15:04", clinic-local
	Service      string              `json:"service"`
	PatientName  string              `json:"patient_name"`
	PatientPhone string              `json:"patient_phone"`
	PatientEmail string              `json:"patient_email"`
	Notes        string              `json:"notes,omitempty"`
	Source       appointments.Source `json:"source"`
}

// Confirmation is the successful outcome of a booking, reschedule, cancel
// or lookup. Events carry the post-commit side effects for the infra layer
// to drain; they are empty for lookups.
type Confirmation struct {
	Appointment appointments.Appointment `json:"appointment"`
	Patient     patients.Patient         `json:"patient"`
	Events      []Event                  `json:"-"`
}

// SettingsSource loads the clinic settings snapshot.
type SettingsSource interface {
	Get(ctx context.Context) (clinic.Settings, error)
}

// DoctorSource loads doctors.
type DoctorSource interface {
	Get(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	Create(ctx context.Context, a *appointments.Appointment) error
	GetByReference(ctx context.Context, reference string) (*appointments.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, startsAt time.Time, duration int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointments.Status) error
}

// PatientStore upserts and loads patients.
type PatientStore interface {
	Upsert(ctx context.Context, name, phone, email string) (*patients.Patient, error)
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

// ReminderPlanner regenerates or purges the reminder rows that track an
// appointment. Failures are logged, never surfaced to the patient.
type ReminderPlanner interface {
	Regenerate(ctx context.Context, appointmentID uuid.UUID, startsAt time.Time) error
	Purge(ctx context.Context, appointmentID uuid.UUID) error
}

// ServiceConfig wires the booking service dependencies.
type ServiceConfig struct {
	Settings  SettingsSource
	Doctors   DoctorSource
	Appts     AppointmentStore
	Patients  PatientStore
	Resolver  *schedule.Resolver
	Reminders ReminderPlanner
	Locker    DoctorLocker
	Metrics   *metrics.BookingMetrics
	Logger    *logging.Logger

	// Alternative-slot search policy.
	SearchHorizonDays   int
	MaxAlternativeSlots int

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Service runs the validation pipeline and owns appointment state
// transitions.
type Service struct {
	settings  SettingsSource
	doctors   DoctorSource
	appts     AppointmentStore
	patients  PatientStore
	resolver  *schedule.Resolver
	reminders ReminderPlanner
	locker    DoctorLocker
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger

	horizonDays  int
	maxAlternate int
	now          func() time.Time
}

// NewService constructs the booking service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Settings == nil || cfg.Doctors == nil || cfg.Appts == nil || cfg.Patients == nil || cfg.Resolver == nil {
		panic("booking: settings, doctors, appointments, patients and resolver are required")
	}
	if cfg.Locker == nil {
		cfg.Locker = NoopLocker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SearchHorizonDays <= 0 {
		cfg.SearchHorizonDays = 2
	}
	if cfg.MaxAlternativeSlots <= 0 {
		cfg.MaxAlternativeSlots = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		settings:     cfg.Settings,
		doctors:      cfg.Doctors,
		appts:        cfg.Appts,
		patients:     cfg.Patients,
		resolver:     cfg.Resolver,
		reminders:    cfg.Reminders,
		locker:       cfg.Locker,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		horizonDays:  cfg.SearchHorizonDays,
		maxAlternate: cfg.MaxAlternativeSlots,
		now:          cfg.Now,
	}
}

// slotCheck carries the parsed and validated request time.
type slotCheck struct {
	settings    clinic.Settings
	doctor      *doctors.Doctor
	dayStart    time.Time // clinic-local midnight of the requested day
	startMinute int
	startsAt    time.Time // absolute instant
}

// Book runs the full pipeline: identity, temporal validity, working hours,
// working day, doctor blocks, double-booking conflict, then commit. Checks
// short-circuit in that order; alternatives are only computed for conflicts.
func (s *Service) Book(ctx context.Context, req *Request) (*Confirmation, *Rejection, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(attribute.String("booking.doctor_id", req.DoctorID.String()))

	if rej := validateIdentity(req); rej != nil {
		return nil, s.rejected(rej), nil
	}

	check, rej, err := s.validateSlot(ctx, req.DoctorID, req.Date, req.Time)
	if err != nil {
		return nil, nil, err
	}
	if rej != nil {
		return nil, s.rejected(rej), nil
	}

	var appt *appointments.Appointment
	var patient *patients.Patient
	err = s.locker.WithDoctorLock(ctx, req.DoctorID, func(ctx context.Context) error {
		conflict, err := s.resolver.HasConflict(ctx, req.DoctorID, check.dayStart, check.startMinute, check.settings.AppointmentDuration, check.settings, uuid.Nil)
		if err != nil {
			return err
		}
		if conflict {
			return errSlotConflict
		}

		patient, err = s.patients.Upsert(ctx, req.PatientName, req.PatientPhone, req.PatientEmail)
		if err != nil {
			return err
		}

		appt, err = s.createWithFreshReference(ctx, req, check, patient.ID)
		return err
	})
	if err != nil {
		if rej := s.conflictRejection(ctx, req.DoctorID, check, err); rej != nil {
			return nil, rej, nil
		}
		return nil, nil, fmt.Errorf("booking: book: %w", err)
	}

	s.scheduleReminders(ctx, appt)
	s.observe("success")
	s.logger.Info("appointment booked",
		"reference", appt.Reference,
		"doctor_id", appt.DoctorID,
		"starts_at", appt.StartsAt,
		"source", appt.Source,
	)

	return &Confirmation{
		Appointment: *appt,
		Patient:     *patient,
		Events: []Event{{
			Type:        EventCreated,
			Appointment: *appt,
			Patient:     *patient,
			DoctorName:  check.doctor.Name,
			CalendarRef: check.doctor.CalendarRef,
		}},
	}, nil, nil
}

// validateSlot runs the temporal, hours, working-day and block checks
// (pipeline steps 2 through 5) shared by Book and Reschedule.
func (s *Service) validateSlot(ctx context.Context, doctorID uuid.UUID, dateStr, timeStr string) (*slotCheck, *Rejection, error) {
	doctor, err := s.doctors.Get(ctx, doctorID)
	if errors.Is(err, doctors.ErrNotFound) {
		return nil, reject(KindNotFound, "I couldn't find that doctor — could you pick one from the list?"), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("booking: load doctor: %w", err)
	}
	if !doctor.IsActive {
		return nil, reject(KindNotFound, fmt.Sprintf("%s is not currently taking bookings — could you pick another doctor?", doctor.Name)), nil
	}

	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("booking: load settings: %w", err)
	}
	loc := st.Location()

	dayStart, err := time.ParseInLocation(time.DateOnly, dateStr, loc)
	if err != nil {
		return nil, missingInfo("date", "I didn't catch the date — could you give it as year-month-day, like 2026-09-15?"), nil
	}
	startMinute, err := clinic.MinuteOfDay(timeStr)
	if err != nil {
		return nil, missingInfo("time", "I didn't catch the time — could you give it as hours:minutes, like 14:30?"), nil
	}
	startsAt := dayStart.Add(time.Duration(startMinute) * time.Minute)

	now := s.now().In(loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if dayStart.Before(todayStart) {
		return nil, reject(KindPastDate, "That date has already passed — which day would work for you instead?"), nil
	}
	if dayStart.Equal(todayStart) && startsAt.Before(now) {
		return nil, reject(KindPastDate, "That time has already passed today — would a later time work?"), nil
	}

	open, err := st.OpenMinute()
	if err != nil {
		return nil, nil, err
	}
	closeAt, err := st.CloseMinute()
	if err != nil {
		return nil, nil, err
	}
	if startMinute < open || startMinute+st.AppointmentDuration > closeAt {
		return nil, reject(KindOutsideWorkingHours,
			fmt.Sprintf("We're open %s to %s — could you pick a time inside those hours?", st.OpenTime, st.CloseTime)), nil
	}

	if !st.IsWorkingDay(dayStart.Weekday()) {
		return nil, reject(KindNotWorkingDay,
			fmt.Sprintf("We're closed on %ss — which other day would suit you?", dayStart.Weekday())), nil
	}

	block, err := s.resolver.BlockOverlap(ctx, doctorID, dayStart, startMinute, st.AppointmentDuration)
	if err != nil {
		return nil, nil, fmt.Errorf("booking: check blocks: %w", err)
	}
	if block != nil {
		msg := fmt.Sprintf("%s is unavailable %s to %s", doctor.Name, block.Start, block.End)
		if block.Reason != "" {
			msg += " (" + block.Reason + ")"
		}
		msg += " — could you pick a different time?"
		return nil, reject(KindDoctorBlocked, msg), nil
	}

	return &slotCheck{
		settings:    st,
		doctor:      doctor,
		dayStart:    dayStart,
		startMinute: startMinute,
		startsAt:    startsAt,
	}, nil, nil
}

// conflictRejection maps conflict-shaped errors from the locked section to
// a rejection with alternatives; other errors return nil.
func (s *Service) conflictRejection(ctx context.Context, doctorID uuid.UUID, check *slotCheck, err error) *Rejection {
	switch {
	case errors.Is(err, errSlotConflict), errors.Is(err, appointments.ErrSlotTaken):
		alternatives, altErr := s.resolver.FindAvailableSlots(ctx, doctorID, check.dayStart, check.settings, s.horizonDays, s.maxAlternate)
		if altErr != nil {
			s.logger.Error("alternative slot search failed", "doctor_id", doctorID, "error", altErr)
		}
		if len(alternatives) > 0 {
			rej := reject(KindSlotUnavailableWithAlternatives,
				"That slot has just been taken — here are the nearest openings.")
			rej.Alternatives = alternatives
			return s.rejected(rej)
		}
		return s.rejected(reject(KindSlotUnavailable,
			"That slot is taken and I couldn't find another opening in the next two days — could you try a later date?"))
	case errors.Is(err, ErrDoctorBusy):
		return s.rejected(reject(KindSlotUnavailable,
			"Another booking for this doctor is being confirmed right now — please try again in a moment."))
	}
	return nil
}

func (s *Service) createWithFreshReference(ctx context.Context, req *Request, check *slotCheck, patientID uuid.UUID) (*appointments.Appointment, error) {
	for attempt := 0; attempt < referenceRetries; attempt++ {
		appt := &appointments.Appointment{
			Reference: appointments.NewReference(),
			DoctorID:  req.DoctorID,
			PatientID: patientID,
			StartsAt:  check.startsAt,
			Duration:  check.settings.AppointmentDuration,
			Status:    appointments.StatusScheduled,
			Service:   req.Service,
			Source:    req.Source,
			Notes:     req.Notes,
		}
		err := s.appts.Create(ctx, appt)
		if errors.Is(err, appointments.ErrReferenceTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return appt, nil
	}
	return nil, fmt.Errorf("booking: exhausted reference retries")
}

// scheduleReminders populates reminder rows, best-effort.
func (s *Service) scheduleReminders(ctx context.Context, appt *appointments.Appointment) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.Regenerate(ctx, appt.ID, appt.StartsAt); err != nil {
		s.logger.Error("reminder scheduling failed", "reference", appt.Reference, "error", err)
	}
}

func (s *Service) rejected(rej *Rejection) *Rejection {
	s.observe(string(rej.Kind))
	return rej
}

func (s *Service) observe(outcome string) {
	s.metrics.ObserveBooking(outcome)
}
