// Package notify turns booking lifecycle events into patient-facing email.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dentalops/booking-engine/internal/booking"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// Service sends confirmation, reschedule and cancellation emails. It
// implements booking.Notifier; failures are reported to the caller, which
// logs and swallows them, never failing the committed appointment.
type Service struct {
	email      EmailSender
	clinicName string
	timezone   func() *time.Location
	logger     *logging.Logger
}

// NewService creates a notification service. The timezone func supplies the
// clinic location for rendering appointment times.
func NewService(email EmailSender, clinicName string, timezone func() *time.Location, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender required")
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	if timezone == nil {
		timezone = func() *time.Location { return time.UTC }
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, clinicName: clinicName, timezone: timezone, logger: logger}
}

// AppointmentCreated emails a booking confirmation.
func (s *Service) AppointmentCreated(ctx context.Context, ev booking.Event) error {
	when := ev.Appointment.StartsAt.In(s.timezone())
	return s.send(ctx, ev,
		fmt.Sprintf("Your appointment is confirmed — %s", ev.Appointment.Reference),
		fmt.Sprintf(
			"Hi %s,\n\nYour %s appointment with %s at %s is confirmed for %s at %s.\n\nYour reference number is %s. Keep it handy — you'll need it to look up, move or cancel the appointment.\n",
			ev.Patient.Name, ev.Appointment.Service, ev.DoctorName, s.clinicName,
			when.Format("Monday, 2 January 2006"), when.Format("15:04"),
			ev.Appointment.Reference))
}

// AppointmentRescheduled emails the new time.
func (s *Service) AppointmentRescheduled(ctx context.Context, ev booking.Event) error {
	loc := s.timezone()
	when := ev.Appointment.StartsAt.In(loc)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour appointment %s has been moved to %s at %s.\n",
		ev.Patient.Name, ev.Appointment.Reference,
		when.Format("Monday, 2 January 2006"), when.Format("15:04"))
	if ev.Previous != nil {
		prev := ev.Previous.StartsAt.In(loc)
		body += fmt.Sprintf("It was previously on %s at %s.\n",
			prev.Format("Monday, 2 January 2006"), prev.Format("15:04"))
	}
	return s.send(ctx, ev,
		fmt.Sprintf("Your appointment has been rescheduled — %s", ev.Appointment.Reference), body)
}

// AppointmentCancelled emails a cancellation notice.
func (s *Service) AppointmentCancelled(ctx context.Context, ev booking.Event) error {
	when := ev.Appointment.StartsAt.In(s.timezone())
	return s.send(ctx, ev,
		fmt.Sprintf("Your appointment has been cancelled — %s", ev.Appointment.Reference),
		fmt.Sprintf(
			"Hi %s,\n\nYour %s appointment on %s at %s has been cancelled.\n\nIf this wasn't you, or you'd like to rebook, just get in touch with %s.\n",
			ev.Patient.Name, ev.Appointment.Service,
			when.Format("Monday, 2 January 2006"), when.Format("15:04"), s.clinicName))
}

func (s *Service) send(ctx context.Context, ev booking.Event, subject, body string) error {
	if ev.Patient.Email == "" {
		s.logger.Warn("no patient email for notification", "reference", ev.Appointment.Reference)
		return nil
	}
	return s.email.Send(ctx, EmailMessage{
		To:      ev.Patient.Email,
		ToName:  ev.Patient.Name,
		Subject: subject,
		Body:    body,
	})
}

var _ booking.Notifier = (*Service)(nil)
