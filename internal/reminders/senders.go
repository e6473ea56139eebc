package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/dentalops/booking-engine/internal/notify"
	"github.com/dentalops/booking-engine/pkg/logging"
)

// EmailSender delivers reminders through the notify email transport.
type EmailSender struct {
	mailer notify.EmailSender
}

// NewEmailSender creates an email reminder sender.
func NewEmailSender(mailer notify.EmailSender) *EmailSender {
	if mailer == nil {
		panic("reminders: mailer required")
	}
	return &EmailSender{mailer: mailer}
}

// Send emails the reminder to the patient.
func (s *EmailSender) Send(ctx context.Context, r DueReminder, loc *time.Location) error {
	if r.PatientEmail == "" {
		return fmt.Errorf("patient has no email address")
	}
	when := r.StartsAt.In(loc)
	return s.mailer.Send(ctx, notify.EmailMessage{
		To:      r.PatientEmail,
		ToName:  r.PatientName,
		Subject: fmt.Sprintf("Reminder: your appointment on %s", when.Format("Monday, 2 January")),
		Body: fmt.Sprintf(
			"Hi %s,\n\nThis is a reminder of your %s appointment with %s on %s at %s.\n\nYour reference number is %s. Reply to this email or call us if you need to change it.\n",
			r.PatientName, r.Service, r.DoctorName,
			when.Format("Monday, 2 January 2006"), when.Format("15:04"), r.Reference),
	})
}

// LogSender records the reminder in the log instead of delivering it. Used
// for channels whose transport lives outside this service (WhatsApp) and in
// development.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the reminder.
func (s *LogSender) Send(_ context.Context, r DueReminder, loc *time.Location) error {
	s.logger.Info("reminder dispatched to log",
		"channel", r.Channel,
		"reference", r.Reference,
		"patient", r.PatientName,
		"starts_at", r.StartsAt.In(loc),
	)
	return nil
}
