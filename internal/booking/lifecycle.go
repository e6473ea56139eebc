package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/patients"
)

// Lookup returns an appointment by reference for self-service channels.
// The presented phone must match the patient's on the last digits; there is
// no other authorization on these channels.
func (s *Service) Lookup(ctx context.Context, reference, phone string) (*Confirmation, *Rejection, error) {
	appt, patient, rej, err := s.authorize(ctx, reference, phone)
	if rej != nil || err != nil {
		return nil, rej, err
	}
	return &Confirmation{Appointment: *appt, Patient: *patient}, nil, nil
}

// Cancel transitions a scheduled appointment to cancelled, purges its
// reminders and emits a cancellation event. Cancelled and completed
// appointments are terminal and cannot be cancelled again.
func (s *Service) Cancel(ctx context.Context, reference, phone string) (*Confirmation, *Rejection, error) {
	appt, patient, rej, err := s.authorize(ctx, reference, phone)
	if rej != nil || err != nil {
		return nil, rej, err
	}
	if rej := terminalRejection(appt); rej != nil {
		return nil, s.rejected(rej), nil
	}

	if err := s.appts.UpdateStatus(ctx, appt.ID, appointments.StatusCancelled); err != nil {
		if errors.Is(err, appointments.ErrNotScheduled) {
			return nil, s.rejected(reject(KindAlreadyCancelled, "That appointment has already been cancelled or completed.")), nil
		}
		return nil, nil, fmt.Errorf("booking: cancel: %w", err)
	}
	appt.Status = appointments.StatusCancelled

	s.purgeReminders(ctx, appt.ID, appt.Reference)
	s.observe("cancelled")
	s.logger.Info("appointment cancelled", "reference", appt.Reference, "doctor_id", appt.DoctorID)

	doctorName, calendarRef := s.doctorInfo(ctx, appt.DoctorID)
	return &Confirmation{
		Appointment: *appt,
		Patient:     *patient,
		Events: []Event{{
			Type:        EventCancelled,
			Appointment: *appt,
			Patient:     *patient,
			DoctorName:  doctorName,
			CalendarRef: calendarRef,
		}},
	}, nil, nil
}

// Reschedule moves a scheduled appointment to a new clinic-local date and
// time, re-running the temporal, hours, day, block and conflict checks with
// the appointment's own row excluded from the conflict check. Reminders are
// regenerated from current settings.
func (s *Service) Reschedule(ctx context.Context, reference, phone, newDate, newTime string) (*Confirmation, *Rejection, error) {
	appt, patient, rej, err := s.authorize(ctx, reference, phone)
	if rej != nil || err != nil {
		return nil, rej, err
	}
	if rej := terminalRejection(appt); rej != nil {
		return nil, s.rejected(rej), nil
	}

	check, rej, err := s.validateSlot(ctx, appt.DoctorID, newDate, newTime)
	if err != nil {
		return nil, nil, err
	}
	if rej != nil {
		return nil, s.rejected(rej), nil
	}

	previous := *appt
	err = s.locker.WithDoctorLock(ctx, appt.DoctorID, func(ctx context.Context) error {
		conflict, err := s.resolver.HasConflict(ctx, appt.DoctorID, check.dayStart, check.startMinute, check.settings.AppointmentDuration, check.settings, appt.ID)
		if err != nil {
			return err
		}
		if conflict {
			return errSlotConflict
		}
		return s.appts.Reschedule(ctx, appt.ID, check.startsAt, check.settings.AppointmentDuration)
	})
	if err != nil {
		if errors.Is(err, appointments.ErrNotScheduled) {
			return nil, s.rejected(reject(KindAlreadyCancelled, "That appointment has already been cancelled or completed.")), nil
		}
		if rej := s.conflictRejection(ctx, appt.DoctorID, check, err); rej != nil {
			return nil, rej, nil
		}
		return nil, nil, fmt.Errorf("booking: reschedule: %w", err)
	}

	appt.StartsAt = check.startsAt
	appt.Duration = check.settings.AppointmentDuration

	// Reschedule recomputes reminders from current settings wholesale.
	s.scheduleReminders(ctx, appt)
	s.observe("rescheduled")
	s.logger.Info("appointment rescheduled",
		"reference", appt.Reference,
		"from", previous.StartsAt,
		"to", appt.StartsAt,
	)

	return &Confirmation{
		Appointment: *appt,
		Patient:     *patient,
		Events: []Event{{
			Type:        EventRescheduled,
			Appointment: *appt,
			Previous:    &previous,
			Patient:     *patient,
			DoctorName:  check.doctor.Name,
			CalendarRef: check.doctor.CalendarRef,
		}},
	}, nil, nil
}

// Complete marks a scheduled appointment completed. Admin/doctor action; no
// phone authorization and no re-validation.
func (s *Service) Complete(ctx context.Context, reference string) (*appointments.Appointment, *Rejection, error) {
	appt, err := s.appts.GetByReference(ctx, reference)
	if errors.Is(err, appointments.ErrNotFound) {
		return nil, s.rejected(reject(KindNotFound, "No appointment matches that reference number.")), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("booking: complete: %w", err)
	}

	if err := s.appts.UpdateStatus(ctx, appt.ID, appointments.StatusCompleted); err != nil {
		if errors.Is(err, appointments.ErrNotScheduled) {
			return nil, s.rejected(reject(KindAlreadyCancelled, "That appointment has already been cancelled or completed.")), nil
		}
		return nil, nil, fmt.Errorf("booking: complete: %w", err)
	}
	appt.Status = appointments.StatusCompleted
	s.logger.Info("appointment completed", "reference", appt.Reference)
	return appt, nil, nil
}

// authorize loads the appointment and its patient and enforces the
// last-digits phone match.
func (s *Service) authorize(ctx context.Context, reference, phone string) (*appointments.Appointment, *patients.Patient, *Rejection, error) {
	appt, err := s.appts.GetByReference(ctx, reference)
	if errors.Is(err, appointments.ErrNotFound) {
		return nil, nil, s.rejected(reject(KindNotFound, "No appointment matches that reference number — could you double-check it?")), nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("booking: load appointment: %w", err)
	}

	patient, err := s.patients.Get(ctx, appt.PatientID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("booking: load patient: %w", err)
	}

	if !phoneMatches(patient.Phone, phone) {
		return nil, nil, s.rejected(reject(KindAuthorizationFailure,
			"That phone number doesn't match the one on the booking — please use the number you booked with.")), nil
	}
	return appt, patient, nil, nil
}

func terminalRejection(appt *appointments.Appointment) *Rejection {
	switch appt.Status {
	case appointments.StatusCancelled:
		return reject(KindAlreadyCancelled, "That appointment was already cancelled.")
	case appointments.StatusCompleted:
		return reject(KindAlreadyCancelled, "That appointment has already taken place.")
	}
	return nil
}

func (s *Service) purgeReminders(ctx context.Context, appointmentID uuid.UUID, reference string) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.Purge(ctx, appointmentID); err != nil {
		s.logger.Error("reminder purge failed", "reference", reference, "error", err)
	}
}

func (s *Service) doctorInfo(ctx context.Context, doctorID uuid.UUID) (string, string) {
	doctor, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		s.logger.Warn("doctor lookup for event failed", "doctor_id", doctorID, "error", err)
		return "", ""
	}
	return doctor.Name, doctor.CalendarRef
}
