package booking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalops/booking-engine/internal/appointments"
)

func TestLookupAuthorizesOnLastDigits(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	// booked with +15550001234; differently formatted but same tail
	conf, rej, err := f.svc.Lookup(context.Background(), ref, "555 000 1234")
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, ref, conf.Appointment.Reference)
	assert.Empty(t, conf.Events)

	// references are case-insensitive on lookup
	_, rej, err = f.svc.Lookup(context.Background(), "  "+strings.ToLower(ref)+" ", "5550001234")
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestLookupWrongPhoneLeavesAppointmentUntouched(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	conf, rej, err := f.svc.Lookup(context.Background(), ref, "+19998887777")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Nil(t, conf)
	assert.Equal(t, KindAuthorizationFailure, rej.Kind)

	stored, err := f.appts.GetByReference(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusScheduled, stored.Status)
}

func TestLookupUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, rej, err := f.svc.Lookup(context.Background(), "ZZZZ9999", "5550001234")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotFound, rej.Kind)
}

func TestCancelPurgesRemindersAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	conf, rej, err := f.svc.Cancel(context.Background(), ref, "5550001234")
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, appointments.StatusCancelled, conf.Appointment.Status)

	require.Len(t, conf.Events, 1)
	assert.Equal(t, EventCancelled, conf.Events[0].Type)
	assert.Equal(t, "Dr. Chen", conf.Events[0].DoctorName)

	assert.Equal(t, []uuid.UUID{booked.Appointment.ID}, f.reminders.purged)
}

func TestCancelledSlotBecomesBookableAgain(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")

	_, rej, err := f.svc.Cancel(context.Background(), booked.Appointment.Reference, "5550001234")
	require.NoError(t, err)
	require.Nil(t, rej)

	conf := f.mustBook(t, "2099-01-05", "09:00")
	assert.NotEqual(t, booked.Appointment.Reference, conf.Appointment.Reference)
}

func TestCancelTwiceRejected(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	_, rej, err := f.svc.Cancel(context.Background(), ref, "5550001234")
	require.NoError(t, err)
	require.Nil(t, rej)

	_, rej, err = f.svc.Cancel(context.Background(), ref, "5550001234")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindAlreadyCancelled, rej.Kind)
}

func TestRescheduleMovesAppointment(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	conf, rej, err := f.svc.Reschedule(context.Background(), ref, "5550001234", "2099-01-06", "11:00")
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, time.Date(2099, 1, 6, 11, 0, 0, 0, time.UTC), conf.Appointment.StartsAt)

	require.Len(t, conf.Events, 1)
	assert.Equal(t, EventRescheduled, conf.Events[0].Type)
	require.NotNil(t, conf.Events[0].Previous)
	assert.Equal(t, time.Date(2099, 1, 5, 9, 0, 0, 0, time.UTC), conf.Events[0].Previous.StartsAt)

	// reminders regenerated for the new time: once at booking, once here
	assert.Len(t, f.reminders.regenerated, 2)

	// the old slot is free again
	f.mustBook(t, "2099-01-05", "09:00")
}

func TestRescheduleToOwnSlotIsLegal(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")

	// moving within the window the appointment itself occupies must not
	// count as a conflict with itself
	conf, rej, err := f.svc.Reschedule(context.Background(), booked.Appointment.Reference, "5550001234", "2099-01-05", "09:15")
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, time.Date(2099, 1, 5, 9, 15, 0, 0, time.UTC), conf.Appointment.StartsAt)
}

func TestRescheduleConflictKeepsOriginal(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "2099-01-05", "10:00")
	second := f.mustBook(t, "2099-01-05", "11:00")

	_, rej, err := f.svc.Reschedule(context.Background(), second.Appointment.Reference, "5550001234", "2099-01-05", "10:00")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindSlotUnavailableWithAlternatives, rej.Kind)

	stored, err := f.appts.GetByReference(context.Background(), second.Appointment.Reference)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2099, 1, 5, 11, 0, 0, 0, time.UTC), stored.StartsAt)
}

func TestRescheduleValidatesSlotLikeBooking(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	cases := []struct {
		date, hhmm string
		kind       RejectionKind
	}{
		{"2098-12-30", "10:00", KindPastDate},
		{"2099-01-04", "10:00", KindNotWorkingDay},
		{"2099-01-06", "18:00", KindOutsideWorkingHours},
	}
	for _, tc := range cases {
		_, rej, err := f.svc.Reschedule(context.Background(), ref, "5550001234", tc.date, tc.hhmm)
		require.NoError(t, err)
		require.NotNil(t, rej, "%s %s", tc.date, tc.hhmm)
		assert.Equal(t, tc.kind, rej.Kind)
	}
}

func TestRescheduleCancelledRejected(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	_, rej, err := f.svc.Cancel(context.Background(), ref, "5550001234")
	require.NoError(t, err)
	require.Nil(t, rej)

	_, rej, err = f.svc.Reschedule(context.Background(), ref, "5550001234", "2099-01-06", "11:00")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindAlreadyCancelled, rej.Kind)
}

func TestCompleteSkipsPhoneAuthorization(t *testing.T) {
	f := newFixture(t)
	booked := f.mustBook(t, "2099-01-05", "09:00")
	ref := booked.Appointment.Reference

	appt, rej, err := f.svc.Complete(context.Background(), ref)
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, appointments.StatusCompleted, appt.Status)

	// completed is terminal
	_, rej, err = f.svc.Cancel(context.Background(), ref, "5550001234")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindAlreadyCancelled, rej.Kind)
}

func TestCompleteUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, rej, err := f.svc.Complete(context.Background(), "ZZZZ9999")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotFound, rej.Kind)
}
