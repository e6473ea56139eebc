package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/doctors"
)

type stubAppointments struct {
	byDate map[string][]appointments.Appointment
}

func (s *stubAppointments) ListForDoctorRange(_ context.Context, _ uuid.UUID, from, _ time.Time) ([]appointments.Appointment, error) {
	return s.byDate[from.Format(time.DateOnly)], nil
}

type stubBlocks struct {
	byDate map[string][]doctors.AvailabilityBlock
}

func (s *stubBlocks) ListBlocksForDay(_ context.Context, _ uuid.UUID, day time.Time) ([]doctors.AvailabilityBlock, error) {
	return s.byDate[day.Format(time.DateOnly)], nil
}

// 2099-01-01 is a Thursday.
var testDay = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

func testSettings() clinic.Settings {
	s := clinic.DefaultSettings()
	s.OpenTime = "09:00"
	s.CloseTime = "17:00"
	s.AppointmentDuration = 30
	s.WorkingDays = []int{1, 2, 3, 4, 5}
	s.Timezone = "UTC"
	return s
}

func appt(doctorID uuid.UUID, day time.Time, hhmm string, duration int) appointments.Appointment {
	minute, _ := clinic.MinuteOfDay(hhmm)
	return appointments.Appointment{
		ID:       uuid.New(),
		DoctorID: doctorID,
		StartsAt: day.Add(time.Duration(minute) * time.Minute),
		Duration: duration,
		Status:   appointments.StatusScheduled,
	}
}

func newTestResolver(appts map[string][]appointments.Appointment, blocks map[string][]doctors.AvailabilityBlock) *Resolver {
	return NewResolver(&stubAppointments{byDate: appts}, &stubBlocks{byDate: blocks})
}

func TestResolveDayEmptyCalendar(t *testing.T) {
	doctorID := uuid.New()
	r := newTestResolver(nil, nil)

	day, err := r.ResolveDay(context.Background(), doctorID, testDay, testSettings())
	require.NoError(t, err)

	// 09:00 through 16:30 inclusive in 30-minute steps.
	assert.Len(t, day.Slots, 16)
	assert.Equal(t, Slot{Date: "2099-01-01", Time: "09:00"}, day.Slots[0])
	assert.Equal(t, Slot{Date: "2099-01-01", Time: "16:30"}, day.Slots[len(day.Slots)-1])
	assert.Empty(t, day.Blocked)
}

func TestResolveDayExcludesBookedSlot(t *testing.T) {
	doctorID := uuid.New()
	r := newTestResolver(map[string][]appointments.Appointment{
		"2099-01-01": {appt(doctorID, testDay, "09:00", 30)},
	}, nil)

	day, err := r.ResolveDay(context.Background(), doctorID, testDay, testSettings())
	require.NoError(t, err)

	for _, slot := range day.Slots {
		assert.NotEqual(t, "09:00", slot.Time)
	}
	assert.Len(t, day.Slots, 15)
}

func TestResolveDayNeverOverlapsBusyIntervals(t *testing.T) {
	doctorID := uuid.New()
	st := testSettings()
	st.AppointmentDuration = 45

	// 10:00-10:45 appointment plus a 13:00-15:00 block.
	r := newTestResolver(map[string][]appointments.Appointment{
		"2099-01-01": {appt(doctorID, testDay, "10:00", 45)},
	}, map[string][]doctors.AvailabilityBlock{
		"2099-01-01": {{DoctorID: doctorID, Date: testDay, StartTime: "13:00", EndTime: "15:00", Available: false, Reason: "surgery"}},
	})

	day, err := r.ResolveDay(context.Background(), doctorID, testDay, st)
	require.NoError(t, err)
	require.NotEmpty(t, day.Slots)

	busy := []interval{{600, 645}, {780, 900}}
	for _, slot := range day.Slots {
		start, err := clinic.MinuteOfDay(slot.Time)
		require.NoError(t, err)
		candidate := interval{Start: start, End: start + st.AppointmentDuration}
		for _, b := range busy {
			assert.False(t, candidate.overlaps(b), "slot %s overlaps [%d,%d)", slot.Time, b.Start, b.End)
		}
	}
	require.Len(t, day.Blocked, 1)
	assert.Equal(t, "surgery", day.Blocked[0].Reason)
}

func TestResolveDayNonWorkingDayIsEmpty(t *testing.T) {
	r := newTestResolver(nil, nil)
	sunday := time.Date(2099, 1, 4, 0, 0, 0, 0, time.UTC)

	day, err := r.ResolveDay(context.Background(), uuid.New(), sunday, testSettings())
	require.NoError(t, err)
	assert.Empty(t, day.Slots)
	assert.Empty(t, day.Blocked)
}

func TestResolveDayBackToBackAppointmentsAreLegal(t *testing.T) {
	doctorID := uuid.New()
	r := newTestResolver(map[string][]appointments.Appointment{
		"2099-01-01": {appt(doctorID, testDay, "10:00", 30)},
	}, nil)

	day, err := r.ResolveDay(context.Background(), doctorID, testDay, testSettings())
	require.NoError(t, err)

	times := make(map[string]bool)
	for _, s := range day.Slots {
		times[s.Time] = true
	}
	assert.True(t, times["09:30"], "slot ending exactly at the appointment start must stay open")
	assert.True(t, times["10:30"], "slot starting exactly at the appointment end must stay open")
	assert.False(t, times["10:00"])
}

func TestFindAvailableSlotsPrefersRequestedDayAndCapsAtThree(t *testing.T) {
	doctorID := uuid.New()
	r := newTestResolver(map[string][]appointments.Appointment{
		"2099-01-01": {appt(doctorID, testDay, "10:00", 30)},
	}, nil)

	slots, err := r.FindAvailableSlots(context.Background(), doctorID, testDay, testSettings(), 2, 3)
	require.NoError(t, err)

	require.Len(t, slots, 3)
	assert.Equal(t, []Slot{
		{Date: "2099-01-01", Time: "09:00"},
		{Date: "2099-01-01", Time: "09:30"},
		{Date: "2099-01-01", Time: "10:30"},
	}, slots)
}

func TestFindAvailableSlotsSpillsToNextDay(t *testing.T) {
	doctorID := uuid.New()
	st := testSettings()

	// Requested day fully blocked; next day open.
	r := newTestResolver(nil, map[string][]doctors.AvailabilityBlock{
		"2099-01-01": {{DoctorID: doctorID, Date: testDay, StartTime: "09:00", EndTime: "17:00", Available: false}},
	})

	slots, err := r.FindAvailableSlots(context.Background(), doctorID, testDay, st, 2, 3)
	require.NoError(t, err)

	require.Len(t, slots, 3)
	for _, s := range slots {
		assert.Equal(t, "2099-01-02", s.Date)
	}
}

func TestFindAvailableSlotsSkipsNonWorkingDayWithinHorizon(t *testing.T) {
	doctorID := uuid.New()
	st := testSettings()

	// Friday fully blocked; Saturday (next day) is not a working day, so a
	// 2-day horizon yields nothing even though Monday is free.
	friday := time.Date(2099, 1, 2, 0, 0, 0, 0, time.UTC)
	r := newTestResolver(nil, map[string][]doctors.AvailabilityBlock{
		"2099-01-02": {{DoctorID: doctorID, Date: friday, StartTime: "09:00", EndTime: "17:00", Available: false}},
	})

	slots, err := r.FindAvailableSlots(context.Background(), doctorID, friday, st, 2, 3)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestBlockOverlap(t *testing.T) {
	doctorID := uuid.New()
	r := newTestResolver(nil, map[string][]doctors.AvailabilityBlock{
		"2099-01-01": {{DoctorID: doctorID, Date: testDay, StartTime: "12:00", EndTime: "13:00", Available: false, Reason: "lunch"}},
	})

	hit, err := r.BlockOverlap(context.Background(), doctorID, testDay, 750, 30) // 12:30
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "lunch", hit.Reason)

	miss, err := r.BlockOverlap(context.Background(), doctorID, testDay, 780, 30) // 13:00, adjacent
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestHasConflictHonorsExclusion(t *testing.T) {
	doctorID := uuid.New()
	own := appt(doctorID, testDay, "10:00", 30)
	r := newTestResolver(map[string][]appointments.Appointment{
		"2099-01-01": {own},
	}, nil)

	conflict, err := r.HasConflict(context.Background(), doctorID, testDay, 600, 30, testSettings(), uuid.Nil)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = r.HasConflict(context.Background(), doctorID, testDay, 600, 30, testSettings(), own.ID)
	require.NoError(t, err)
	assert.False(t, conflict, "rescheduling onto the appointment's own slot is not a conflict")
}
