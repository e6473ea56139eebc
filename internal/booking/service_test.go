package booking

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/doctors"
	"github.com/dentalops/booking-engine/internal/patients"
	"github.com/dentalops/booking-engine/internal/schedule"
)

// --- in-memory collaborators ---

type memSettings struct {
	st clinic.Settings
}

func (m *memSettings) Get(context.Context) (clinic.Settings, error) { return m.st, nil }

type memDoctors struct {
	byID map[uuid.UUID]doctors.Doctor
}

func (m *memDoctors) Get(_ context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, doctors.ErrNotFound
	}
	return &d, nil
}

// memAppointments backs both the booking store and the resolver's
// appointment source, so conflict checks see what Book committed.
type memAppointments struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*appointments.Appointment
	byRef map[string]uuid.UUID
}

func newMemAppointments() *memAppointments {
	return &memAppointments{
		byID:  map[uuid.UUID]*appointments.Appointment{},
		byRef: map[string]uuid.UUID{},
	}
}

func (m *memAppointments) Create(_ context.Context, a *appointments.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byRef[a.Reference]; taken {
		return appointments.ErrReferenceTaken
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	copied := *a
	m.byID[a.ID] = &copied
	m.byRef[a.Reference] = a.ID
	return nil
}

func (m *memAppointments) GetByReference(_ context.Context, reference string) (*appointments.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[strings.ToUpper(strings.TrimSpace(reference))]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	copied := *m.byID[id]
	return &copied, nil
}

func (m *memAppointments) Reschedule(_ context.Context, id uuid.UUID, startsAt time.Time, duration int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return appointments.ErrNotFound
	}
	if a.Status != appointments.StatusScheduled {
		return appointments.ErrNotScheduled
	}
	a.StartsAt = startsAt
	a.Duration = duration
	return nil
}

func (m *memAppointments) UpdateStatus(_ context.Context, id uuid.UUID, to appointments.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return appointments.ErrNotFound
	}
	if a.Status != appointments.StatusScheduled {
		return appointments.ErrNotScheduled
	}
	a.Status = to
	return nil
}

func (m *memAppointments) ListForDoctorRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointments.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []appointments.Appointment
	for _, a := range m.byID {
		if a.DoctorID != doctorID || a.Status == appointments.StatusCancelled {
			continue
		}
		if a.StartsAt.Before(from) || !a.StartsAt.Before(to) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

type memBlocks struct {
	byDate map[string][]doctors.AvailabilityBlock
}

func (m *memBlocks) ListBlocksForDay(_ context.Context, _ uuid.UUID, day time.Time) ([]doctors.AvailabilityBlock, error) {
	return m.byDate[day.Format(time.DateOnly)], nil
}

type memPatients struct {
	mu   sync.Mutex
	byID map[uuid.UUID]patients.Patient
}

func newMemPatients() *memPatients {
	return &memPatients{byID: map[uuid.UUID]patients.Patient{}}
}

func (m *memPatients) Upsert(_ context.Context, name, phone, email string) (*patients.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Email == email {
			p.Name, p.Phone = name, phone
			m.byID[p.ID] = p
			return &p, nil
		}
	}
	p := patients.Patient{ID: uuid.New(), Name: name, Phone: phone, Email: email}
	m.byID[p.ID] = p
	return &p, nil
}

func (m *memPatients) Get(_ context.Context, id uuid.UUID) (*patients.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, patients.ErrNotFound
	}
	return &p, nil
}

type recordingPlanner struct {
	regenerated []uuid.UUID
	purged      []uuid.UUID
}

func (r *recordingPlanner) Regenerate(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.regenerated = append(r.regenerated, id)
	return nil
}

func (r *recordingPlanner) Purge(_ context.Context, id uuid.UUID) error {
	r.purged = append(r.purged, id)
	return nil
}

type busyLocker struct{}

func (busyLocker) WithDoctorLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return ErrDoctorBusy
}

// --- fixture ---

type fixture struct {
	svc       *Service
	appts     *memAppointments
	patients  *memPatients
	blocks    *memBlocks
	reminders *recordingPlanner
	doctor    doctors.Doctor
	settings  clinic.Settings
}

// clock: Thursday 2099-01-01, 08:00 UTC. The Monday after is 2099-01-05.
var testNow = time.Date(2099, 1, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, opts ...func(*ServiceConfig)) *fixture {
	t.Helper()
	f := &fixture{
		appts:     newMemAppointments(),
		patients:  newMemPatients(),
		blocks:    &memBlocks{byDate: map[string][]doctors.AvailabilityBlock{}},
		reminders: &recordingPlanner{},
		doctor: doctors.Doctor{
			ID:          uuid.New(),
			Name:        "Dr. Chen",
			IsActive:    true,
			CalendarRef: "cal-chen",
		},
		settings: clinic.DefaultSettings(),
	}

	cfg := ServiceConfig{
		Settings:  &memSettings{st: f.settings},
		Doctors:   &memDoctors{byID: map[uuid.UUID]doctors.Doctor{f.doctor.ID: f.doctor}},
		Appts:     f.appts,
		Patients:  f.patients,
		Resolver:  schedule.NewResolver(f.appts, f.blocks),
		Reminders: f.reminders,
		Now:       func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f.svc = NewService(cfg)
	return f
}

func (f *fixture) request(date, hhmm string) *Request {
	return &Request{
		DoctorID:     f.doctor.ID,
		Date:         date,
		Time:         hhmm,
		Service:      "cleaning",
		PatientName:  "Maria Keller",
		PatientPhone: "+15550001234",
		PatientEmail: "maria@example.com",
		Source:       appointments.SourceChat,
	}
}

func (f *fixture) mustBook(t *testing.T, date, hhmm string) *Confirmation {
	t.Helper()
	conf, rej, err := f.svc.Book(context.Background(), f.request(date, hhmm))
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, conf)
	return conf
}

// --- tests ---

func TestBookSuccess(t *testing.T) {
	f := newFixture(t)

	conf := f.mustBook(t, "2099-01-05", "09:00")

	assert.Len(t, conf.Appointment.Reference, 8)
	for _, r := range conf.Appointment.Reference {
		assert.NotContains(t, "0O1IL", string(r))
	}
	assert.Equal(t, appointments.StatusScheduled, conf.Appointment.Status)
	assert.Equal(t, time.Date(2099, 1, 5, 9, 0, 0, 0, time.UTC), conf.Appointment.StartsAt)
	assert.Equal(t, 30, conf.Appointment.Duration)
	assert.Equal(t, "Maria Keller", conf.Patient.Name)

	require.Len(t, conf.Events, 1)
	assert.Equal(t, EventCreated, conf.Events[0].Type)
	assert.Equal(t, "Dr. Chen", conf.Events[0].DoctorName)
	assert.Equal(t, "cal-chen", conf.Events[0].CalendarRef)

	assert.Equal(t, []uuid.UUID{conf.Appointment.ID}, f.reminders.regenerated)
}

func TestBookRejectsIdentityPlaceholders(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		mutate func(*Request)
		field  string
	}{
		{func(r *Request) { r.PatientName = "test" }, "patient_name"},
		{func(r *Request) { r.PatientName = "x" }, "patient_name"},
		{func(r *Request) { r.PatientName = "john john" }, "patient_name"},
		{func(r *Request) { r.PatientPhone = "123" }, "patient_phone"},
		{func(r *Request) { r.PatientPhone = "555555" }, "patient_phone"},
		{func(r *Request) { r.PatientEmail = "not-an-email" }, "patient_email"},
		{func(r *Request) { r.PatientEmail = "" }, "patient_email"},
	}
	for _, tc := range cases {
		req := f.request("2099-01-05", "09:00")
		tc.mutate(req)
		conf, rej, err := f.svc.Book(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, rej, "field %s", tc.field)
		assert.Nil(t, conf)
		assert.Equal(t, KindMissingInfo, rej.Kind)
		assert.Equal(t, tc.field, rej.Field)
	}
}

func TestBookRejectsPastDate(t *testing.T) {
	f := newFixture(t)

	_, rej, err := f.svc.Book(context.Background(), f.request("2098-12-31", "10:00"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindPastDate, rej.Kind)
}

func TestBookRejectsPastTimeToday(t *testing.T) {
	// Friday 2099-01-02, clock at noon.
	f := newFixture(t, func(cfg *ServiceConfig) {
		cfg.Now = func() time.Time { return time.Date(2099, 1, 2, 12, 0, 0, 0, time.UTC) }
	})

	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-02", "10:00"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindPastDate, rej.Kind)

	// later the same day is fine
	conf, rej, err := f.svc.Book(context.Background(), f.request("2099-01-02", "14:00"))
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, conf)
}

func TestBookWorkingHoursBoundary(t *testing.T) {
	f := newFixture(t)

	// 16:30 + 30min ends exactly at close; legal.
	conf := f.mustBook(t, "2099-01-05", "16:30")
	assert.Equal(t, 16*60+30, conf.Appointment.StartsAt.Hour()*60+conf.Appointment.StartsAt.Minute())

	// one minute later spills past close
	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-05", "16:31"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindOutsideWorkingHours, rej.Kind)

	// before opening
	_, rej, err = f.svc.Book(context.Background(), f.request("2099-01-05", "08:30"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindOutsideWorkingHours, rej.Kind)
}

func TestBookRejectsNonWorkingDay(t *testing.T) {
	f := newFixture(t)

	// 2099-01-04 is a Sunday
	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-04", "10:00"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotWorkingDay, rej.Kind)
	assert.Empty(t, rej.Alternatives)
	assert.Contains(t, rej.Message, "Sunday")
}

func TestBookRejectsBlockedPeriod(t *testing.T) {
	f := newFixture(t)
	f.blocks.byDate["2099-01-05"] = []doctors.AvailabilityBlock{{
		DoctorID:  f.doctor.ID,
		Date:      time.Date(2099, 1, 5, 0, 0, 0, 0, time.UTC),
		StartTime: "14:00",
		EndTime:   "15:00",
		Available: false,
		Reason:    "surgery",
	}}

	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-05", "14:30"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindDoctorBlocked, rej.Kind)
	assert.Contains(t, rej.Message, "surgery")

	// adjacency: an appointment ending exactly at block start is legal
	conf := f.mustBook(t, "2099-01-05", "13:30")
	assert.NotNil(t, conf)
}

func TestBookConflictOffersAlternatives(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, "2099-01-05", "10:00")

	// overlaps 10:00-10:30 without sharing its start
	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-05", "10:15"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindSlotUnavailableWithAlternatives, rej.Kind)

	got := make([]string, 0, len(rej.Alternatives))
	for _, s := range rej.Alternatives {
		got = append(got, s.Date+" "+s.Time)
	}
	assert.Equal(t, []string{
		"2099-01-05 09:00",
		"2099-01-05 09:30",
		"2099-01-05 10:30",
	}, got)
}

func TestBookConflictSearchSpillsToNextDay(t *testing.T) {
	f := newFixture(t)

	// fill Monday completely
	for minute := 9 * 60; minute+30 <= 17*60; minute += 30 {
		hhmm := time.Date(2099, 1, 5, 0, 0, 0, 0, time.UTC).
			Add(time.Duration(minute) * time.Minute).Format("15:04")
		f.mustBook(t, "2099-01-05", hhmm)
	}

	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-05", "10:15"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindSlotUnavailableWithAlternatives, rej.Kind)
	require.NotEmpty(t, rej.Alternatives)
	// horizon moved to Tuesday
	assert.Equal(t, "2099-01-06", rej.Alternatives[0].Date)
	assert.Equal(t, "09:00", rej.Alternatives[0].Time)
}

func TestBookDoctorBusyLock(t *testing.T) {
	f := newFixture(t, func(cfg *ServiceConfig) {
		cfg.Locker = busyLocker{}
	})

	_, rej, err := f.svc.Book(context.Background(), f.request("2099-01-05", "09:00"))
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindSlotUnavailable, rej.Kind)
	assert.Empty(t, rej.Alternatives)
}

func TestBookUnknownOrInactiveDoctor(t *testing.T) {
	f := newFixture(t)

	req := f.request("2099-01-05", "09:00")
	req.DoctorID = uuid.New()
	_, rej, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotFound, rej.Kind)
}

func TestBookInactiveDoctor(t *testing.T) {
	inactive := doctors.Doctor{ID: uuid.New(), Name: "Dr. Gone", IsActive: false}
	f := newFixture(t, func(cfg *ServiceConfig) {
		cfg.Doctors = &memDoctors{byID: map[uuid.UUID]doctors.Doctor{inactive.ID: inactive}}
	})

	req := f.request("2099-01-05", "09:00")
	req.DoctorID = inactive.ID
	_, rej, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, KindNotFound, rej.Kind)
	assert.Contains(t, rej.Message, "Dr. Gone")
}

func TestBookBackToBackAppointments(t *testing.T) {
	f := newFixture(t)

	f.mustBook(t, "2099-01-05", "10:00")
	conf := f.mustBook(t, "2099-01-05", "10:30")
	assert.Equal(t, time.Date(2099, 1, 5, 10, 30, 0, 0, time.UTC), conf.Appointment.StartsAt)
}

func TestBookReferencesAreUnique(t *testing.T) {
	f := newFixture(t)

	seen := map[string]bool{}
	for i, hhmm := range []string{"09:00", "09:30", "10:00", "10:30"} {
		conf := f.mustBook(t, "2099-01-05", hhmm)
		assert.False(t, seen[conf.Appointment.Reference], "duplicate reference at booking %d", i)
		seen[conf.Appointment.Reference] = true
	}
}
