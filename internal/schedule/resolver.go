// Package schedule computes open slots and blocked periods for a doctor on
// a clinic-local day. All arithmetic is minutes-since-midnight; every
// interval is half-open [start, end) so back-to-back appointments are legal.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dentalops/booking-engine/internal/appointments"
	"github.com/dentalops/booking-engine/internal/clinic"
	"github.com/dentalops/booking-engine/internal/doctors"
)

// Step is the fixed slot scan granularity in minutes. Independent of the
// configured appointment duration.
const Step = 30

// Slot is a bookable (date, time) candidate of appointment-duration length.
type Slot struct {
	Date string `json:"date"` // "2006-01-02"
	Time string `json:"time"` // "15:04"
}

// BlockedPeriod is a doctor-specific unavailable interval, reported
// verbatim so the conversational layer can explain rejections.
type BlockedPeriod struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason,omitempty"`
}

// DayAvailability is the result of resolving a single day.
type DayAvailability struct {
	Slots   []Slot          `json:"slots"`
	Blocked []BlockedPeriod `json:"blocked_periods"`
}

// AppointmentSource lists a doctor's non-cancelled appointments in a range.
type AppointmentSource interface {
	ListForDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointments.Appointment, error)
}

// BlockSource lists a doctor's availability blocks for a day.
type BlockSource interface {
	ListBlocksForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]doctors.AvailabilityBlock, error)
}

// Resolver computes availability from stored appointments and blocks.
type Resolver struct {
	appts  AppointmentSource
	blocks BlockSource
}

// NewResolver creates a resolver.
func NewResolver(appts AppointmentSource, blocks BlockSource) *Resolver {
	if appts == nil || blocks == nil {
		panic("schedule: appointment and block sources required")
	}
	return &Resolver{appts: appts, blocks: blocks}
}

// interval is [Start, End) in minutes since midnight.
type interval struct {
	Start int
	End   int
}

func (i interval) overlaps(o interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// ResolveDay returns the open slots and blocked periods for a doctor on a
// clinic-local day. Non-working days resolve to an empty result.
func (r *Resolver) ResolveDay(ctx context.Context, doctorID uuid.UUID, day time.Time, st clinic.Settings) (*DayAvailability, error) {
	return r.resolveDay(ctx, doctorID, day, st, uuid.Nil)
}

func (r *Resolver) resolveDay(ctx context.Context, doctorID uuid.UUID, day time.Time, st clinic.Settings, exclude uuid.UUID) (*DayAvailability, error) {
	if !st.IsWorkingDay(day.Weekday()) {
		return &DayAvailability{}, nil
	}

	open, err := st.OpenMinute()
	if err != nil {
		return nil, err
	}
	closeAt, err := st.CloseMinute()
	if err != nil {
		return nil, err
	}

	busy, blocked, err := r.busyIntervals(ctx, doctorID, day, st, exclude)
	if err != nil {
		return nil, err
	}

	result := &DayAvailability{Blocked: blocked}
	date := day.Format(time.DateOnly)
	for start := open; start+st.AppointmentDuration <= closeAt; start += Step {
		candidate := interval{Start: start, End: start + st.AppointmentDuration}
		if overlapsAny(candidate, busy) {
			continue
		}
		result.Slots = append(result.Slots, Slot{Date: date, Time: clinic.FormatMinute(start)})
	}
	return result, nil
}

// FindAvailableSlots is the bounded greedy search used after a conflict: it
// scans the requested day and the days after it up to horizonDays, in
// 30-minute steps, and stops once maxSlots non-conflicting slots are
// collected. Non-working days consume a horizon day but yield nothing.
func (r *Resolver) FindAvailableSlots(ctx context.Context, doctorID uuid.UUID, from time.Time, st clinic.Settings, horizonDays, maxSlots int) ([]Slot, error) {
	return r.findAvailableSlots(ctx, doctorID, from, st, horizonDays, maxSlots, uuid.Nil)
}

func (r *Resolver) findAvailableSlots(ctx context.Context, doctorID uuid.UUID, from time.Time, st clinic.Settings, horizonDays, maxSlots int, exclude uuid.UUID) ([]Slot, error) {
	if horizonDays <= 0 || maxSlots <= 0 {
		return nil, nil
	}

	var found []Slot
	for d := 0; d < horizonDays; d++ {
		day := from.AddDate(0, 0, d)
		availability, err := r.resolveDay(ctx, doctorID, day, st, exclude)
		if err != nil {
			return nil, err
		}
		for _, slot := range availability.Slots {
			found = append(found, slot)
			if len(found) >= maxSlots {
				return found, nil
			}
		}
	}
	return found, nil
}

// BlockOverlap returns the first blocked period intersecting
// [startMinute, startMinute+duration) on the given day, or nil.
func (r *Resolver) BlockOverlap(ctx context.Context, doctorID uuid.UUID, day time.Time, startMinute, duration int) (*BlockedPeriod, error) {
	blocks, err := r.blocks.ListBlocksForDay(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	requested := interval{Start: startMinute, End: startMinute + duration}
	for _, b := range blocks {
		if b.Available {
			continue
		}
		iv, err := blockInterval(b)
		if err != nil {
			return nil, err
		}
		if requested.overlaps(iv) {
			return &BlockedPeriod{Start: b.StartTime, End: b.EndTime, Reason: b.Reason}, nil
		}
	}
	return nil, nil
}

// HasConflict reports whether [startMinute, startMinute+duration) on the
// given day overlaps a non-cancelled appointment, ignoring exclude (the
// appointment's own row during a reschedule).
func (r *Resolver) HasConflict(ctx context.Context, doctorID uuid.UUID, day time.Time, startMinute, duration int, st clinic.Settings, exclude uuid.UUID) (bool, error) {
	existing, err := r.appts.ListForDoctorRange(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return false, err
	}
	loc := st.Location()
	requested := interval{Start: startMinute, End: startMinute + duration}
	for _, a := range existing {
		if a.ID == exclude {
			continue
		}
		if requested.overlaps(appointmentInterval(a, loc)) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) busyIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time, st clinic.Settings, exclude uuid.UUID) ([]interval, []BlockedPeriod, error) {
	existing, err := r.appts.ListForDoctorRange(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, nil, fmt.Errorf("schedule: list appointments: %w", err)
	}
	blocks, err := r.blocks.ListBlocksForDay(ctx, doctorID, day)
	if err != nil {
		return nil, nil, fmt.Errorf("schedule: list blocks: %w", err)
	}

	loc := st.Location()
	var busy []interval
	for _, a := range existing {
		if a.ID == exclude {
			continue
		}
		busy = append(busy, appointmentInterval(a, loc))
	}

	var blocked []BlockedPeriod
	for _, b := range blocks {
		if b.Available {
			continue
		}
		iv, err := blockInterval(b)
		if err != nil {
			return nil, nil, err
		}
		busy = append(busy, iv)
		blocked = append(blocked, BlockedPeriod{Start: b.StartTime, End: b.EndTime, Reason: b.Reason})
	}
	return busy, blocked, nil
}

func appointmentInterval(a appointments.Appointment, loc *time.Location) interval {
	local := a.StartsAt.In(loc)
	start := local.Hour()*60 + local.Minute()
	return interval{Start: start, End: start + a.Duration}
}

func blockInterval(b doctors.AvailabilityBlock) (interval, error) {
	start, err := clinic.MinuteOfDay(b.StartTime)
	if err != nil {
		return interval{}, fmt.Errorf("schedule: block %s: %w", b.ID, err)
	}
	end, err := clinic.MinuteOfDay(b.EndTime)
	if err != nil {
		return interval{}, fmt.Errorf("schedule: block %s: %w", b.ID, err)
	}
	return interval{Start: start, End: end}, nil
}

func overlapsAny(candidate interval, busy []interval) bool {
	for _, b := range busy {
		if candidate.overlaps(b) {
			return true
		}
	}
	return false
}
