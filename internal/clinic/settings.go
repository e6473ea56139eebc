// Package clinic holds the clinic-wide scheduling configuration that the
// availability and booking pipeline reads.
package clinic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel is a reminder delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Settings is the clinic-wide configuration singleton. Mutated only by
// administrators; read-mostly by the engine.
type Settings struct {
	OpenTime            string    `json:"open_time"`  // "09:00"
	CloseTime           string    `json:"close_time"` // "17:00"
	WorkingDays         []int     `json:"working_days"` // weekday ints, Sunday=0
	AppointmentDuration int       `json:"appointment_duration"` // minutes
	Timezone            string    `json:"timezone"`
	ReminderEnabled     bool      `json:"reminder_enabled"`
	ReminderOffsets     []int     `json:"reminder_offsets"` // minutes before appointment
	ReminderChannels    []Channel `json:"reminder_channels"`
}

// DefaultSettings returns the configuration used until an administrator
// saves their own.
func DefaultSettings() Settings {
	return Settings{
		OpenTime:            "09:00",
		CloseTime:           "17:00",
		WorkingDays:         []int{1, 2, 3, 4, 5},
		AppointmentDuration: 30,
		Timezone:            "UTC",
		ReminderEnabled:     true,
		ReminderOffsets:     []int{2880, 1440, 120, 60, 30},
		ReminderChannels:    []Channel{ChannelEmail},
	}
}

// MinuteOfDay parses an "HH:MM" string into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clinic: invalid time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clinic: invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clinic: invalid minute in %q", hhmm)
	}
	return h*60 + m, nil
}

// FormatMinute renders minutes since midnight as "HH:MM".
func FormatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Location resolves the clinic timezone. Invalid or empty names fall back
// to UTC rather than failing a booking.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OpenMinute returns opening time in minutes since midnight.
func (s Settings) OpenMinute() (int, error) {
	return MinuteOfDay(s.OpenTime)
}

// CloseMinute returns closing time in minutes since midnight.
func (s Settings) CloseMinute() (int, error) {
	return MinuteOfDay(s.CloseTime)
}

// IsWorkingDay reports whether the clinic is open on the given weekday.
func (s Settings) IsWorkingDay(day time.Weekday) bool {
	for _, d := range s.WorkingDays {
		if d == int(day) {
			return true
		}
	}
	return false
}

// Validate checks the invariants an administrator update must satisfy.
func (s Settings) Validate() error {
	open, err := s.OpenMinute()
	if err != nil {
		return err
	}
	closeAt, err := s.CloseMinute()
	if err != nil {
		return err
	}
	if closeAt <= open {
		return fmt.Errorf("clinic: close time %s is not after open time %s", s.CloseTime, s.OpenTime)
	}
	if s.AppointmentDuration <= 0 {
		return fmt.Errorf("clinic: appointment duration must be positive")
	}
	if closeAt-open < s.AppointmentDuration {
		return fmt.Errorf("clinic: working hours shorter than one appointment")
	}
	for _, d := range s.WorkingDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("clinic: invalid working day %d", d)
		}
	}
	for _, off := range s.ReminderOffsets {
		if off <= 0 {
			return fmt.Errorf("clinic: invalid reminder offset %d", off)
		}
	}
	for _, ch := range s.ReminderChannels {
		if ch != ChannelEmail && ch != ChannelWhatsApp {
			return fmt.Errorf("clinic: unknown reminder channel %q", ch)
		}
	}
	if _, err := time.LoadLocation(s.Timezone); s.Timezone != "" && err != nil {
		return fmt.Errorf("clinic: unknown timezone %q", s.Timezone)
	}
	return nil
}
