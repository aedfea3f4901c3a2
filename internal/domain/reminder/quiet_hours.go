package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietHours is a time-of-day window during which reminders should not fire.
// Start and End are "HH:MM". The window wraps midnight when Start > End.
type QuietHours struct {
	Start string
	End   string
}

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid clock %q: expected HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err = strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q out of range", s)
	}
	return hour, minute, nil
}

// Validate checks both bounds parse.
func (q QuietHours) Validate() error {
	if _, _, err := ParseClock(q.Start); err != nil {
		return fmt.Errorf("quiet hours start: %w", err)
	}
	if _, _, err := ParseClock(q.End); err != nil {
		return fmt.Errorf("quiet hours end: %w", err)
	}
	return nil
}

// IsWithinQuietWindow reports whether t falls inside the window.
//
// Only hours are compared: a window ending at 07:30 stops being quiet at
// 07:00. AdjustOutOfWindow does use the minutes. Unparseable bounds mean
// there is no quiet window.
func IsWithinQuietWindow(t time.Time, start, end string) bool {
	startHour, _, err := ParseClock(start)
	if err != nil {
		return false
	}
	endHour, _, err := ParseClock(end)
	if err != nil {
		return false
	}
	hour := t.Hour()
	if startHour > endHour {
		return hour >= startHour || hour < endHour
	}
	return hour >= startHour && hour < endHour
}

// IsAppropriateTime is the negation of IsWithinQuietWindow.
func IsAppropriateTime(t time.Time, start, end string) bool {
	return !IsWithinQuietWindow(t, start, end)
}

// AdjustOutOfWindow returns t unchanged when it is appropriate, otherwise
// the next occurrence of the window's end (hour and minute) after t.
func AdjustOutOfWindow(t time.Time, start, end string) time.Time {
	if IsAppropriateTime(t, start, end) {
		return t
	}
	endHour, endMinute, err := ParseClock(end)
	if err != nil {
		return t
	}
	adjusted := time.Date(t.Year(), t.Month(), t.Day(), endHour, endMinute, 0, 0, t.Location())
	if !adjusted.After(t) {
		adjusted = adjusted.AddDate(0, 0, 1)
	}
	return adjusted
}

func (q QuietHours) IsWithinQuietWindow(t time.Time) bool {
	return IsWithinQuietWindow(t, q.Start, q.End)
}

func (q QuietHours) IsAppropriateTime(t time.Time) bool {
	return IsAppropriateTime(t, q.Start, q.End)
}

func (q QuietHours) AdjustOutOfWindow(t time.Time) time.Time {
	return AdjustOutOfWindow(t, q.Start, q.End)
}
