package reminder

import (
	"time"
)

// Settings are the user's reminder preferences. They are owned by the
// settings collaborator and only read here.
type Settings struct {
	Notifications    bool
	ReminderInterval int // minutes
	QuietHours       QuietHours
	WeekendReminders bool
	SmartReminders   bool
}

// Policy decides when reminders may be delivered, combining quiet hours
// and the weekend opt-out.
type Policy struct {
	Settings Settings
}

// Allows reports whether a reminder may be delivered at t.
func (p Policy) Allows(t time.Time) bool {
	if !p.Settings.QuietHours.IsAppropriateTime(t) {
		return false
	}
	if !p.Settings.WeekendReminders && isWeekend(t) {
		return false
	}
	return true
}

// NextAllowed returns t when it is allowed, otherwise the earliest later
// instant that is.
func (p Policy) NextAllowed(t time.Time) time.Time {
	next := t
	// A week of day-skips plus one quiet-window hop always suffices.
	for i := 0; i < 9; i++ {
		if p.Allows(next) {
			return next
		}
		if !p.Settings.WeekendReminders && isWeekend(next) {
			next = startOfNextDay(next)
			continue
		}
		next = p.Settings.QuietHours.AdjustOutOfWindow(next)
	}
	return next
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func startOfNextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
