// internal/domain/reminder/reminder.go
package reminder

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType is the delivery type recorded in history. Only push
// notifications exist today.
type NotificationType string

const TypePush NotificationType = "push"

// HistoryStatus is the outcome recorded for a delivered (or attempted) notification.
type HistoryStatus string

const (
	StatusPending  HistoryStatus = "pending"
	StatusSent     HistoryStatus = "sent"
	StatusFailed   HistoryStatus = "failed"
	StatusRetrying HistoryStatus = "retrying"
)

// Valid reports whether s is one of the known statuses.
func (s HistoryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// ScheduledReminder is a pending reminder owned by the store.
// IntervalMinutes > 0 makes it recurring; 0 means it fires once.
type ScheduledReminder struct {
	ID              string
	Title           string
	Body            string
	ScheduledTime   time.Time
	IntervalMinutes int
	Data            map[string]any
}

// Recurring reports whether the reminder is re-inserted after firing.
func (r ScheduledReminder) Recurring() bool {
	return r.IntervalMinutes > 0
}

// Interval returns the recurrence period, zero for one-shot reminders.
func (r ScheduledReminder) Interval() time.Duration {
	if r.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Due reports whether the reminder should fire at now.
func (r ScheduledReminder) Due(now time.Time) bool {
	return !r.ScheduledTime.After(now)
}

// NormalizeData returns d in the shape it has after a trip through
// storage: numbers become float64, nested values become maps and slices.
// An empty map normalizes to nil.
func NormalizeData(d map[string]any) (map[string]any, error) {
	if len(d) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("reminder data is not serializable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("reminder data is not serializable: %w", err)
	}
	return out, nil
}

// HistoryEntry records one delivery outcome.
type HistoryEntry struct {
	ID     string
	Type   NotificationType
	Title  string
	Body   string
	SentAt time.Time
	Status HistoryStatus
}
