// internal/domain/reminder/repository.go
package reminder

import (
	"context"
	"time"
)

// Store holds pending reminders and the delivery history.
//
// The in-memory state is authoritative for the session. Mutations mirror
// the affected collection to durable storage before returning; mirror
// failures are logged by the implementation and never returned.
type Store interface {
	UpsertReminder(ctx context.Context, r ScheduledReminder)
	RemoveReminder(ctx context.Context, id string) bool
	GetReminder(id string) (ScheduledReminder, bool)
	ListReminders() []ScheduledReminder
	// UpdateReminders runs fn under the store lock and persists once
	// afterwards if fn changed anything.
	UpdateReminders(ctx context.Context, fn func(tx ReminderTx))
	ClearReminders(ctx context.Context)

	AppendHistory(ctx context.Context, e HistoryEntry)
	// ListHistory returns up to limit entries, most recent first.
	// limit <= 0 returns everything.
	ListHistory(limit int) []HistoryEntry
	PurgeHistoryOlderThan(ctx context.Context, days int, now time.Time) int

	ClearAll(ctx context.Context)
}

// ReminderTx is the view of the reminder map inside UpdateReminders.
type ReminderTx interface {
	Get(id string) (ScheduledReminder, bool)
	Put(r ScheduledReminder)
	Delete(id string)
}
