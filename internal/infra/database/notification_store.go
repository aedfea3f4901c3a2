// internal/infra/database/notification_store.go
package database

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/domain/reminder"
)

const DefaultMaxHistory = 50

// NotificationStore keeps pending reminders and delivery history in memory
// and mirrors each collection to a KV backend after every mutation.
type NotificationStore struct {
	kv         KV
	logger     *logrus.Entry
	maxHistory int

	mu        sync.Mutex
	reminders map[string]reminder.ScheduledReminder
	history   []reminder.HistoryEntry // oldest first
}

var _ reminder.Store = (*NotificationStore)(nil)

// NewNotificationStore loads both collections from kv. Unreadable
// collections start empty; malformed entries are dropped.
func NewNotificationStore(ctx context.Context, kv KV, logger *logrus.Entry, maxHistory int) *NotificationStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &NotificationStore{
		kv:         kv,
		logger:     logger,
		maxHistory: maxHistory,
		reminders:  make(map[string]reminder.ScheduledReminder),
	}
	s.loadReminders(ctx)
	s.loadHistory(ctx)
	return s
}

func (s *NotificationStore) loadReminders(ctx context.Context) {
	entries, ok := s.loadCollection(ctx, KeyScheduledNotifications)
	if !ok {
		return
	}
	for _, raw := range entries {
		r, err := decodeReminder(raw)
		if err != nil {
			s.logger.WithError(err).Warn("Dropping malformed scheduled reminder")
			continue
		}
		s.reminders[r.ID] = r
	}
	s.logger.WithField("count", len(s.reminders)).Debug("Scheduled reminders loaded")
}

func (s *NotificationStore) loadHistory(ctx context.Context) {
	entries, ok := s.loadCollection(ctx, KeyNotificationHistory)
	if !ok {
		return
	}
	for _, raw := range entries {
		e, err := decodeHistory(raw)
		if err != nil {
			s.logger.WithError(err).Warn("Dropping malformed history entry")
			continue
		}
		s.history = append(s.history, e)
	}
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([]reminder.HistoryEntry(nil), s.history[over:]...)
	}
	s.logger.WithField("count", len(s.history)).Debug("Notification history loaded")
}

func (s *NotificationStore) loadCollection(ctx context.Context, key string) ([]json.RawMessage, bool) {
	b, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to read persisted collection, starting empty")
		return nil, false
	}
	if !found {
		return nil, false
	}
	entries, err := DecodeEnvelope(b)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Persisted collection is corrupt, starting empty")
		return nil, false
	}
	return entries, true
}

// --- Reminders ---

// UpsertReminder stores r with its Data normalized, so the live copy
// matches what a reload returns.
func (s *NotificationStore) UpsertReminder(ctx context.Context, r reminder.ScheduledReminder) {
	if data, err := reminder.NormalizeData(r.Data); err != nil {
		s.logger.WithError(err).WithField("reminder_id", r.ID).Warn("Reminder data kept as given")
	} else {
		r.Data = data
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
	s.persistRemindersLocked(ctx)
}

func (s *NotificationStore) RemoveReminder(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return false
	}
	delete(s.reminders, id)
	s.persistRemindersLocked(ctx)
	return true
}

func (s *NotificationStore) GetReminder(id string) (reminder.ScheduledReminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return r, ok
}

// ListReminders returns reminders ordered by scheduled time, then id.
func (s *NotificationStore) ListReminders() []reminder.ScheduledReminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRemindersLocked()
}

func (s *NotificationStore) UpdateReminders(ctx context.Context, fn func(tx reminder.ReminderTx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &reminderTx{m: s.reminders}
	fn(tx)
	if tx.changed {
		s.persistRemindersLocked(ctx)
	}
}

func (s *NotificationStore) ClearReminders(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = make(map[string]reminder.ScheduledReminder)
	s.persistRemindersLocked(ctx)
}

type reminderTx struct {
	m       map[string]reminder.ScheduledReminder
	changed bool
}

func (tx *reminderTx) Get(id string) (reminder.ScheduledReminder, bool) {
	r, ok := tx.m[id]
	return r, ok
}

func (tx *reminderTx) Put(r reminder.ScheduledReminder) {
	tx.m[r.ID] = r
	tx.changed = true
}

func (tx *reminderTx) Delete(id string) {
	if _, ok := tx.m[id]; ok {
		delete(tx.m, id)
		tx.changed = true
	}
}

// --- History ---

// AppendHistory appends e, evicting the oldest entries beyond the cap.
func (s *NotificationStore) AppendHistory(ctx context.Context, e reminder.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([]reminder.HistoryEntry(nil), s.history[over:]...)
	}
	s.persistHistoryLocked(ctx)
}

func (s *NotificationStore) ListHistory(limit int) []reminder.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]reminder.HistoryEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *NotificationStore) PurgeHistoryOlderThan(ctx context.Context, days int, now time.Time) int {
	cutoff := now.AddDate(0, 0, -days)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.history[:0:0]
	for _, e := range s.history {
		if e.SentAt.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(s.history) - len(kept)
	if removed > 0 {
		s.history = kept
		s.persistHistoryLocked(ctx)
	}
	return removed
}

func (s *NotificationStore) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = make(map[string]reminder.ScheduledReminder)
	s.history = nil
	s.persistRemindersLocked(ctx)
	s.persistHistoryLocked(ctx)
}

// --- Persistence ---

func (s *NotificationStore) sortedRemindersLocked() []reminder.ScheduledReminder {
	out := make([]reminder.ScheduledReminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}

// Persistence failures are logged and swallowed: the in-memory state stays
// authoritative for the session.
func (s *NotificationStore) persistRemindersLocked(ctx context.Context) {
	sorted := s.sortedRemindersLocked()
	pairs := make([]reminderPair, 0, len(sorted))
	for _, r := range sorted {
		pairs = append(pairs, toReminderPair(r))
	}
	writeCollection(ctx, s, KeyScheduledNotifications, pairs)
}

func (s *NotificationStore) persistHistoryLocked(ctx context.Context) {
	records := make([]historyRecord, 0, len(s.history))
	for _, e := range s.history {
		records = append(records, toHistoryRecord(e))
	}
	writeCollection(ctx, s, KeyNotificationHistory, records)
}

func writeCollection[T any](ctx context.Context, s *NotificationStore, key string, entries []T) {
	b, err := EncodeEnvelope(entries)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to serialize collection")
		return
	}
	if err := s.kv.Put(ctx, key, b); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to persist collection")
	}
}
