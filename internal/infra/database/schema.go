package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"hydration_reminder/internal/domain/reminder"
)

// SchemaVersion is written into every persisted collection.
//
// On-disk layout (all keys):
//
//	{"version": 1, "entries": [...]}
//
// Timestamps are epoch milliseconds. The loader also accepts the older bare
// array layout and RFC 3339 timestamp strings, and ignores unknown fields.
const SchemaVersion = 1

type envelope struct {
	Version int               `json:"version"`
	Entries []json.RawMessage `json:"entries"`
}

// EncodeEnvelope serializes entries into the versioned envelope.
func EncodeEnvelope[T any](entries []T) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		raw = append(raw, b)
	}
	return json.Marshal(envelope{Version: SchemaVersion, Entries: raw})
}

// DecodeEnvelope returns the raw entries of a persisted collection. Entries
// are left undecoded so callers can drop malformed ones individually.
func DecodeEnvelope(b []byte) ([]json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] == '[' {
		var legacy []json.RawMessage
		if err := json.Unmarshal(b, &legacy); err != nil {
			return nil, fmt.Errorf("decoding legacy collection: %w", err)
		}
		return legacy, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decoding collection: %w", err)
	}
	return env.Entries, nil
}

// EpochMillis is a time encoded as epoch milliseconds.
type EpochMillis struct {
	time.Time
}

func (m EpochMillis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(m.UnixMilli(), 10)), nil
}

func (m *EpochMillis) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		m.Time = t
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	m.Time = time.UnixMilli(ms)
	return nil
}

type reminderRecord struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	ScheduledTime   EpochMillis    `json:"scheduledTime"`
	IntervalMinutes int            `json:"intervalMinutes,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
}

type historyRecord struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	SentAt EpochMillis `json:"sentAt"`
	Status string      `json:"status"`
}

// reminderPair is persisted as [id, reminder].
type reminderPair struct {
	id     string
	record reminderRecord
}

func (p reminderPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.id, p.record})
}

func toReminderPair(r reminder.ScheduledReminder) reminderPair {
	return reminderPair{id: r.ID, record: reminderRecord{
		ID:              r.ID,
		Title:           r.Title,
		Body:            r.Body,
		ScheduledTime:   EpochMillis{r.ScheduledTime},
		IntervalMinutes: r.IntervalMinutes,
		Data:            r.Data,
	}}
}

func decodeReminder(raw json.RawMessage) (reminder.ScheduledReminder, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return reminder.ScheduledReminder{}, fmt.Errorf("reminder entry is not an [id, reminder] pair: %w", err)
	}
	if len(pair) != 2 {
		return reminder.ScheduledReminder{}, fmt.Errorf("reminder pair has %d elements", len(pair))
	}
	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil || id == "" {
		return reminder.ScheduledReminder{}, fmt.Errorf("reminder pair has no id")
	}
	var rec reminderRecord
	if err := json.Unmarshal(pair[1], &rec); err != nil {
		return reminder.ScheduledReminder{}, fmt.Errorf("reminder %q: %w", id, err)
	}
	if rec.ScheduledTime.IsZero() {
		return reminder.ScheduledReminder{}, fmt.Errorf("reminder %q has no scheduled time", id)
	}
	if rec.IntervalMinutes < 0 {
		return reminder.ScheduledReminder{}, fmt.Errorf("reminder %q has negative interval", id)
	}
	return reminder.ScheduledReminder{
		ID:              id,
		Title:           rec.Title,
		Body:            rec.Body,
		ScheduledTime:   rec.ScheduledTime.Time,
		IntervalMinutes: rec.IntervalMinutes,
		Data:            rec.Data,
	}, nil
}

func toHistoryRecord(e reminder.HistoryEntry) historyRecord {
	return historyRecord{
		ID:     e.ID,
		Type:   string(e.Type),
		Title:  e.Title,
		Body:   e.Body,
		SentAt: EpochMillis{e.SentAt},
		Status: string(e.Status),
	}
}

func decodeHistory(raw json.RawMessage) (reminder.HistoryEntry, error) {
	var rec historyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return reminder.HistoryEntry{}, err
	}
	if rec.ID == "" {
		return reminder.HistoryEntry{}, fmt.Errorf("history entry has no id")
	}
	status := reminder.HistoryStatus(rec.Status)
	if !status.Valid() {
		return reminder.HistoryEntry{}, fmt.Errorf("history entry %q has unknown status %q", rec.ID, rec.Status)
	}
	typ := reminder.NotificationType(rec.Type)
	if typ == "" {
		typ = reminder.TypePush
	}
	return reminder.HistoryEntry{
		ID:     rec.ID,
		Type:   typ,
		Title:  rec.Title,
		Body:   rec.Body,
		SentAt: rec.SentAt.Time,
		Status: status,
	}, nil
}
