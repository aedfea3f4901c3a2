package database

import (
	"context"

	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/domain/reminder"
)

// AlarmSnapshot keeps the native alarm host's registrations under
// KeyNativeAlarms, in the same layout as scheduled_notifications, so
// alarms survive a restart of the host process.
type AlarmSnapshot struct {
	kv     KV
	logger *logrus.Entry
}

func NewAlarmSnapshot(kv KV, logger *logrus.Entry) *AlarmSnapshot {
	return &AlarmSnapshot{kv: kv, logger: logger}
}

// Save replaces the snapshot. Failures are logged.
func (a *AlarmSnapshot) Save(ctx context.Context, alarms []reminder.ScheduledReminder) {
	pairs := make([]reminderPair, 0, len(alarms))
	for _, r := range alarms {
		pairs = append(pairs, toReminderPair(r))
	}
	b, err := EncodeEnvelope(pairs)
	if err != nil {
		a.logger.WithError(err).Error("Failed to serialize alarm snapshot")
		return
	}
	if err := a.kv.Put(ctx, KeyNativeAlarms, b); err != nil {
		a.logger.WithError(err).Error("Failed to persist alarm snapshot")
	}
}

// Load returns the saved alarms, dropping malformed entries.
func (a *AlarmSnapshot) Load(ctx context.Context) []reminder.ScheduledReminder {
	b, found, err := a.kv.Get(ctx, KeyNativeAlarms)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to read alarm snapshot")
		return nil
	}
	if !found {
		return nil
	}
	entries, err := DecodeEnvelope(b)
	if err != nil {
		a.logger.WithError(err).Warn("Alarm snapshot is corrupt, ignoring it")
		return nil
	}
	out := make([]reminder.ScheduledReminder, 0, len(entries))
	for _, raw := range entries {
		r, err := decodeReminder(raw)
		if err != nil {
			a.logger.WithError(err).Warn("Dropping malformed alarm")
			continue
		}
		out = append(out, r)
	}
	return out
}
