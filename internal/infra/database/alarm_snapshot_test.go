package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydration_reminder/internal/domain/reminder"
	"hydration_reminder/internal/infra/database"
)

func TestAlarmSnapshot_SaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKV()
	snap := database.NewAlarmSnapshot(kv, newTestLogger())

	assert.Empty(t, snap.Load(ctx))

	at := time.Date(2024, time.March, 13, 11, 0, 0, 0, time.UTC)
	snap.Save(ctx, []reminder.ScheduledReminder{sampleReminder("a", at), sampleReminder("b", at.Add(time.Hour))})

	got := snap.Load(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, got[1].ScheduledTime.Equal(at.Add(time.Hour)))
	assert.Equal(t, "hydration", got[0].Data["kind"])

	snap.Save(ctx, nil)
	assert.Empty(t, snap.Load(ctx))
}

func TestAlarmSnapshot_CorruptIsIgnored(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKV()
	require.NoError(t, kv.Put(ctx, database.KeyNativeAlarms, []byte("{not json")))

	assert.Empty(t, database.NewAlarmSnapshot(kv, newTestLogger()).Load(ctx))
}
