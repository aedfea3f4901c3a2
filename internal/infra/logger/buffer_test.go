package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydration_reminder/internal/infra/database"
	"hydration_reminder/internal/infra/logger"
)

type brokenKV struct {
	*database.MemoryKV
}

func (brokenKV) Put(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func fixedClock() func() time.Time {
	t := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestBuffer_CapacityAndPersistedTail(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKV()
	buf := logger.NewBuffer(kv, logger.BufferOptions{Capacity: 10, PersistTail: 4, Clock: fixedClock()})

	for i := 0; i < 15; i++ {
		buf.Log(logger.LevelInfo, fmt.Sprintf("msg-%d", i), nil, "test")
	}

	all := buf.All()
	require.Len(t, all, 10)
	assert.Equal(t, "msg-5", all[0].Message)
	assert.Equal(t, "msg-14", all[9].Message)

	raw, ok, err := kv.Get(ctx, database.KeyNotificationLogs)
	require.NoError(t, err)
	require.True(t, ok)
	var env struct {
		Version int               `json:"version"`
		Entries []json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, database.SchemaVersion, env.Version)
	assert.Len(t, env.Entries, 4)

	restored := logger.NewBuffer(kv, logger.BufferOptions{Capacity: 10, PersistTail: 4})
	restored.Restore(ctx)
	got := restored.All()
	require.Len(t, got, 4)
	assert.Equal(t, "msg-11", got[0].Message)
	assert.Equal(t, "msg-14", got[3].Message)
	assert.Equal(t, "test", got[3].Service)
	assert.Equal(t, logger.LevelInfo, got[3].Level)
}

func TestBuffer_Queries(t *testing.T) {
	buf := logger.NewBuffer(database.NewMemoryKV(), logger.BufferOptions{Clock: fixedClock()})
	buf.Log(logger.LevelInfo, "a", nil, "engine")
	buf.Log(logger.LevelError, "b", map[string]any{"id": "r1"}, "store")
	buf.Log(logger.LevelWarn, "c", nil, "")
	buf.Log(logger.LevelError, "d", nil, "engine")

	assert.Len(t, buf.ByLevel(logger.LevelError), 2)
	assert.Len(t, buf.ByService("engine"), 2)
	assert.Equal(t, "app", buf.ByLevel(logger.LevelWarn)[0].Service)

	recent := buf.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Message)
	assert.Equal(t, "d", recent[1].Message)
	assert.Len(t, buf.Recent(100), 4)
	assert.Empty(t, buf.Recent(0))

	buf.Clear()
	assert.Empty(t, buf.All())
}

func TestBuffer_PersistFailureNeverRaises(t *testing.T) {
	var diag bytes.Buffer
	buf := logger.NewBuffer(brokenKV{database.NewMemoryKV()}, logger.BufferOptions{Diagnostics: &diag})

	assert.NotPanics(t, func() {
		buf.Log(logger.LevelError, "boom", nil, "test")
	})
	assert.Len(t, buf.All(), 1)
	assert.Contains(t, diag.String(), "quota exceeded")
}

func TestBuffer_HookCapturesLogrusEntries(t *testing.T) {
	buf := logger.NewBuffer(database.NewMemoryKV(), logger.BufferOptions{})
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)
	log.AddHook(buf)

	entry := logger.ForService(log, "scheduling_engine")
	entry.WithField("reminder_id", "r1").WithError(errors.New("host down")).Error("Failed to schedule")
	entry.Debug("tick")
	log.Warn("no service")

	all := buf.All()
	require.Len(t, all, 3)

	assert.Equal(t, logger.LevelError, all[0].Level)
	assert.Equal(t, "scheduling_engine", all[0].Service)
	assert.Equal(t, "r1", all[0].Data["reminder_id"])
	assert.Equal(t, "host down", all[0].Data[logrus.ErrorKey])
	_, hasService := all[0].Data[logger.ServiceField]
	assert.False(t, hasService)

	assert.Equal(t, logger.LevelDebug, all[1].Level)
	assert.Equal(t, logger.LevelWarn, all[2].Level)
	assert.Equal(t, "app", all[2].Service)
}

func TestBuffer_Export(t *testing.T) {
	buf := logger.NewBuffer(database.NewMemoryKV(), logger.BufferOptions{Clock: fixedClock()})
	buf.Log(logger.LevelInfo, "scheduled", map[string]any{"id": "r1", "interval": 60}, "engine")
	buf.Log(logger.LevelWarn, "late", nil, "checker")

	js, err := buf.ExportJSON()
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "2024-05-02T09:00:01Z", decoded[0]["timestamp"])
	assert.Equal(t, "INFO", decoded[0]["level"])
	assert.Equal(t, "engine", decoded[0]["service"])

	text := buf.ExportText()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-05-02T09:00:01.000Z [INFO] [engine] scheduled id=r1 interval=60", lines[0])
	assert.Equal(t, "2024-05-02T09:00:02.000Z [WARN] [checker] late", lines[1])
}

func TestBuffer_RestoreSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKV()
	require.NoError(t, kv.Put(ctx, database.KeyNotificationLogs, []byte(`{"version":1,"entries":[
		{"timestamp":1714640000000,"level":"INFO","message":"kept","service":"engine"},
		{"timestamp":1714640000000,"level":"LOUD","message":"bad level"},
		{"timestamp":1714640000000,"level":"INFO"},
		"junk"
	]}`)))

	buf := logger.NewBuffer(kv, logger.BufferOptions{})
	buf.Restore(ctx)
	all := buf.All()
	require.Len(t, all, 1)
	assert.Equal(t, "kept", all[0].Message)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]logger.Level{
		"debug": logger.LevelDebug, "INFO": logger.LevelInfo,
		"warning": logger.LevelWarn, " Error ": logger.LevelError,
	} {
		got, err := logger.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := logger.ParseLevel("verbose")
	assert.Error(t, err)
}
