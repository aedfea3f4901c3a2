package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydration_reminder/internal/infra/database"
)

// setupEnv points the CLI at a file store in a temp dir with console
// delivery.
func setupEnv(t *testing.T, platform string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("PLATFORM", platform)
	t.Setenv("STORAGE_DRIVER", "file")
	t.Setenv("STORAGE_PATH", t.TempDir())
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FILE", "")
	t.Setenv("NOTIFICATIONS_ENABLED", "true")
	t.Setenv("REMINDER_INTERVAL_MINUTES", "60")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_ScheduleListCancel(t *testing.T) {
	setupEnv(t, "web")

	out, err := run(t, "schedule", "--id", "water", "--title", "Drink", "--in", "1h", "--every", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled water at")

	out, err = run(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "water")
	assert.Contains(t, out, "30m")
	assert.Contains(t, out, "Drink")

	out, err = run(t, "cancel")
	require.NoError(t, err)
	assert.Contains(t, out, "all reminders cancelled")

	out, err = run(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "no reminders scheduled")
}

func TestCLI_SendRecordsHistoryAndLogs(t *testing.T) {
	setupEnv(t, "web")

	out, err := run(t, "send", "message", "--title", "Hello", "--body", "World")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello: World")
	assert.Contains(t, out, "accepted")

	out, err = run(t, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "sent")
	assert.Contains(t, out, "Hello")

	out, err = run(t, "logs", "--format", "json", "--service", "scheduling-engine")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.NotEmpty(t, records)
	messages := make([]any, 0, len(records))
	for _, r := range records {
		assert.Equal(t, "scheduling-engine", r["service"])
		messages = append(messages, r["message"])
	}
	assert.Contains(t, messages, "Notification shown")

	_, err = run(t, "logs", "--format", "yaml")
	assert.Error(t, err)

	out, err = run(t, "purge", "--days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 entries")
}

func TestCLI_WarnsWhileServeIsRunning(t *testing.T) {
	setupEnv(t, "web")
	dir := t.TempDir()
	t.Setenv("STORAGE_PATH", dir)

	out, err := run(t, "cancel")
	require.NoError(t, err)
	assert.NotContains(t, out, "warning")

	kv, err := database.NewFileKV(dir)
	require.NoError(t, err)
	hb := database.NewHeartbeat(kv, logrus.NewEntry(logrus.New()))
	require.NoError(t, hb.Beat(context.Background(), 4242, time.Now()))

	out, err = run(t, "schedule", "--title", "Drink", "--in", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "warning: serve (pid 4242")

	out, err = run(t, "cancel")
	require.NoError(t, err)
	assert.Contains(t, out, "all reminders cancelled")
	assert.Contains(t, out, "warning: serve (pid 4242")

	require.NoError(t, hb.Beat(context.Background(), 4242, time.Now().Add(-time.Hour)))
	out, err = run(t, "cancel")
	require.NoError(t, err)
	assert.NotContains(t, out, "warning", "stale heartbeat")
}

func TestCLI_ScheduleValidation(t *testing.T) {
	setupEnv(t, "web")

	_, err := run(t, "schedule", "--title", "Drink")
	assert.Error(t, err, "needs --at or --in")

	_, err = run(t, "schedule", "--title", "Drink", "--at", "tomorrow")
	assert.Error(t, err)

	_, err = run(t, "send", "message", "--title", "")
	assert.Error(t, err)
}

func TestCLI_Plan(t *testing.T) {
	setupEnv(t, "web")
	t.Setenv("WEEKEND_REMINDERS", "true")

	out, err := run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "hydration reminders every 60 minutes")

	out, err = run(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "hydration-plan")

	t.Setenv("NOTIFICATIONS_ENABLED", "false")
	out, err = run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "notifications disabled")
}

func TestCLI_NativeAlarmsSurviveAcrossRuns(t *testing.T) {
	setupEnv(t, "native")

	_, err := run(t, "schedule", "--id", "evening", "--title", "Drink", "--in", "2h")
	require.NoError(t, err)

	out, err := run(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "evening")

	out, err = run(t, "permission")
	require.NoError(t, err)
	assert.Contains(t, out, "granted")
}

func TestResolveTime(t *testing.T) {
	now := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

	got, err := resolveTime("", 90*time.Minute, now)
	require.NoError(t, err)
	assert.True(t, got.Equal(now.Add(90*time.Minute)))

	got, err = resolveTime("11:15", 0, now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, time.March, 13, 11, 15, 0, 0, time.UTC)))

	got, err = resolveTime("09:00", 0, now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)), "passed clock rolls to tomorrow")

	got, err = resolveTime("2024-03-20T08:00:00Z", 0, now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, time.March, 20, 8, 0, 0, 0, time.UTC)))

	_, err = resolveTime("", -time.Minute, now)
	assert.Error(t, err)
}
