package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydration_reminder/internal/app"
	"hydration_reminder/internal/domain/delivery"
	"hydration_reminder/internal/domain/reminder"
)

func defaultSettings() reminder.Settings {
	return reminder.Settings{
		Notifications:    true,
		ReminderInterval: 60,
		QuietHours:       reminder.QuietHours{Start: "22:00", End: "07:00"},
		WeekendReminders: true,
	}
}

func newDispatcher(f *fixture, s reminder.Settings) *app.Dispatcher {
	return app.NewDispatcher(f.engine, app.StaticSettings(s), newTestLogger())
}

func TestDispatcher_PermissionPreCheck(t *testing.T) {
	ch := newStubChannel()
	f := newFixture(t, false, ch)
	ch.permission = delivery.PermissionDenied

	res := newDispatcher(f, defaultSettings()).SendReminder(context.Background(), app.Intent{Title: "Drink"})
	assert.False(t, res.Success)
	assert.Equal(t, "permission not granted", res.Error)
	assert.Equal(t, reminder.TypePush, res.Type)
	assert.Zero(t, ch.showCalls)
	assert.Empty(t, f.engine.History(0))
}

func TestDispatcher_ImmediateIsShown(t *testing.T) {
	ch := newStubChannel()
	f := newFixture(t, false, ch)

	res := newDispatcher(f, defaultSettings()).SendReminder(context.Background(), app.Intent{Title: "Drink", Body: "Now"})
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.ID)
	assert.True(t, res.SentAt.Equal(baseTime))
	assert.Equal(t, []string{"Drink"}, ch.shownTitles())
	assert.False(t, res.Deferred())
}

func TestDispatcher_FutureIsScheduled(t *testing.T) {
	ctx := context.Background()
	ch := newStubChannel()
	f := newFixture(t, false, ch)

	res := newDispatcher(f, defaultSettings()).SendReminder(ctx, app.Intent{
		ID: "later", Title: "Drink", ScheduledTime: baseTime.Add(2 * time.Hour), IntervalMinutes: 30,
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "later", res.ID)
	assert.Empty(t, ch.shownTitles())

	r, ok := f.store.GetReminder("later")
	require.True(t, ok)
	assert.Equal(t, 30, r.IntervalMinutes)
	assert.True(t, r.ScheduledTime.Equal(baseTime.Add(2*time.Hour)))
}

func TestDispatcher_QuietHoursDeferral(t *testing.T) {
	ctx := context.Background()
	ch := newStubChannel()
	f := newFixture(t, false, ch)
	f.clock.Set(time.Date(2024, time.March, 13, 23, 30, 0, 0, time.UTC))
	d := newDispatcher(f, defaultSettings())

	res := d.SendReminder(ctx, app.Intent{ID: "quiet", Title: "Drink", RespectQuietHours: true})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, ch.shownTitles())
	r, ok := f.store.GetReminder("quiet")
	require.True(t, ok)
	assert.True(t, r.ScheduledTime.Equal(time.Date(2024, time.March, 14, 7, 0, 0, 0, time.UTC)), "got %s", r.ScheduledTime)
	assert.True(t, res.Deferred())
	assert.True(t, res.ScheduledFor.Equal(r.ScheduledTime), "result reports %s", res.ScheduledFor)

	res = d.SendReminder(ctx, app.Intent{Title: "Urgent"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"Urgent"}, ch.shownTitles())
}

func TestDispatcher_EngineErrorBecomesResult(t *testing.T) {
	ch := newStubChannel()
	ch.failShows = 1
	f := newFixture(t, false, ch)

	res := newDispatcher(f, defaultSettings()).SendReminder(context.Background(), app.Intent{Title: "Drink"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, errShow.Error())
	assert.NotEmpty(t, res.ID)
}

func TestDispatcher_HydrationReminder(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		ch := newStubChannel()
		f := newFixture(t, false, ch)
		s := defaultSettings()
		s.Notifications = false

		res := newDispatcher(f, s).SendHydrationReminder(ctx, app.HydrationStats{ConsumedML: 500, GoalML: 2000})
		assert.False(t, res.Success)
		assert.Equal(t, "notifications disabled", res.Error)
		assert.Zero(t, ch.showCalls)
	})

	t.Run("smart skips met goal", func(t *testing.T) {
		ch := newStubChannel()
		f := newFixture(t, false, ch)
		s := defaultSettings()
		s.SmartReminders = true

		res := newDispatcher(f, s).SendHydrationReminder(ctx, app.HydrationStats{ConsumedML: 2100, GoalML: 2000})
		assert.Equal(t, "daily goal reached", res.Error)
		assert.Zero(t, ch.showCalls)
	})

	t.Run("sent", func(t *testing.T) {
		ch := newStubChannel()
		f := newFixture(t, false, ch)

		res := newDispatcher(f, defaultSettings()).SendHydrationReminder(ctx, app.HydrationStats{ConsumedML: 500, GoalML: 2000})
		require.True(t, res.Success, res.Error)
		require.Len(t, ch.shown, 1)
		assert.Contains(t, ch.shown[0].Body, "500 of 2000 ml")
		assert.Equal(t, "hydration", ch.shown[0].Data["kind"])
	})
}

func TestDispatcher_SummaryAndAchievement(t *testing.T) {
	ctx := context.Background()
	ch := newStubChannel()
	f := newFixture(t, false, ch)
	f.clock.Set(time.Date(2024, time.March, 13, 23, 0, 0, 0, time.UTC))
	d := newDispatcher(f, defaultSettings())

	res := d.SendDailySummary(ctx, app.HydrationStats{ConsumedML: 1500, GoalML: 2000, Streak: 3})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, ch.shownTitles(), "summary waits for quiet hours to end")
	pending, err := f.engine.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Contains(t, pending[0].Body, "75%")
	assert.Contains(t, pending[0].Body, "Streak: 3 days")

	res = d.SendAchievement(ctx, app.Achievement{ID: "first-liter", Title: "First liter", Description: "You drank 1 l"})
	require.True(t, res.Success, res.Error)
	require.Len(t, ch.shown, 1, "achievements ignore quiet hours")
	assert.Equal(t, "🏆 First liter", ch.shown[0].Title)
}
