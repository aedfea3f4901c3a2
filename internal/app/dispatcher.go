package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/domain/delivery"
	"hydration_reminder/internal/domain/reminder"
)

const (
	reasonNotificationsDisabled = "notifications disabled"
	reasonGoalReached           = "daily goal reached"
)

// Intent is a request to notify the user, now or later.
type Intent struct {
	ID                string
	Title             string
	Body              string
	ScheduledTime     time.Time // zero or past means now
	IntervalMinutes   int
	Data              map[string]any
	RespectQuietHours bool
}

// DeliveryResult reports what happened to an intent. Error is empty on
// success. ScheduledFor is set when the intent was scheduled instead of
// shown, after any quiet-hours deferral.
type DeliveryResult struct {
	Success      bool
	Type         reminder.NotificationType
	ID           string
	Error        string
	SentAt       time.Time
	ScheduledFor time.Time
}

// Deferred reports whether the intent is waiting for a later fire.
func (r DeliveryResult) Deferred() bool { return !r.ScheduledFor.IsZero() }

// HydrationStats is the day's progress used to word reminders.
type HydrationStats struct {
	ConsumedML int
	GoalML     int
	Streak     int
}

func (s HydrationStats) GoalReached() bool {
	return s.GoalML > 0 && s.ConsumedML >= s.GoalML
}

func (s HydrationStats) Percent() int {
	if s.GoalML <= 0 {
		return 0
	}
	return s.ConsumedML * 100 / s.GoalML
}

type Achievement struct {
	ID          string
	Title       string
	Description string
}

// SettingsProvider returns the current user settings.
type SettingsProvider interface {
	Settings() reminder.Settings
}

// StaticSettings serves fixed settings.
type StaticSettings reminder.Settings

func (s StaticSettings) Settings() reminder.Settings { return reminder.Settings(s) }

// Dispatcher is the single entry point feature code uses to notify the
// user. It never returns errors: every outcome is a DeliveryResult.
type Dispatcher struct {
	engine   *SchedulingEngine
	settings SettingsProvider
	clock    func() time.Time
	logger   *logrus.Entry
}

func NewDispatcher(engine *SchedulingEngine, settings SettingsProvider, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		settings: settings,
		clock:    engine.clock,
		logger:   logger,
	}
}

// SendReminder delivers or schedules an intent. Intents dated in the
// future are scheduled; the rest are shown immediately. Quiet hours defer
// intents that ask for it.
func (d *Dispatcher) SendReminder(ctx context.Context, in Intent) DeliveryResult {
	now := d.clock()
	res := DeliveryResult{Type: reminder.TypePush, ID: in.ID}
	log := d.logger.WithField("title", in.Title)

	if d.engine.CheckPermission(ctx) != delivery.PermissionGranted {
		log.Warn("Reminder dropped, permission not granted")
		res.Error = ErrPermissionNotGranted.Error()
		return res
	}

	at := in.ScheduledTime
	if in.RespectQuietHours {
		base := at
		if base.Before(now) {
			base = now
		}
		qh := d.settings.Settings().QuietHours
		if qh.IsWithinQuietWindow(base) {
			at = qh.AdjustOutOfWindow(base)
			log.WithField("until", at.Format(time.RFC3339)).Info("Reminder deferred past quiet hours")
		}
	}

	if at.After(now) {
		r, err := d.engine.ScheduleNotification(ctx, ScheduleRequest{
			ID:              in.ID,
			Title:           in.Title,
			Body:            in.Body,
			ScheduledTime:   at,
			IntervalMinutes: in.IntervalMinutes,
			Data:            in.Data,
		})
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Success = true
		res.ID = r.ID
		res.SentAt = now
		res.ScheduledFor = r.ScheduledTime
		return res
	}

	entry, err := d.engine.ShowNotification(ctx, delivery.Notice{
		ID:    in.ID,
		Title: in.Title,
		Body:  in.Body,
		Data:  in.Data,
	})
	res.ID = entry.ID
	res.SentAt = entry.SentAt
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func (d *Dispatcher) skipped(reason string) DeliveryResult {
	d.logger.WithField("reason", reason).Debug("Reminder skipped")
	return DeliveryResult{Type: reminder.TypePush, Error: reason}
}

// SendHydrationReminder nudges the user to drink. With smart reminders on
// it stays silent once the daily goal is met.
func (d *Dispatcher) SendHydrationReminder(ctx context.Context, stats HydrationStats) DeliveryResult {
	s := d.settings.Settings()
	if !s.Notifications {
		return d.skipped(reasonNotificationsDisabled)
	}
	if s.SmartReminders && stats.GoalReached() {
		return d.skipped(reasonGoalReached)
	}
	body := "Time for a glass of water."
	if stats.GoalML > 0 {
		body = fmt.Sprintf("You've had %d of %d ml today. Time for a glass of water.", stats.ConsumedML, stats.GoalML)
	}
	return d.SendReminder(ctx, Intent{
		Title:             "💧 Time to hydrate",
		Body:              body,
		Data:              map[string]any{"kind": "hydration", "consumedMl": stats.ConsumedML, "goalMl": stats.GoalML},
		RespectQuietHours: true,
	})
}

func (d *Dispatcher) SendDailySummary(ctx context.Context, stats HydrationStats) DeliveryResult {
	if !d.settings.Settings().Notifications {
		return d.skipped(reasonNotificationsDisabled)
	}
	body := fmt.Sprintf("You drank %d ml today, %d%% of your %d ml goal.", stats.ConsumedML, stats.Percent(), stats.GoalML)
	if stats.Streak > 1 {
		body += fmt.Sprintf(" Streak: %d days.", stats.Streak)
	}
	return d.SendReminder(ctx, Intent{
		Title:             "📊 Daily hydration summary",
		Body:              body,
		Data:              map[string]any{"kind": "summary", "consumedMl": stats.ConsumedML, "goalMl": stats.GoalML},
		RespectQuietHours: true,
	})
}

// SendAchievement is delivered immediately, quiet hours or not.
func (d *Dispatcher) SendAchievement(ctx context.Context, a Achievement) DeliveryResult {
	if !d.settings.Settings().Notifications {
		return d.skipped(reasonNotificationsDisabled)
	}
	return d.SendReminder(ctx, Intent{
		Title: "🏆 " + a.Title,
		Body:  a.Description,
		Data:  map[string]any{"kind": "achievement", "achievementId": a.ID},
	})
}
