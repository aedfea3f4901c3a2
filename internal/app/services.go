package app

import (
	"hydration_reminder/internal/domain/reminder"
	"hydration_reminder/internal/infra/logger"
)

// Services holds the long-lived components, built once at startup and
// passed to whatever drives them (CLI commands, the bot).
type Services struct {
	Store      reminder.Store
	Engine     *SchedulingEngine
	Dispatcher *Dispatcher
	Planner    *HydrationPlanner
	Logs       *logger.Buffer
	Settings   SettingsProvider
}
