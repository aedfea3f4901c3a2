package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/domain/reminder"
)

// HydrationPlanID is the id of the recurring reminder the planner owns.
const HydrationPlanID = "hydration-plan"

// HydrationPlanner turns reminder settings into the pending schedule. It
// is re-run whenever settings change.
type HydrationPlanner struct {
	engine *SchedulingEngine
	logger *logrus.Entry
}

func NewHydrationPlanner(engine *SchedulingEngine, logger *logrus.Entry) *HydrationPlanner {
	return &HydrationPlanner{engine: engine, logger: logger}
}

// Apply cancels everything pending and, when notifications are on,
// schedules one recurring reminder every ReminderInterval minutes with the
// first fire at the next allowed instant. The settings' policy is also
// installed on the engine so the checker honours it.
func (p *HydrationPlanner) Apply(ctx context.Context, s reminder.Settings) (*reminder.ScheduledReminder, error) {
	if err := s.QuietHours.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if s.Notifications && s.ReminderInterval <= 0 {
		return nil, fmt.Errorf("%w: reminder interval must be positive, got %d", ErrInvalidRequest, s.ReminderInterval)
	}
	if err := p.engine.CancelAll(ctx); err != nil {
		return nil, fmt.Errorf("clearing previous plan: %w", err)
	}

	if !s.Notifications {
		policy := reminder.Policy{Settings: s}
		p.engine.SetPolicy(&policy)
		p.logger.Info("Notifications disabled, hydration plan cleared")
		return nil, nil
	}
	return p.schedule(ctx, s)
}

func (p *HydrationPlanner) schedule(ctx context.Context, s reminder.Settings) (*reminder.ScheduledReminder, error) {
	if err := s.QuietHours.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if s.ReminderInterval <= 0 {
		return nil, fmt.Errorf("%w: reminder interval must be positive, got %d", ErrInvalidRequest, s.ReminderInterval)
	}
	policy := reminder.Policy{Settings: s}
	p.engine.SetPolicy(&policy)

	interval := time.Duration(s.ReminderInterval) * time.Minute
	first := policy.NextAllowed(p.engine.clock().Add(interval))
	r, err := p.engine.ScheduleNotification(ctx, ScheduleRequest{
		ID:              HydrationPlanID,
		Title:           "💧 Time to hydrate",
		Body:            "Have a glass of water.",
		ScheduledTime:   first,
		IntervalMinutes: s.ReminderInterval,
		Data:            map[string]any{"kind": "hydration"},
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling hydration plan: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"first":    first.Format(time.RFC3339),
		"interval": s.ReminderInterval,
	}).Info("Hydration plan scheduled")
	return &r, nil
}

// Ensure installs the settings' policy and schedules the plan only if it
// is not pending yet. Unlike Apply it leaves other reminders alone, so a
// restarted service keeps what was scheduled before.
func (p *HydrationPlanner) Ensure(ctx context.Context, s reminder.Settings) error {
	if !s.Notifications {
		policy := reminder.Policy{Settings: s}
		p.engine.SetPolicy(&policy)
		return nil
	}
	pending, err := p.engine.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("listing pending reminders: %w", err)
	}
	for _, r := range pending {
		if r.ID == HydrationPlanID {
			policy := reminder.Policy{Settings: s}
			p.engine.SetPolicy(&policy)
			p.logger.WithField("next", r.ScheduledTime.Format(time.RFC3339)).Debug("Hydration plan already scheduled")
			return nil
		}
	}
	_, err = p.schedule(ctx, s)
	return err
}
