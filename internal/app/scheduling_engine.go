// internal/app/scheduling_engine.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/domain/delivery"
	"hydration_reminder/internal/domain/reminder"
	"hydration_reminder/internal/infra/retry"
)

var (
	ErrPermissionNotGranted = errors.New("permission not granted")
	ErrInvalidRequest       = errors.New("invalid notification request")
)

const (
	CheckerInterval = time.Minute
	checkerJobName  = "due_reminder_checker"
)

var (
	DefaultScheduleRetry = retry.Config{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2}
	DefaultShowRetry     = retry.Config{MaxRetries: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffMultiplier: 2}
)

// Ticker runs fn periodically until the returned stop func is called.
type Ticker interface {
	Every(name string, interval time.Duration, fn func(ctx context.Context)) (stop func(), err error)
}

// ScheduleRequest describes a reminder to schedule. A zero ScheduledTime
// means now and an empty ID gets a generated one.
type ScheduleRequest struct {
	ID              string
	Title           string
	Body            string
	ScheduledTime   time.Time
	IntervalMinutes int
	Data            map[string]any
}

type EngineConfig struct {
	Channel    delivery.Channel
	Capability delivery.PlatformCapability
	Store      reminder.Store
	Ticker     Ticker
	Logger     *logrus.Entry

	// Optional.
	Clock         func() time.Time
	NewID         func() string
	Policy        *reminder.Policy
	ScheduleRetry *retry.Config
	ShowRetry     *retry.Config
	RetryOptions  []retry.Option
}

// SchedulingEngine owns pending reminders and drives delivery through the
// resolved channel. On a native host the channel's alarm subsystem fires
// reminders; otherwise the engine's own checker does.
type SchedulingEngine struct {
	channel   delivery.Channel
	alarms    delivery.AlarmChannel // nil on web hosts
	store     reminder.Store
	ticker    Ticker
	logger    *logrus.Entry
	clock     func() time.Time
	newID     func() string
	schedule  retry.Config
	show      retry.Config
	retryOpts []retry.Option

	mu          sync.Mutex
	policy      *reminder.Policy
	stopChecker func()
}

func NewSchedulingEngine(cfg EngineConfig) (*SchedulingEngine, error) {
	if cfg.Channel == nil || cfg.Capability == nil || cfg.Store == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("scheduling engine: channel, capability, store and logger are required")
	}
	e := &SchedulingEngine{
		channel:   cfg.Channel,
		store:     cfg.Store,
		ticker:    cfg.Ticker,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
		schedule:  DefaultScheduleRetry,
		show:      DefaultShowRetry,
		retryOpts: cfg.RetryOptions,
		policy:    cfg.Policy,
	}
	if cfg.Capability.IsNative() {
		alarms, ok := cfg.Channel.(delivery.AlarmChannel)
		if !ok {
			return nil, fmt.Errorf("scheduling engine: platform %q is native but channel %s has no alarms", cfg.Capability.Platform(), cfg.Channel.Name())
		}
		e.alarms = alarms
	} else if cfg.Ticker == nil {
		return nil, fmt.Errorf("scheduling engine: platform %q needs a ticker", cfg.Capability.Platform())
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if cfg.ScheduleRetry != nil {
		e.schedule = *cfg.ScheduleRetry
	}
	if cfg.ShowRetry != nil {
		e.show = *cfg.ShowRetry
	}
	return e, nil
}

// IsNative reports whether reminders are fired by the host alarm channel.
func (e *SchedulingEngine) IsNative() bool { return e.alarms != nil }

// SetPolicy replaces the delivery policy used by the checker. nil disables it.
func (e *SchedulingEngine) SetPolicy(p *reminder.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

func (e *SchedulingEngine) currentPolicy() *reminder.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// Initialize registers the native fire listener and runs the startup
// permission check. Only listener setup can fail it.
func (e *SchedulingEngine) Initialize(ctx context.Context) error {
	if e.alarms != nil {
		if err := e.alarms.OnFired(e.handleFired); err != nil {
			return fmt.Errorf("registering alarm listener: %w", err)
		}
	}

	log := e.logger.WithField("channel", e.channel.Name())
	perm := e.channel.CheckPermission(ctx)
	if perm == delivery.PermissionDefault {
		perm = e.channel.RequestPermission(ctx)
	}
	if perm != delivery.PermissionGranted {
		log.WithField("permission", perm).Warn("Notification permission not granted")
	} else {
		log.Info("Scheduling engine initialized")
	}
	return nil
}

func (e *SchedulingEngine) handleFired(r reminder.ScheduledReminder, firedAt time.Time, err error) {
	entry := reminder.HistoryEntry{
		ID:     e.newID(),
		Type:   reminder.TypePush,
		Title:  r.Title,
		Body:   r.Body,
		SentAt: firedAt,
		Status: reminder.StatusSent,
	}
	if err != nil {
		entry.Status = reminder.StatusFailed
	}
	e.store.AppendHistory(context.Background(), entry)
}

func (e *SchedulingEngine) retryOptions(log *logrus.Entry) []retry.Option {
	opts := make([]retry.Option, 0, len(e.retryOpts)+1)
	opts = append(opts, e.retryOpts...)
	return append(opts, retry.WithNotify(func(err error, attempt int, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "wait": wait.String()}).Warn("Delivery attempt failed, retrying")
	}))
}

// ScheduleNotification registers a reminder. Native hosts get it through
// the alarm channel with retries; web hosts keep it in the store for the
// checker. Re-using an ID replaces the pending reminder.
func (e *SchedulingEngine) ScheduleNotification(ctx context.Context, req ScheduleRequest) (reminder.ScheduledReminder, error) {
	if req.Title == "" {
		return reminder.ScheduledReminder{}, fmt.Errorf("%w: empty title", ErrInvalidRequest)
	}
	if req.IntervalMinutes < 0 {
		return reminder.ScheduledReminder{}, fmt.Errorf("%w: negative interval %d", ErrInvalidRequest, req.IntervalMinutes)
	}
	data, err := reminder.NormalizeData(req.Data)
	if err != nil {
		return reminder.ScheduledReminder{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r := reminder.ScheduledReminder{
		ID:              req.ID,
		Title:           req.Title,
		Body:            req.Body,
		ScheduledTime:   req.ScheduledTime,
		IntervalMinutes: req.IntervalMinutes,
		Data:            data,
	}
	if r.ID == "" {
		r.ID = e.newID()
	}
	if r.ScheduledTime.IsZero() {
		r.ScheduledTime = e.clock()
	}
	log := e.logger.WithFields(logrus.Fields{
		"reminder_id": r.ID,
		"at":          r.ScheduledTime.Format(time.RFC3339),
		"interval":    r.IntervalMinutes,
	})

	if e.alarms != nil {
		res := retry.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.alarms.Schedule(ctx, r)
		}, e.schedule, e.retryOptions(log)...)
		if !res.Success {
			log.WithError(res.Err).WithField("retries", res.RetriedCount).Error("Failed to schedule reminder")
			return reminder.ScheduledReminder{}, fmt.Errorf("scheduling reminder %s: %w", r.ID, res.Err)
		}
		log.WithField("retries", res.RetriedCount).Info("Reminder scheduled with host alarms")
		return r, nil
	}

	e.store.UpsertReminder(ctx, r)
	log.Info("Reminder scheduled")
	return r, nil
}

// ShowNotification delivers n right now and records the outcome in
// history. Native hosts retry; web hosts try once.
func (e *SchedulingEngine) ShowNotification(ctx context.Context, n delivery.Notice) (reminder.HistoryEntry, error) {
	if n.Title == "" {
		return reminder.HistoryEntry{}, fmt.Errorf("%w: empty title", ErrInvalidRequest)
	}
	if n.ID == "" {
		n.ID = e.newID()
	}
	log := e.logger.WithField("notice_id", n.ID)

	var err error
	if e.alarms != nil {
		res := retry.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.channel.Show(ctx, n)
		}, e.show, e.retryOptions(log)...)
		err = res.Err
	} else {
		err = e.channel.Show(ctx, n)
	}

	entry := reminder.HistoryEntry{
		ID:     n.ID,
		Type:   reminder.TypePush,
		Title:  n.Title,
		Body:   n.Body,
		SentAt: e.clock(),
		Status: reminder.StatusSent,
	}
	if err != nil {
		entry.Status = reminder.StatusFailed
		e.store.AppendHistory(ctx, entry)
		log.WithError(err).Error("Failed to show notification")
		return entry, fmt.Errorf("showing notification %s: %w", n.ID, err)
	}
	e.store.AppendHistory(ctx, entry)
	log.Info("Notification shown")
	return entry, nil
}

// StartChecker begins the periodic due-reminder scan. It does nothing on
// native hosts or when already running.
func (e *SchedulingEngine) StartChecker(ctx context.Context) error {
	if e.alarms != nil {
		e.logger.Debug("Host alarms fire reminders, checker not started")
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopChecker != nil {
		return nil
	}
	stop, err := e.ticker.Every(checkerJobName, CheckerInterval, func(tickCtx context.Context) {
		e.CheckDueReminders(tickCtx)
	})
	if err != nil {
		return fmt.Errorf("starting reminder checker: %w", err)
	}
	e.stopChecker = stop
	e.logger.WithField("interval", CheckerInterval.String()).Info("Reminder checker started")
	return nil
}

func (e *SchedulingEngine) StopChecker() {
	e.mu.Lock()
	stop := e.stopChecker
	e.stopChecker = nil
	e.mu.Unlock()
	if stop != nil {
		stop()
		e.logger.Info("Reminder checker stopped")
	}
}

// CheckDueReminders fires every due reminder once, then moves recurring
// ones to now+interval and drops one-shots. With a policy, reminders due
// outside the allowed window are deferred without delivery. Returns the
// number of reminders delivered or attempted.
func (e *SchedulingEngine) CheckDueReminders(ctx context.Context) int {
	now := e.clock()
	var due []reminder.ScheduledReminder
	for _, r := range e.store.ListReminders() {
		if r.Due(now) {
			due = append(due, r)
		}
	}
	if len(due) == 0 {
		return 0
	}

	type change struct {
		seen   reminder.ScheduledReminder
		next   reminder.ScheduledReminder
		remove bool
	}
	changes := make([]change, 0, len(due))
	policy := e.currentPolicy()
	fired := 0

	for _, r := range due {
		log := e.logger.WithField("reminder_id", r.ID)
		if policy != nil && !policy.Allows(now) {
			next := r
			next.ScheduledTime = policy.NextAllowed(now)
			changes = append(changes, change{seen: r, next: next})
			log.WithField("until", next.ScheduledTime.Format(time.RFC3339)).Info("Reminder deferred by delivery policy")
			continue
		}

		_, err := e.ShowNotification(ctx, delivery.Notice{
			ID:    e.newID(),
			Title: r.Title,
			Body:  r.Body,
			Tag:   r.ID,
			Data:  r.Data,
		})
		if err != nil {
			log.WithError(err).Warn("Due reminder delivery failed")
		}
		fired++

		if r.Recurring() {
			next := r
			next.ScheduledTime = now.Add(r.Interval())
			changes = append(changes, change{seen: r, next: next})
		} else {
			changes = append(changes, change{seen: r, remove: true})
		}
	}

	e.store.UpdateReminders(ctx, func(tx reminder.ReminderTx) {
		for _, c := range changes {
			cur, ok := tx.Get(c.seen.ID)
			// Cancelled or replaced while we were delivering.
			if !ok || !cur.ScheduledTime.Equal(c.seen.ScheduledTime) {
				continue
			}
			if c.remove {
				tx.Delete(c.seen.ID)
			} else {
				tx.Put(c.next)
			}
		}
	})

	e.logger.WithFields(logrus.Fields{"due": len(due), "fired": fired}).Debug("Due reminders processed")
	return fired
}

// CancelAll removes every pending reminder.
func (e *SchedulingEngine) CancelAll(ctx context.Context) error {
	if e.alarms != nil {
		pending, err := e.alarms.ListPending(ctx)
		if err != nil {
			return fmt.Errorf("listing host alarms: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}
		ids := make([]string, 0, len(pending))
		for _, r := range pending {
			ids = append(ids, r.ID)
		}
		if err := e.alarms.CancelAll(ctx, ids); err != nil {
			return fmt.Errorf("cancelling host alarms: %w", err)
		}
		e.logger.WithField("count", len(ids)).Info("All host alarms cancelled")
		return nil
	}
	e.store.ClearReminders(ctx)
	e.logger.Info("All reminders cancelled")
	return nil
}

func (e *SchedulingEngine) GetPending(ctx context.Context) ([]reminder.ScheduledReminder, error) {
	if e.alarms != nil {
		pending, err := e.alarms.ListPending(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing host alarms: %w", err)
		}
		return pending, nil
	}
	return e.store.ListReminders(), nil
}

func (e *SchedulingEngine) CheckPermission(ctx context.Context) delivery.Permission {
	return e.channel.CheckPermission(ctx)
}

func (e *SchedulingEngine) RequestPermission(ctx context.Context) delivery.Permission {
	return e.channel.RequestPermission(ctx)
}

// History returns up to limit entries, most recent first.
func (e *SchedulingEngine) History(limit int) []reminder.HistoryEntry {
	return e.store.ListHistory(limit)
}

// PurgeHistory drops history entries older than days.
func (e *SchedulingEngine) PurgeHistory(ctx context.Context, days int) int {
	removed := e.store.PurgeHistoryOlderThan(ctx, days, e.clock())
	if removed > 0 {
		e.logger.WithFields(logrus.Fields{"removed": removed, "days": days}).Info("Old history purged")
	}
	return removed
}
