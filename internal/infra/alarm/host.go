// Package alarm is the native delivery variant: an in-process alarm
// subsystem that keeps scheduled reminders and fires them on its own
// through a sink channel.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"hydration_reminder/internal/domain/delivery"
	"hydration_reminder/internal/domain/reminder"
)

const reminderTag = "reminder"

// Snapshot persists the host's registrations between runs.
type Snapshot interface {
	Save(ctx context.Context, alarms []reminder.ScheduledReminder)
	Load(ctx context.Context) []reminder.ScheduledReminder
}

type scheduledJob struct {
	jobID    uuid.UUID
	reminder reminder.ScheduledReminder
}

// Host implements delivery.AlarmChannel on top of a gocron scheduler.
type Host struct {
	scheduler gocron.Scheduler
	sink      delivery.Channel
	snapshot  Snapshot // optional
	logger    *logrus.Entry
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]scheduledJob
	onFired delivery.FiredFunc
}

var _ delivery.AlarmChannel = (*Host)(nil)

// NewHost creates a stopped host. Call Start to begin firing. snapshot may
// be nil, in which case alarms only live as long as the process.
func NewHost(sink delivery.Channel, snapshot Snapshot, logger *logrus.Entry, opts ...gocron.SchedulerOption) (*Host, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating alarm scheduler: %w", err)
	}
	return &Host{
		scheduler: s,
		sink:      sink,
		snapshot:  snapshot,
		logger:    logger,
		now:       time.Now,
		jobs:      make(map[string]scheduledJob),
	}, nil
}

func (h *Host) Start() {
	h.scheduler.Start()
	h.logger.Info("Alarm host started")
}

// Restore re-registers the alarms saved by a previous run. Alarms whose
// time passed while the host was down fire right away.
func (h *Host) Restore(ctx context.Context) error {
	if h.snapshot == nil {
		return nil
	}
	saved := h.snapshot.Load(ctx)
	for _, r := range saved {
		if err := h.Schedule(ctx, r); err != nil {
			return fmt.Errorf("restoring alarm %s: %w", r.ID, err)
		}
	}
	h.logger.WithField("count", len(saved)).Info("Alarms restored")
	return nil
}

// Shutdown stops the scheduler and waits for running deliveries.
func (h *Host) Shutdown() error {
	if err := h.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutting down alarm scheduler: %w", err)
	}
	h.logger.Info("Alarm host stopped")
	return nil
}

func (h *Host) Name() string { return "alarm:" + h.sink.Name() }

func (h *Host) CheckPermission(ctx context.Context) delivery.Permission {
	return h.sink.CheckPermission(ctx)
}

func (h *Host) RequestPermission(ctx context.Context) delivery.Permission {
	return h.sink.RequestPermission(ctx)
}

func (h *Host) Show(ctx context.Context, n delivery.Notice) error {
	return h.sink.Show(ctx, n)
}

// OnFired registers the single fire listener, replacing any previous one.
func (h *Host) OnFired(fn delivery.FiredFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFired = fn
	return nil
}

// Schedule registers r, replacing any alarm with the same id. A time in
// the past fires right away.
func (h *Host) Schedule(ctx context.Context, r reminder.ScheduledReminder) error {
	if r.ID == "" {
		return fmt.Errorf("scheduling alarm: empty reminder id")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.jobs[r.ID]; ok {
		h.removeJob(prev.jobID)
		delete(h.jobs, r.ID)
	}

	job, err := h.newJob(r, r.ScheduledTime.After(h.now()))
	if errors.Is(err, gocron.ErrWithStartDateTimePast) || errors.Is(err, gocron.ErrOneTimeJobStartDateTimePast) {
		job, err = h.newJob(r, false)
	}
	if err != nil {
		return fmt.Errorf("scheduling alarm %s: %w", r.ID, err)
	}
	h.jobs[r.ID] = scheduledJob{jobID: job.ID(), reminder: r}
	h.saveLocked(ctx)
	h.logger.WithFields(logrus.Fields{
		"reminder_id": r.ID,
		"at":          r.ScheduledTime.Format(time.RFC3339),
		"interval":    r.IntervalMinutes,
	}).Debug("Alarm scheduled")
	return nil
}

func (h *Host) newJob(r reminder.ScheduledReminder, future bool) (gocron.Job, error) {
	var def gocron.JobDefinition
	var opts []gocron.JobOption
	if r.Recurring() {
		def = gocron.DurationJob(r.Interval())
		if future {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartDateTime(r.ScheduledTime)))
		} else {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}
	} else {
		start := gocron.OneTimeJobStartImmediately()
		if future {
			start = gocron.OneTimeJobStartDateTime(r.ScheduledTime)
		}
		def = gocron.OneTimeJob(start)
	}
	opts = append(opts, gocron.WithName(r.ID), gocron.WithTags(reminderTag))
	return h.scheduler.NewJob(def, gocron.NewTask(h.fire, r.ID), opts...)
}

func (h *Host) fire(ctx context.Context, id string) {
	firedAt := h.now()

	h.mu.Lock()
	sj, ok := h.jobs[id]
	if ok {
		if sj.reminder.Recurring() {
			next := sj
			next.reminder.ScheduledTime = firedAt.Add(sj.reminder.Interval())
			h.jobs[id] = next
		} else {
			delete(h.jobs, id)
		}
	}
	if ok {
		h.saveLocked(ctx)
	}
	fn := h.onFired
	h.mu.Unlock()

	if !ok {
		return
	}
	if !sj.reminder.Recurring() {
		// Finished one-time jobs stay registered in gocron until removed.
		go h.removeJob(sj.jobID)
	}

	r := sj.reminder
	err := h.sink.Show(ctx, delivery.Notice{
		ID:    r.ID,
		Title: r.Title,
		Body:  r.Body,
		Tag:   r.ID,
		Data:  r.Data,
	})
	log := h.logger.WithField("reminder_id", id)
	if err != nil {
		log.WithError(err).Error("Alarm delivery failed")
	} else {
		log.Info("Alarm fired")
	}
	if fn != nil {
		fn(r, firedAt, err)
	}
}

func (h *Host) removeJob(id uuid.UUID) {
	if err := h.scheduler.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		h.logger.WithError(err).WithField("job_id", id).Warn("Failed to remove alarm job")
	}
}

// CancelAll cancels the given alarms. Unknown ids are ignored.
func (h *Host) CancelAll(ctx context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cancelled := 0
	for _, id := range ids {
		sj, ok := h.jobs[id]
		if !ok {
			continue
		}
		h.removeJob(sj.jobID)
		delete(h.jobs, id)
		cancelled++
	}
	if cancelled > 0 {
		h.saveLocked(ctx)
	}
	h.logger.WithField("count", cancelled).Info("Alarms cancelled")
	return nil
}

// ListPending returns the registered alarms ordered by next fire time.
func (h *Host) ListPending(ctx context.Context) ([]reminder.ScheduledReminder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingLocked(), nil
}

func (h *Host) saveLocked(ctx context.Context) {
	if h.snapshot != nil {
		h.snapshot.Save(ctx, h.pendingLocked())
	}
}

func (h *Host) pendingLocked() []reminder.ScheduledReminder {
	out := make([]reminder.ScheduledReminder, 0, len(h.jobs))
	for _, sj := range h.jobs {
		out = append(out, sj.reminder)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}
