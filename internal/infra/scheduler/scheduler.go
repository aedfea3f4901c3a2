package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronScheduler runs the periodic jobs of the service: the web-style due
// reminder checker and the daily history purge.
type CronScheduler struct {
	cronEngine *cron.Cron
	logger     *logrus.Entry

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronScheduler(logger *logrus.Entry) *CronScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &CronScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local), // Use server's local time for cron
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob registers fn under name with a standard cron spec or a
// descriptor like "@every 1m". Each run gets a context bounded by timeout.
// A job with the same name is replaced.
func (s *CronScheduler) AddJob(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) error {
	log := s.logger.WithField("job", name)
	id, err := s.cronEngine.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Debug("Cron job triggered")
		if err := fn(ctx); err != nil {
			log.WithError(err).Error("Cron job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("could not add cron job %s (%s): %w", name, spec, err)
	}

	s.mu.Lock()
	if prev, ok := s.entries[name]; ok {
		s.cronEngine.Remove(prev)
	}
	s.entries[name] = id
	s.mu.Unlock()

	log.WithField("spec", spec).Info("Cron job registered")
	return nil
}

// RemoveJob unregisters a job. Runs already in flight finish.
func (s *CronScheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cronEngine.Remove(id)
		delete(s.entries, name)
		s.logger.WithField("job", name).Info("Cron job removed")
	}
}

// Every runs fn every interval until the returned stop func is called.
// Overlapping runs are skipped.
func (s *CronScheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) (func(), error) {
	if interval < time.Second {
		return nil, fmt.Errorf("cron job %s: interval %s is below one second", name, interval)
	}
	err := s.AddJob(name, "@every "+interval.String(), interval, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() { s.RemoveJob(name) }, nil
}

// NextRun reports when the named job fires next.
func (s *CronScheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cronEngine.Entry(id).Next, true
}

func (s *CronScheduler) Start() {
	s.logger.Info("Starting cron scheduler...")
	s.cronEngine.Start()
}

func (s *CronScheduler) Stop() {
	s.logger.Info("Stopping cron scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Cron scheduler gracefully stopped.")
}
