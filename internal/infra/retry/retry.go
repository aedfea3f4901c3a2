// Package retry runs fallible actions with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config is immutable per call.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be > 0, got %s", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay %s is below initial delay %s", c.MaxDelay, c.InitialDelay)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %v", c.BackoffMultiplier)
	}
	return nil
}

// Result is the outcome of Execute. RetriedCount is the number of attempts
// made after the first one.
type Result[T any] struct {
	Success      bool
	Value        T
	Err          error
	RetriedCount int
}

// NotifyFunc is called after a failed attempt, before sleeping.
type NotifyFunc func(err error, attempt int, wait time.Duration)

type options struct {
	notify NotifyFunc
	timer  backoff.Timer
}

type Option func(*options)

// WithNotify registers a callback for failed attempts that will be retried.
func WithNotify(fn NotifyFunc) Option {
	return func(o *options) { o.notify = fn }
}

// WithTimer replaces the sleep timer. Tests use it to avoid real waits.
func WithTimer(t backoff.Timer) Option {
	return func(o *options) { o.timer = t }
}

// Permanent marks err as not worth retrying. Execute reports the
// unwrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Execute calls action up to cfg.MaxRetries+1 times. Between failures it
// waits min(current, MaxDelay) and grows current by BackoffMultiplier.
// A cancelled ctx ends the wait and is returned as the error.
func Execute[T any](ctx context.Context, action func(ctx context.Context) (T, error), cfg Config, opts ...Option) Result[T] {
	if err := cfg.Validate(); err != nil {
		return Result[T]{Err: fmt.Errorf("invalid retry config: %w", err)}
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.Multiplier = cfg.BackoffMultiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	// MaxRetries of 0 stops after the first attempt.
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxRetries)), ctx)

	attempts := 0
	var value T
	operation := func() error {
		attempts++
		v, err := action(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if o.notify != nil {
			o.notify(err, attempts, wait)
		}
	}

	var err error
	if o.timer != nil {
		err = backoff.RetryNotifyWithTimer(operation, policy, notify, o.timer)
	} else {
		err = backoff.RetryNotify(operation, policy, notify)
	}

	retried := attempts - 1
	if retried < 0 {
		retried = 0
	}
	if err != nil {
		return Result[T]{Err: err, RetriedCount: retried}
	}
	return Result[T]{Success: true, Value: value, RetriedCount: retried}
}
