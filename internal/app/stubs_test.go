package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"hydration_reminder/internal/app"
	"hydration_reminder/internal/domain/delivery"
	"hydration_reminder/internal/domain/reminder"
	"hydration_reminder/internal/infra/database"
	"hydration_reminder/internal/infra/retry"
)

var (
	errShow  = errors.New("show failed")
	errAlarm = errors.New("alarm service unavailable")
)

// Wednesday.
var baseTime = time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- capability ---

type capability bool

func (c capability) IsNative() bool { return bool(c) }

func (c capability) Platform() string {
	if c {
		return "native"
	}
	return "web"
}

// --- web channel stub ---

type stubChannel struct {
	mu           sync.Mutex
	permission   delivery.Permission
	afterRequest delivery.Permission
	requests     int
	failShows    int
	showCalls    int
	shown        []delivery.Notice
	onShow       func()
}

func newStubChannel() *stubChannel {
	return &stubChannel{permission: delivery.PermissionGranted}
}

func (s *stubChannel) Name() string { return "stub" }

func (s *stubChannel) CheckPermission(context.Context) delivery.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

func (s *stubChannel) RequestPermission(context.Context) delivery.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if s.afterRequest != "" {
		s.permission = s.afterRequest
	}
	return s.permission
}

func (s *stubChannel) Show(_ context.Context, n delivery.Notice) error {
	s.mu.Lock()
	s.showCalls++
	hook := s.onShow
	fail := s.failShows > 0
	if fail {
		s.failShows--
	} else {
		s.shown = append(s.shown, n)
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return errShow
	}
	return nil
}

func (s *stubChannel) shownTitles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.shown))
	for _, n := range s.shown {
		out = append(out, n.Title)
	}
	return out
}

// --- native alarm stub ---

type stubAlarms struct {
	*stubChannel
	failSchedules int
	scheduleCalls int
	cancelCalls   [][]string
	alarms        map[string]reminder.ScheduledReminder
	listener      delivery.FiredFunc
	onFiredErr    error
}

func newStubAlarms() *stubAlarms {
	return &stubAlarms{stubChannel: newStubChannel(), alarms: map[string]reminder.ScheduledReminder{}}
}

func (s *stubAlarms) Schedule(_ context.Context, r reminder.ScheduledReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleCalls++
	if s.failSchedules > 0 {
		s.failSchedules--
		return errAlarm
	}
	s.alarms[r.ID] = r
	return nil
}

func (s *stubAlarms) CancelAll(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls = append(s.cancelCalls, ids)
	for _, id := range ids {
		delete(s.alarms, id)
	}
	return nil
}

func (s *stubAlarms) ListPending(context.Context) ([]reminder.ScheduledReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reminder.ScheduledReminder, 0, len(s.alarms))
	for _, r := range s.alarms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubAlarms) OnFired(fn delivery.FiredFunc) error {
	if s.onFiredErr != nil {
		return s.onFiredErr
	}
	s.listener = fn
	return nil
}

// --- ticker stub ---

type manualTicker struct {
	mu       sync.Mutex
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	starts   int
	stopped  bool
}

func (m *manualTicker) Every(name string, interval time.Duration, fn func(ctx context.Context)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name, m.interval, m.fn = name, interval, fn
	m.starts++
	m.stopped = false
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stopped = true
	}, nil
}

func (m *manualTicker) Tick(ctx context.Context) {
	m.mu.Lock()
	fn, stopped := m.fn, m.stopped
	m.mu.Unlock()
	if fn != nil && !stopped {
		fn(ctx)
	}
}

// --- retry timer that never sleeps ---

type instantTimer struct {
	mu    sync.Mutex
	c     chan time.Time
	waits []time.Duration
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func (t *instantTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

// --- fixture ---

type fixture struct {
	engine *app.SchedulingEngine
	store  *database.NotificationStore
	kv     *database.MemoryKV
	ticker *manualTicker
	clock  *fakeClock
	timer  *instantTimer
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newFixture(t *testing.T, native bool, ch delivery.Channel) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		kv:     database.NewMemoryKV(),
		ticker: &manualTicker{},
		clock:  &fakeClock{now: baseTime},
		timer:  newInstantTimer(),
	}
	f.store = database.NewNotificationStore(ctx, f.kv, newTestLogger(), 50)
	engine, err := app.NewSchedulingEngine(app.EngineConfig{
		Channel:      ch,
		Capability:   capability(native),
		Store:        f.store,
		Ticker:       f.ticker,
		Logger:       newTestLogger(),
		Clock:        f.clock.Now,
		NewID:        sequentialIDs(),
		RetryOptions: []retry.Option{retry.WithTimer(f.timer)},
	})
	require.NoError(t, err)
	require.NoError(t, engine.Initialize(ctx))
	f.engine = engine
	return f
}
