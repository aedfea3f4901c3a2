// Package delivery describes the channels reminders are delivered through.
//
// There are two variants. A web-style Channel can only show a notification
// right now; recurring delivery needs the engine's own timer. A native
// AlarmChannel also owns an alarm subsystem that fires scheduled reminders
// on its own. The variant is picked once at startup with Resolve.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hydration_reminder/internal/domain/reminder"
)

var ErrUnsupported = errors.New("operation not supported by delivery channel")

// Permission is the host's notification permission state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default" // not decided yet
)

// ParsePermission maps a host-reported state onto the three-state model.
// Prompt sub-states and anything unknown become PermissionDefault.
func ParsePermission(s string) Permission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// Notice is a notification to show immediately.
type Notice struct {
	ID    string
	Title string
	Body  string
	Icon  string
	Tag   string
	Data  map[string]any
}

// Channel is implemented by every delivery backend.
//
// Permission methods never fail: denial is a normal value and unexpected
// host errors are reported as PermissionDefault.
type Channel interface {
	Name() string
	CheckPermission(ctx context.Context) Permission
	RequestPermission(ctx context.Context) Permission
	Show(ctx context.Context, n Notice) error
}

// FiredFunc is called by an alarm channel after it fired a reminder.
// err is the delivery error, if any.
type FiredFunc func(r reminder.ScheduledReminder, firedAt time.Time, err error)

// AlarmChannel is the native variant: the host keeps scheduled reminders
// and fires them even when the core is idle.
type AlarmChannel interface {
	Channel
	Schedule(ctx context.Context, r reminder.ScheduledReminder) error
	CancelAll(ctx context.Context, ids []string) error
	ListPending(ctx context.Context) ([]reminder.ScheduledReminder, error)
	OnFired(fn FiredFunc) error
}

// PlatformCapability answers host capability questions.
type PlatformCapability interface {
	IsNative() bool
	Platform() string
}

// Resolve picks the channel for the host. A native host requires an
// alarm channel.
func Resolve(capability PlatformCapability, native AlarmChannel, web Channel) (Channel, error) {
	if capability.IsNative() {
		if native == nil {
			return nil, fmt.Errorf("%w: platform %q is native but no alarm channel is configured", ErrUnsupported, capability.Platform())
		}
		return native, nil
	}
	if web == nil {
		return nil, fmt.Errorf("%w: platform %q needs a web channel", ErrUnsupported, capability.Platform())
	}
	return web, nil
}
