// Package console is a web-style delivery channel that prints notices to a
// writer. It is the default when no Telegram bot is configured.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"hydration_reminder/internal/domain/delivery"
)

type Channel struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

var _ delivery.Channel = (*Channel)(nil)

func NewChannel(out io.Writer) *Channel {
	return &Channel{out: out, now: time.Now}
}

func (c *Channel) Name() string { return "console" }

// A terminal never refuses notifications.
func (c *Channel) CheckPermission(context.Context) delivery.Permission {
	return delivery.PermissionGranted
}

func (c *Channel) RequestPermission(context.Context) delivery.Permission {
	return delivery.PermissionGranted
}

func (c *Channel) Show(ctx context.Context, n delivery.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	line := fmt.Sprintf("[%s] %s", c.now().Format("15:04"), n.Title)
	if n.Body != "" {
		line += ": " + n.Body
	}
	if _, err := fmt.Fprintln(c.out, line); err != nil {
		return fmt.Errorf("writing notice: %w", err)
	}
	return nil
}
