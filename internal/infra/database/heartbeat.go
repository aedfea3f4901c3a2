package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ServerBeat is the last sign of life of a running server process.
type ServerBeat struct {
	PID    int
	SeenAt time.Time
}

type beatRecord struct {
	PID    int         `json:"pid"`
	SeenAt EpochMillis `json:"seenAt"`
}

// Heartbeat lets a long-running server announce itself under
// KeyServeHeartbeat. One-shot commands read it to tell whether their
// changes will be overwritten by the server's in-memory copy.
type Heartbeat struct {
	kv     KV
	logger *logrus.Entry
}

func NewHeartbeat(kv KV, logger *logrus.Entry) *Heartbeat {
	return &Heartbeat{kv: kv, logger: logger}
}

// Beat records pid as alive at now.
func (h *Heartbeat) Beat(ctx context.Context, pid int, now time.Time) error {
	b, err := json.Marshal(beatRecord{PID: pid, SeenAt: EpochMillis{now}})
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}
	if err := h.kv.Put(ctx, KeyServeHeartbeat, b); err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	return nil
}

// Clear removes the heartbeat on a clean shutdown.
func (h *Heartbeat) Clear(ctx context.Context) error {
	if err := h.kv.Delete(ctx, KeyServeHeartbeat); err != nil {
		return fmt.Errorf("clearing heartbeat: %w", err)
	}
	return nil
}

// Alive returns the last beat when it is younger than ttl at now. Read
// errors and unreadable beats count as no server.
func (h *Heartbeat) Alive(ctx context.Context, now time.Time, ttl time.Duration) (ServerBeat, bool) {
	b, found, err := h.kv.Get(ctx, KeyServeHeartbeat)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read server heartbeat")
		return ServerBeat{}, false
	}
	if !found {
		return ServerBeat{}, false
	}
	var rec beatRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.logger.WithError(err).Warn("Ignoring unreadable server heartbeat")
		return ServerBeat{}, false
	}
	if now.Sub(rec.SeenAt.Time) > ttl {
		return ServerBeat{}, false
	}
	return ServerBeat{PID: rec.PID, SeenAt: rec.SeenAt.Time}, true
}
