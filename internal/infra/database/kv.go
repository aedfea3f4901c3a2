package database

import (
	"context"
	"fmt"
	"strings"
)

// Keys of the persisted collections.
const (
	KeyScheduledNotifications = "scheduled_notifications"
	KeyNotificationHistory    = "notification_history"
	KeyNotificationLogs       = "notification_logs"
	KeyNativeAlarms           = "native_alarms"
	KeyServeHeartbeat         = "serve_heartbeat"
)

var ErrUnknownDriver = fmt.Errorf("unknown storage driver")

// KV is the durable mirror behind the notification store and log buffer.
// Each key holds one JSON document.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a KV backend.
//
// Driver values:
//   - "memory": process-local, nothing survives a restart
//   - "file": one JSON file per key under Path (a directory)
//   - "sqlite": SQLite database file at Path
//   - "postgres": DatabaseURL
//   - "redis": RedisURL
type Config struct {
	Driver      string
	Path        string
	DatabaseURL string
	RedisURL    string
}

// Open initializes the configured backend.
func Open(ctx context.Context, cfg Config) (KV, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemoryKV(), nil
	case "file":
		return NewFileKV(cfg.Path)
	case "sqlite", "sqlite3":
		return NewSQLiteKV(ctx, cfg.Path)
	case "postgres", "postgresql":
		db, err := NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewPostgresKV(ctx, db)
	case "redis":
		return NewRedisKV(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
