package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	if dataSourceName == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for postgres driver")
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewPostgresKV creates the kv_store table when missing and returns a KV
// over it. The KV owns db and closes it.
func NewPostgresKV(ctx context.Context, db *sql.DB) (KV, error) {
	query := `CREATE TABLE IF NOT EXISTS kv_store (
               key        TEXT PRIMARY KEY,
               value      TEXT NOT NULL,
               updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
           )`
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating kv_store table: %w", err)
	}
	return &sqlKV{
		db:         db,
		driverName: "postgres",
		getQuery:   `SELECT value FROM kv_store WHERE key = $1`,
		putQuery: `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, $3)
               ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		delQuery: `DELETE FROM kv_store WHERE key = $1`,
	}, nil
}
