package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqlKV is a KV over a single key/value table. The SQLite and Postgres
// backends differ only in their statements.
type sqlKV struct {
	db         *sql.DB
	getQuery   string
	putQuery   string
	delQuery   string
	driverName string
}

func (s *sqlKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: getting %q: %w", s.driverName, key, err)
	}
	return []byte(value), true, nil
}

func (s *sqlKV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.putQuery, key, string(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: putting %q: %w", s.driverName, key, err)
	}
	return nil
}

func (s *sqlKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.delQuery, key); err != nil {
		return fmt.Errorf("%s: deleting %q: %w", s.driverName, key, err)
	}
	return nil
}

func (s *sqlKV) Close() error {
	return s.db.Close()
}
