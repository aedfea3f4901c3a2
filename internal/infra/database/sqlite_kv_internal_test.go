package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_FailedStepRollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = runMigrations(ctx, db, []migration{
		{version: 1, sql: `CREATE TABLE ok (id INTEGER)`},
		{version: 2, sql: `CREATE TABLE broken (`},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version, "failed step is not recorded")

	// A fixed step applies on the next run.
	require.NoError(t, runMigrations(ctx, db, []migration{
		{version: 1, sql: `CREATE TABLE ok (id INTEGER)`},
		{version: 2, sql: `CREATE TABLE fixed (id INTEGER)`},
	}))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
}
