package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	version, err := storage.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// second run is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	var rows int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, len(AllMigrations), rows)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.db))
	version, err := storage.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	var name string
	err = storage.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='failed_files'").Scan(&name)
	assert.Error(t, err, "failed_files dropped")

	require.NoError(t, RollbackMigration(ctx, storage.db))
	version, err = storage.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version)

	assert.Error(t, RollbackMigration(ctx, storage.db))

	// migrations re-apply cleanly
	require.NoError(t, storage.Initialize(ctx))
	version, err = storage.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
