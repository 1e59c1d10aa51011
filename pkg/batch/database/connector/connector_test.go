package connector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
	"landscapesim/pkg/batch/util/exception"
)

func TestNewDBConnectionFromConfig_SQLiteWithMigrations(t *testing.T) {
	cfg := config.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "store.db")}

	require.NoError(t, RunMigrations(cfg))
	require.NoError(t, RunMigrations(cfg), "second run is a no-op")

	conn, err := NewDBConnectionFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, database.DialectSQLite, conn.Dialect())

	var n int
	row := conn.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('records', 'async_jobs', 'batch_step_execution')")
	require.NoError(t, row.Scan(&n))
	assert.Equal(t, 3, n)
}

func TestGetSQLDB_UnknownType(t *testing.T) {
	_, _, err := GetSQLDB(config.DatabaseConfig{Type: "oracle"})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
}

func TestRunMigrations_MemoryIsNoOp(t *testing.T) {
	assert.NoError(t, RunMigrations(config.DatabaseConfig{Type: "memory"}))
}

func TestRegisteredConnectors(t *testing.T) {
	for _, typ := range []string{"postgres", "pgx", "mysql", "sqlite"} {
		c, ok := lookup(typ)
		require.True(t, ok, typ)
		assert.NotEmpty(t, c.Dialect())
	}
}
