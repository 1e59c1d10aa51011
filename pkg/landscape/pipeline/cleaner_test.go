package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/util/exception"
)

func TestSQLiteCleaner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castle.ssim")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE STSim_Transition (ScenarioID INTEGER, Probability REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO STSim_Transition VALUES (10, 0.1), (10, 0.2), (11, 0.3)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	c := SQLiteCleaner{}
	require.NoError(t, c.ClearSheet(ctx, path, "STSim_Transition", 10))
	require.NoError(t, c.ClearSheet(ctx, path, "STSim_TransitionTarget", 10), "missing table is not an error")

	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n10, n11 int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM STSim_Transition WHERE ScenarioID = 10`).Scan(&n10))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM STSim_Transition WHERE ScenarioID = 11`).Scan(&n11))
	assert.Equal(t, 0, n10)
	assert.Equal(t, 1, n11)
}

func TestSQLiteCleanerRejectsNonDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.ssim")
	require.NoError(t, os.WriteFile(path, []byte("fake library\n"), 0o644))
	err := SQLiteCleaner{}.ClearSheet(context.Background(), path, "STSim_Transition", 1)
	assert.True(t, exception.IsKind(err, exception.KindProtocol))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
