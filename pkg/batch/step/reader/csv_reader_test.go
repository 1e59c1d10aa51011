package reader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "landscapesim/pkg/batch/job/core"
)

func TestCSVItemReader_ReadsAndRemoves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.csv")
	produce := func(_ context.Context, p string) error {
		return os.WriteFile(p, []byte("Name,Description\nA,first\nB\n"), 0o600)
	}
	r := NewCSVItemReader(path, produce, false)
	ctx := context.Background()
	ec := core.NewExecutionContext()

	require.NoError(t, r.Open(ctx, ec))
	row, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Row{"Name": "A", "Description": "first"}, row)

	row, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", row["Description"], "short rows are padded")

	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Close(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	cols, _ := ec.GetInt("csv.columns")
	assert.Equal(t, 2, cols)
}

func TestCSVItemReader_EmptyFileAndKeep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	r := NewCSVItemReader(path, nil, true)
	ctx := context.Background()

	require.NoError(t, r.Open(ctx, nil))
	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, r.Close(ctx))

	_, err = os.Stat(path)
	assert.NoError(t, err, "kept for inspection")
}

func TestCSVItemReader_BadHeaderReleasesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	produce := func(_ context.Context, p string) error {
		return os.WriteFile(p, []byte("Na\"me,Description\nA,first\n"), 0o600)
	}
	r := NewCSVItemReader(path, produce, false)

	require.Error(t, r.Open(context.Background(), nil))
	assert.Nil(t, r.file)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
