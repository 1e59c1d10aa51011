package step

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/repository"
)

type sliceReader struct {
	items  []string
	pos    int
	closed bool
}

func (r *sliceReader) Open(context.Context, core.ExecutionContext) error { return nil }
func (r *sliceReader) Read(context.Context) (string, error) {
	if r.pos >= len(r.items) {
		return "", io.EOF
	}
	r.pos++
	return r.items[r.pos-1], nil
}
func (r *sliceReader) Close(context.Context) error { r.closed = true; return nil }

type atoiProcessor struct{}

func (atoiProcessor) Process(_ context.Context, s string) (int, error) { return strconv.Atoi(s) }

type sliceWriter struct {
	chunks [][]int
}

func (w *sliceWriter) Open(context.Context, core.ExecutionContext) error { return nil }
func (w *sliceWriter) Write(_ context.Context, items []int) error {
	w.chunks = append(w.chunks, append([]int(nil), items...))
	return nil
}
func (w *sliceWriter) Close(context.Context) error { return nil }

// stagingWriter keeps written chunks until Commit.
type stagingWriter struct {
	sliceWriter
	staged    []int
	committed []int
}

func (w *stagingWriter) Write(_ context.Context, items []int) error {
	w.staged = append(w.staged, items...)
	return nil
}
func (w *stagingWriter) Commit(context.Context) error {
	w.committed = append(w.committed, w.staged...)
	return nil
}

func runStep(t *testing.T, s core.Step) (*core.JobExecution, *core.StepExecution, error) {
	t.Helper()
	je := core.NewJobExecution("test", core.NewJobParameters())
	se := core.NewStepExecution("", je, s.StepName())
	return je, se, s.Execute(context.Background(), je, se)
}

func TestChunkStep_WritesInChunks(t *testing.T) {
	r := &sliceReader{items: []string{"1", "2", "3"}}
	w := &sliceWriter{}
	s := NewChunkStep[string, int]("numbers", r, atoiProcessor{}, w, 2, repository.NewMemoryJobRepository(), nil)

	_, se, err := runStep(t, s)
	require.NoError(t, err)

	assert.Equal(t, [][]int{{1, 2}, {3}}, w.chunks)
	assert.Equal(t, 3, se.ReadCount)
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, 2, se.CommitCount)
	assert.Equal(t, core.BatchStatusCompleted, se.Status)
	assert.True(t, r.closed)
}

func TestChunkStep_ProcessErrorFailsStep(t *testing.T) {
	r := &sliceReader{items: []string{"1", "x"}}
	w := &sliceWriter{}
	s := NewChunkStep[string, int]("numbers", r, atoiProcessor{}, w, 0, repository.NewMemoryJobRepository(), nil)

	je, se, err := runStep(t, s)
	require.Error(t, err)
	assert.Empty(t, w.chunks, "nothing is written before the single chunk completes")
	assert.Equal(t, core.BatchStatusFailed, se.Status)
	assert.Len(t, je.Failures, 1)
	assert.True(t, r.closed)
}

func TestChunkStep_CommitsStagedWriterOnce(t *testing.T) {
	r := &sliceReader{items: []string{"1", "2", "3"}}
	w := &stagingWriter{}
	s := NewChunkStep[string, int]("numbers", r, atoiProcessor{}, w, 2, repository.NewMemoryJobRepository(), nil)

	_, se, err := runStep(t, s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, w.committed)
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, 1, se.CommitCount)
}

func TestChunkStep_FailedStepDoesNotCommit(t *testing.T) {
	r := &sliceReader{items: []string{"1", "2", "x"}}
	w := &stagingWriter{}
	s := NewChunkStep[string, int]("numbers", r, atoiProcessor{}, w, 2, repository.NewMemoryJobRepository(), nil)

	_, se, err := runStep(t, s)
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, w.staged)
	assert.Empty(t, w.committed)
	assert.Zero(t, se.CommitCount)
	assert.Equal(t, core.BatchStatusFailed, se.Status)
}

func TestTaskletStep_NonCompletedExitStatusFails(t *testing.T) {
	s := NewTaskletStep("noop", TaskletFunc(func(context.Context, *core.StepExecution) (core.ExitStatus, error) {
		return core.ExitStatusStopped, nil
	}), repository.NewMemoryJobRepository(), nil)

	_, se, err := runStep(t, s)
	require.Error(t, err)
	assert.Equal(t, core.BatchStatusFailed, se.Status)
}

func TestTaskletStep_Error(t *testing.T) {
	boom := errors.New("boom")
	s := NewTaskletStep("fail", TaskletFunc(func(context.Context, *core.StepExecution) (core.ExitStatus, error) {
		return core.ExitStatusFailed, boom
	}), repository.NewMemoryJobRepository(), nil)

	_, se, err := runStep(t, s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.ExitStatusFailed, se.ExitStatus)
}
