package runjob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline/pipelinetest"
	"landscapesim/pkg/landscape/runjob"
)

// runOutOfBand runs sid 10 through the engine directly, as a run whose
// caller went away would have.
func runOutOfBand(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.p.ImportConfig(ctx, h.base, pipelinetest.MinimalConfig()))
	sid, err := h.p.Console().RunModel(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 11, sid)
}

func TestPollRecordsResultOfInterruptedJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.submit(t)

	job, err := h.f.Store.GetJob(ctx, v.UUID)
	require.NoError(t, err)
	job.ModelStatus = model.ModelStatusRunning
	require.NoError(t, h.f.Store.UpdateJob(ctx, job))
	runOutOfBand(t, h)

	pl := runjob.NewPoller(h.svc)
	created, err := pl.Poll(ctx, pipelinetest.LibraryName)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 11, created[0].SID)
	require.NotNil(t, created[0].ParentID)
	assert.Equal(t, h.base.ID, *created[0].ParentID)

	got, err := h.svc.Get(ctx, v.UUID)
	require.NoError(t, err)
	assert.Equal(t, "complete", got.ModelStatus)
	require.NotNil(t, got.ResultScenario)
	assert.Equal(t, 11, got.ResultScenario.SID)
	assert.Equal(t, map[string]any{"id": float64(created[0].ID), "sid": float64(11)}, got.Outputs["result_scenario"])

	reports, err := h.f.Store.ListReports(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Len(t, reports, 5)
	published, err := h.f.Blobs.List(ctx, "castle/scenario-11/outputs/")
	require.NoError(t, err)
	assert.Len(t, published, 8)

	again, err := pl.Poll(ctx, pipelinetest.LibraryName)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, h.results(t), 1)
}

func TestPollWithoutPendingJob(t *testing.T) {
	h := newHarness(t)
	runOutOfBand(t, h)

	created, err := runjob.NewPoller(h.svc).Poll(context.Background(), pipelinetest.LibraryName)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Nil(t, created[0].ParentID)
	assert.Equal(t, h.base.ProjectID, created[0].ProjectID)
	assert.True(t, created[0].IsResult)
}

func TestPollLeavesWaitingJobsAlone(t *testing.T) {
	h := newHarness(t)
	v := h.submit(t)
	runOutOfBand(t, h)

	_, err := runjob.NewPoller(h.svc).Poll(context.Background(), pipelinetest.LibraryName)
	require.NoError(t, err)
	got, err := h.svc.Get(context.Background(), v.UUID)
	require.NoError(t, err)
	assert.Equal(t, "waiting", got.ModelStatus)
	assert.Nil(t, got.ResultScenario)
}

func TestPollUnknownLibrary(t *testing.T) {
	h := newHarness(t)
	_, err := runjob.NewPoller(h.svc).Poll(context.Background(), "nope")
	assert.Error(t, err)
}
