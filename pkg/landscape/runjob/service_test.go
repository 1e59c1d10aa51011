package runjob_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/pipeline/pipelinetest"
	"landscapesim/pkg/landscape/runjob"
	"landscapesim/pkg/landscape/store"
)

// statusLog records every distinct model status a job is stored with.
type statusLog struct {
	store.Store
	mu  sync.Mutex
	seq map[string][]model.ModelStatus
}

func (s *statusLog) note(job *model.AsyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq[job.UUID]
	if len(seq) == 0 || seq[len(seq)-1] != job.ModelStatus {
		s.seq[job.UUID] = append(seq, job.ModelStatus)
	}
}

func (s *statusLog) CreateJob(ctx context.Context, job *model.AsyncJob) error {
	if err := s.Store.CreateJob(ctx, job); err != nil {
		return err
	}
	s.note(job)
	return nil
}

func (s *statusLog) UpdateJob(ctx context.Context, job *model.AsyncJob) error {
	if err := s.Store.UpdateJob(ctx, job); err != nil {
		return err
	}
	s.note(job)
	return nil
}

func (s *statusLog) statuses(id string) []model.ModelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ModelStatus(nil), s.seq[id]...)
}

type harness struct {
	f    *pipelinetest.Fixture
	p    *pipeline.Pipeline
	log  *statusLog
	svc  *runjob.Service
	base *model.Scenario
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := pipelinetest.New(t)
	p := f.Register(t)
	log := &statusLog{Store: f.Store, seq: make(map[string][]model.ModelStatus)}
	svc := runjob.NewService(runjob.Options{
		Store:     log,
		Pipelines: map[string]*pipeline.Pipeline{pipelinetest.LibraryName: p},
	})
	return &harness{f: f, p: p, log: log, svc: svc, base: f.Scenario(t, 10)}
}

func (h *harness) submit(t *testing.T) *runjob.View {
	t.Helper()
	v, err := h.svc.Submit(context.Background(), runjob.SubmitRequest{
		LibraryName: pipelinetest.LibraryName, PID: 1, SID: 10, Config: pipelinetest.MinimalConfig(),
	})
	require.NoError(t, err)
	return v
}

func (h *harness) results(t *testing.T) []model.Scenario {
	t.Helper()
	all, err := h.f.Store.ListScenarios(context.Background(), h.base.ProjectID)
	require.NoError(t, err)
	var out []model.Scenario
	for _, sc := range all {
		if sc.IsResult {
			out = append(out, sc)
		}
	}
	return out
}

func TestSubmitRecordsWaitingJob(t *testing.T) {
	h := newHarness(t)
	v := h.submit(t)

	assert.NotEmpty(t, v.UUID)
	assert.Equal(t, "waiting", v.ModelStatus)
	assert.Equal(t, "STARTING", v.Status)
	assert.Nil(t, v.Progress)
	assert.Nil(t, v.ResultScenario)
	assert.Empty(t, v.Outputs)
	require.NotNil(t, v.ParentScenario)
	assert.Equal(t, 10, v.ParentScenario.SID)
	assert.Equal(t, h.base.ID, v.ParentScenario.ID)
	assert.Equal(t, pipelinetest.LibraryName, v.Inputs["library_name"])
	assert.Contains(t, v.Inputs["config"], "run_control")
}

func TestRunDrivesJobToComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submitted := h.submit(t)

	v, err := h.svc.Run(ctx, submitted.UUID)
	require.NoError(t, err)

	assert.Equal(t, []model.ModelStatus{
		model.ModelStatusWaiting,
		model.ModelStatusStarting,
		model.ModelStatusRunning,
		model.ModelStatusProcessing,
		model.ModelStatusComplete,
	}, h.log.statuses(submitted.UUID))
	assert.Equal(t, "complete", v.ModelStatus)
	assert.Equal(t, "COMPLETED", v.Status)
	assert.Empty(t, v.Error)

	results := h.results(t)
	require.Len(t, results, 1)
	result := results[0]
	assert.Equal(t, 11, result.SID)
	require.NotNil(t, result.ParentID)
	assert.Equal(t, h.base.ID, *result.ParentID)

	require.NotNil(t, v.ResultScenario)
	assert.Equal(t, runjob.ScenarioRef{ID: result.ID, SID: 11}, *v.ResultScenario)
	assert.Equal(t, map[string]any{"id": float64(result.ID), "sid": float64(11)}, v.Outputs["result_scenario"])

	require.NotNil(t, v.Progress)
	assert.InDelta(t, 1.0, *v.Progress, 1e-9)

	reports, err := h.f.Store.ListReports(ctx, result.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 5)

	published, err := h.f.Blobs.List(ctx, "castle/scenario-11/outputs/")
	require.NoError(t, err)
	assert.Len(t, published, 8)

	rc, err := h.f.Store.ListRecords(ctx, store.RecordFilter{Kind: model.KindRunControl, ScenarioID: result.ID})
	require.NoError(t, err)
	require.Len(t, rc, 1)
	maxTs, _ := rc[0].Int("max_timestep")
	assert.Equal(t, int64(3), maxTs)

	// The baseline keeps its configuration in the working library.
	assert.Equal(t, []string{"1", "2", "0", "3", "Yes"}, h.f.Lib.ScenarioSheet(10, "STSim_RunControl")[1])

	_, err = h.svc.Run(ctx, submitted.UUID)
	assert.True(t, exception.IsKind(err, exception.KindValidation), "a finished job cannot run again")
}

func TestRunFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.f.Fake.Fail["--run"] = errors.New("exit status 1: license expired")
	submitted := h.submit(t)

	v, err := h.svc.Run(context.Background(), submitted.UUID)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindProtocol))
	require.NotNil(t, v)
	assert.Equal(t, "failed", v.ModelStatus)
	assert.Equal(t, "FAILED", v.Status)
	assert.Contains(t, v.Error, "license expired")
	assert.Nil(t, v.ResultScenario)
	assert.Equal(t, []model.ModelStatus{
		model.ModelStatusWaiting,
		model.ModelStatusStarting,
		model.ModelStatusRunning,
		model.ModelStatusFailed,
	}, h.log.statuses(submitted.UUID))
	assert.Empty(t, h.results(t))
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("config keys", func(t *testing.T) {
		cfg := pipelinetest.MinimalConfig()
		delete(cfg, "transitions")
		cfg["transitionz"] = []any{}
		_, err := h.svc.Submit(ctx, runjob.SubmitRequest{LibraryName: pipelinetest.LibraryName, PID: 1, SID: 10, Config: cfg})
		require.Error(t, err)
		assert.True(t, exception.IsKind(err, exception.KindValidation))
		assert.Contains(t, err.Error(), "missing keys: transitions")
		assert.Contains(t, err.Error(), "unknown keys: transitionz")
	})

	t.Run("library", func(t *testing.T) {
		_, err := h.svc.Submit(ctx, runjob.SubmitRequest{LibraryName: "nope", PID: 1, SID: 10, Config: pipelinetest.MinimalConfig()})
		assert.True(t, exception.IsKind(err, exception.KindValidation))
	})

	for _, tc := range []struct{ pid, sid int }{{2, 10}, {1, 99}} {
		t.Run(fmt.Sprintf("scope pid=%d sid=%d", tc.pid, tc.sid), func(t *testing.T) {
			_, err := h.svc.Submit(ctx, runjob.SubmitRequest{
				LibraryName: pipelinetest.LibraryName, PID: tc.pid, SID: tc.sid, Config: pipelinetest.MinimalConfig(),
			})
			assert.True(t, exception.IsKind(err, exception.KindScope))
			assert.ErrorIs(t, err, exception.ErrInvalidScope)
		})
	}

	t.Run("result parent", func(t *testing.T) {
		v := h.submit(t)
		_, err := h.svc.Run(ctx, v.UUID)
		require.NoError(t, err)
		_, err = h.svc.Submit(ctx, runjob.SubmitRequest{
			LibraryName: pipelinetest.LibraryName, PID: 1, SID: 11, Config: pipelinetest.MinimalConfig(),
		})
		assert.True(t, exception.IsKind(err, exception.KindScope))
		assert.ErrorIs(t, err, exception.ErrResultScenarioImmutable)
	})
}

func TestProgressOfRunningJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.submit(t)

	job, err := h.f.Store.GetJob(ctx, v.UUID)
	require.NoError(t, err)
	job.ModelStatus = model.ModelStatusRunning
	require.NoError(t, h.f.Store.UpdateJob(ctx, job))

	got, err := h.svc.Get(ctx, v.UUID)
	require.NoError(t, err)
	require.NotNil(t, got.Progress)
	assert.Zero(t, *got.Progress, "no output directory yet")

	dir := h.p.Console().SpatialOutputDir(11)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"It0001-Ts0000-sc.tif", "It0001-Ts0001-sc.tif", "It0001-Ts0002-sc.tif", "It0001-Ts0003-sc.tif", "It0001-Ts0001-tr-1.tif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("raster"), 0o644))
	}
	got, err = h.svc.Get(ctx, v.UUID)
	require.NoError(t, err)
	require.NotNil(t, got.Progress)
	assert.InDelta(t, 0.5, *got.Progress, 1e-9)
}

func TestNonSpatialRunHasNoProgress(t *testing.T) {
	h := newHarness(t)
	cfg := pipelinetest.MinimalConfig()
	cfg["run_control"].(map[string]any)["is_spatial"] = false
	v, err := h.svc.Submit(context.Background(), runjob.SubmitRequest{
		LibraryName: pipelinetest.LibraryName, PID: 1, SID: 10, Config: cfg,
	})
	require.NoError(t, err)
	v, err = h.svc.Run(context.Background(), v.UUID)
	require.NoError(t, err)
	assert.Equal(t, "complete", v.ModelStatus)
	assert.Nil(t, v.Progress)
}

func TestRunsOfOneLibraryAreSerialized(t *testing.T) {
	h := newHarness(t)
	a, b := h.submit(t), h.submit(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.UUID, b.UUID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.Run(context.Background(), id)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	results := h.results(t)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []int{11, 12}, []int{results[0].SID, results[1].SID})
}

func TestRunWaitingRunsOldestFirst(t *testing.T) {
	h := newHarness(t)
	first := h.submit(t)
	second := h.submit(t)

	views, err := h.svc.RunWaiting(context.Background(), pipelinetest.LibraryName)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, first.UUID, views[0].UUID)
	assert.Equal(t, second.UUID, views[1].UUID)
	for _, v := range views {
		assert.Equal(t, "complete", v.ModelStatus)
	}
	assert.Equal(t, 11, views[0].ResultScenario.SID)
	assert.Equal(t, 12, views[1].ResultScenario.SID)

	views, err = h.svc.RunWaiting(context.Background(), pipelinetest.LibraryName)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = h.svc.RunWaiting(context.Background(), "nope")
	assert.True(t, exception.IsKind(err, exception.KindValidation))
}
