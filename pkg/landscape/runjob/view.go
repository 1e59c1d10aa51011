package runjob

import (
	"context"
	"os"
	"strings"

	"landscapesim/pkg/batch/util/serialization"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/model"
)

// rasterSuffix marks the state class raster written once per iteration and
// timestep.
const rasterSuffix = "-sc.tif"

// ScenarioRef identifies a stored scenario by record id and engine sid.
type ScenarioRef struct {
	ID  int64 `json:"id"`
	SID int   `json:"sid"`
}

// View is the externally visible state of a job.
type View struct {
	UUID           string         `json:"uuid"`
	Status         string         `json:"status"`
	ModelStatus    string         `json:"model_status"`
	Progress       *float64       `json:"progress"`
	Inputs         map[string]any `json:"inputs"`
	Outputs        map[string]any `json:"outputs"`
	ParentScenario *ScenarioRef   `json:"parent_scenario"`
	ResultScenario *ScenarioRef   `json:"result_scenario"`
	Error          string         `json:"error,omitempty"`
}

func (s *Service) view(ctx context.Context, job *model.AsyncJob) (*View, error) {
	v := &View{
		UUID:        job.UUID,
		Status:      job.Status,
		ModelStatus: string(job.ModelStatus),
		Error:       job.ErrorMessage,
	}
	if err := serialization.Unmarshal(job.Inputs, &v.Inputs); err != nil {
		return nil, err
	}
	if err := serialization.Unmarshal(job.Outputs, &v.Outputs); err != nil {
		return nil, err
	}
	if v.Outputs == nil {
		v.Outputs = map[string]any{}
	}
	var err error
	if v.ParentScenario, err = s.scenarioRef(ctx, job.ParentScenarioID); err != nil {
		return nil, err
	}
	if v.ResultScenario, err = s.scenarioRef(ctx, job.ResultScenarioID); err != nil {
		return nil, err
	}
	v.Progress = s.progress(ctx, job, v.ResultScenario)
	if v.Progress != nil {
		s.metrics.SetProgress(job.UUID, *v.Progress)
	}
	return v, nil
}

func (s *Service) scenarioRef(ctx context.Context, id *int64) (*ScenarioRef, error) {
	if id == nil {
		return nil, nil
	}
	sc, err := s.store.GetScenario(ctx, *id)
	if err != nil {
		return nil, err
	}
	return &ScenarioRef{ID: sc.ID, SID: sc.SID}, nil
}

// progress estimates a spatial run from the rasters written so far. Before
// the result scenario is recorded the newest unrecorded output directory is
// taken as the run's. Non-spatial runs report nil.
func (s *Service) progress(ctx context.Context, job *model.AsyncJob, result *ScenarioRef) *float64 {
	switch job.ModelStatus {
	case model.ModelStatusWaiting, model.ModelStatusStarting, model.ModelStatusFailed:
		return nil
	}
	var req SubmitRequest
	if err := serialization.Unmarshal(job.Inputs, &req); err != nil {
		return nil
	}
	total, ok := expectedRasters(req.Config)
	if !ok {
		return nil
	}
	p, ok := s.pipelines[job.LibraryName]
	if !ok {
		return nil
	}
	sid := 0
	if result != nil {
		sid = result.SID
	} else if sid, ok = s.unrecordedOutput(ctx, p.Library(), p.Console()); !ok {
		zero := 0.0
		return &zero
	}
	n := countRasters(p.Console().SpatialOutputDir(sid))
	ratio := min(float64(n)/float64(total), 1)
	return &ratio
}

// expectedRasters is iterations × timesteps + iterations, the extra raster
// per iteration being the timestep zero snapshot.
func expectedRasters(cfg map[string]any) (int64, bool) {
	rc, ok := cfg["run_control"].(map[string]any)
	if !ok {
		return 0, false
	}
	if spatial, _ := rc["is_spatial"].(bool); !spatial {
		return 0, false
	}
	minIt, ok1 := model.AsInt(rc["min_iteration"])
	maxIt, ok2 := model.AsInt(rc["max_iteration"])
	minTs, ok3 := model.AsInt(rc["min_timestep"])
	maxTs, ok4 := model.AsInt(rc["max_timestep"])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}
	iterations := maxIt - minIt + 1
	timesteps := maxTs - minTs
	total := iterations*timesteps + iterations
	return total, total > 0
}

func countRasters(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), rasterSuffix) {
			n++
		}
	}
	return n
}

// unrecordedOutput returns the largest sid with an output directory but no
// stored scenario.
func (s *Service) unrecordedOutput(ctx context.Context, lib *model.Library, console engine.Console) (int, bool) {
	missing, err := s.unrecordedOutputs(ctx, lib, console)
	if err != nil || len(missing) == 0 {
		return 0, false
	}
	return missing[len(missing)-1], true
}
