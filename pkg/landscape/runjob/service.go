// Package runjob drives a run request through
// waiting → starting → running → processing → complete, or failed.
package runjob

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/step"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/batch/util/serialization"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/metric"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/store"
)

const module = "runjob"

// DefaultJobName names the FlowJob a run executes as.
const DefaultJobName = "runModel"

const runStepName = "runModel"

// SubmitRequest is the payload of a run request.
type SubmitRequest struct {
	LibraryName string         `json:"library_name"`
	PID         int            `json:"pid"`
	SID         int            `json:"sid"`
	Config      map[string]any `json:"config"`
}

// Options configures a Service.
type Options struct {
	Store     store.Store
	Pipelines map[string]*pipeline.Pipeline
	Metrics   *metric.Metrics
	JobName   string
}

// Service accepts run requests and executes them. Runs against one library
// are serialized; the engine library file does not tolerate concurrent
// writers.
type Service struct {
	store     store.Store
	pipelines map[string]*pipeline.Pipeline
	metrics   *metric.Metrics
	jobName   string
	log       *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a Service over the registered pipelines.
func NewService(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		pipelines: maps.Clone(opts.Pipelines),
		metrics:   opts.Metrics,
		jobName:   opts.JobName,
		log:       logger.With("component", module),
		locks:     make(map[string]*sync.Mutex),
	}
	if s.pipelines == nil {
		s.pipelines = make(map[string]*pipeline.Pipeline)
	}
	if s.jobName == "" {
		s.jobName = DefaultJobName
	}
	return s
}

// Libraries returns the names of the libraries jobs can target.
func (s *Service) Libraries() []string {
	return slices.Sorted(maps.Keys(s.pipelines))
}

func (s *Service) lockFor(library string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[library]
	if !ok {
		l = &sync.Mutex{}
		s.locks[library] = l
	}
	return l
}

func (s *Service) pipeline(name string) (*pipeline.Pipeline, error) {
	p, ok := s.pipelines[name]
	if !ok {
		return nil, exception.Newf(exception.KindValidation, module, "library %q is not registered", name)
	}
	return p, nil
}

// Submit validates req and records a waiting job. Nothing is sent to the
// engine.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*View, error) {
	p, err := s.pipeline(req.LibraryName)
	if err != nil {
		return nil, err
	}
	if err := checkConfigKeys(p.Bundle().ConfigKeys(), req.Config); err != nil {
		return nil, err
	}
	parent, err := s.findScenario(ctx, p.Library(), req.PID, req.SID)
	if err != nil {
		return nil, err
	}
	if parent.IsResult {
		return nil, exception.Newf(exception.KindScope, module, "sid %d is a result scenario", req.SID, exception.ErrResultScenarioImmutable)
	}

	inputs, err := serialization.Marshal(req)
	if err != nil {
		return nil, err
	}
	job := &model.AsyncJob{
		UUID:             uuid.NewString(),
		LibraryName:      req.LibraryName,
		Status:           string(core.BatchStatusStarting),
		ModelStatus:      model.ModelStatusWaiting,
		Inputs:           inputs,
		ParentScenarioID: model.Int64Ptr(parent.ID),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.metrics.JobTransition(string(model.ModelStatusWaiting))
	s.log.Info("job submitted", "job", job.UUID, "library", req.LibraryName, "pid", req.PID, "sid", req.SID)
	return s.view(ctx, job)
}

// checkConfigKeys requires cfg to carry exactly the known keys.
func checkConfigKeys(known []string, cfg map[string]any) error {
	var missing, unknown []string
	for _, k := range known {
		if _, ok := cfg[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range cfg {
		if !slices.Contains(known, k) {
			unknown = append(unknown, k)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown keys: "+strings.Join(unknown, ", "))
	}
	return exception.New(exception.KindValidation, module, "invalid config; "+strings.Join(parts, "; "), nil)
}

func (s *Service) findScenario(ctx context.Context, lib *model.Library, pid, sid int) (*model.Scenario, error) {
	proj, err := s.store.FindProject(ctx, lib.ID, pid)
	if errors.Is(err, exception.ErrNotFound) {
		return nil, exception.Newf(exception.KindScope, module, "pid %d does not exist in library %q", pid, lib.Name, exception.ErrInvalidScope)
	}
	if err != nil {
		return nil, err
	}
	sc, err := s.store.FindScenario(ctx, proj.ID, sid)
	if errors.Is(err, exception.ErrNotFound) {
		return nil, exception.Newf(exception.KindScope, module, "sid %d does not exist in project %d", sid, pid, exception.ErrInvalidScope)
	}
	return sc, err
}

// Get returns the current view of a job.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, job)
}

// transition moves job to next and persists it.
func (s *Service) transition(ctx context.Context, job *model.AsyncJob, next model.ModelStatus) error {
	s.log.Info("job transition", "job", job.UUID, "from", string(job.ModelStatus), "to", string(next))
	job.ModelStatus = next
	if err := s.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		return err
	}
	s.metrics.JobTransition(string(next))
	return nil
}

// Run executes a waiting job to completion. It blocks while another run
// holds the library.
func (s *Service) Run(ctx context.Context, id string) (*View, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.ModelStatus != model.ModelStatusWaiting {
		return nil, exception.Newf(exception.KindValidation, module, "job %s is %s, not waiting", id, job.ModelStatus)
	}
	var req SubmitRequest
	if err := serialization.Unmarshal(job.Inputs, &req); err != nil {
		return nil, err
	}
	p, err := s.pipeline(job.LibraryName)
	if err != nil {
		return nil, err
	}
	if job.ParentScenarioID == nil {
		return nil, exception.Newf(exception.KindValidation, module, "job %s has no parent scenario", id)
	}
	parent, err := s.store.GetScenario(ctx, *job.ParentScenarioID)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(job.LibraryName)
	lock.Lock()
	defer lock.Unlock()

	job.Status = string(core.BatchStatusStarted)
	if err := s.transition(ctx, job, model.ModelStatusStarting); err != nil {
		return nil, err
	}

	result := &model.Scenario{}
	runErr := s.execute(ctx, p, job, parent, result, req.Config)
	if runErr != nil {
		job.Status = string(core.BatchStatusFailed)
		job.ErrorMessage = runErr.Error()
		if err := s.transition(ctx, job, model.ModelStatusFailed); err != nil {
			s.log.Error("could not record failure", "job", job.UUID, "error", err)
		}
		return s.viewAfter(ctx, job, runErr)
	}
	job.Status = string(core.BatchStatusCompleted)
	if err := s.transition(ctx, job, model.ModelStatusComplete); err != nil {
		return nil, err
	}

	// The full value snapshot of the result is not needed to display it.
	if err := p.ImportValues(ctx, result); err != nil {
		s.log.Warn("result snapshot failed", "job", job.UUID, "sid", result.SID, "error", err)
	}
	return s.view(ctx, job)
}

// RunWaiting runs the waiting jobs of library, oldest first. A failed run
// does not stop the others; its view carries the error.
func (s *Service) RunWaiting(ctx context.Context, library string) ([]*View, error) {
	if _, err := s.pipeline(library); err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobs(ctx, library)
	if err != nil {
		return nil, err
	}
	var out []*View
	for i := len(jobs) - 1; i >= 0; i-- {
		if jobs[i].ModelStatus != model.ModelStatusWaiting {
			continue
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		v, err := s.Run(ctx, jobs[i].UUID)
		if v == nil {
			return out, err
		}
		if err != nil {
			s.log.Warn("run failed", "job", jobs[i].UUID, "error", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) viewAfter(ctx context.Context, job *model.AsyncJob, runErr error) (*View, error) {
	v, err := s.view(ctx, job)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return v, runErr
}

// execute runs configuration import, the model run and output import as
// one FlowJob. result is filled in by the run step, before the output
// steps read it.
func (s *Service) execute(ctx context.Context, p *pipeline.Pipeline, job *model.AsyncJob, parent, result *model.Scenario, cfg map[string]any) error {
	steps, err := p.ConfigSteps(parent, cfg)
	if err != nil {
		return err
	}
	t := &tracker{svc: s, job: job}
	listeners := append(slices.Clone(p.StepListeners()), t)
	steps = append(steps, step.NewTaskletStep(runStepName, step.TaskletFunc(
		func(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
			sc, err := s.runModel(ctx, p, parent)
			if err != nil {
				return core.ExitStatusFailed, err
			}
			*result = *sc
			if err := s.recordResult(ctx, job, sc); err != nil {
				return core.ExitStatusFailed, err
			}
			se.ExecutionContext.Put("result.sid", sc.SID)
			return core.ExitStatusCompleted, nil
		}), p.Repository(), listeners))
	steps = append(steps, p.OutputSteps(result)...)
	steps = append(steps, p.PublishOutputsStep(result))

	params := core.NewJobParameters()
	params.Put("job", job.UUID)
	params.Put("sid", strconv.Itoa(parent.SID))
	if _, err := p.Launch(ctx, s.jobName, steps, params, t); err != nil {
		return err
	}
	return t.err
}

// runModel runs parent and records the result scenario the engine reports.
func (s *Service) runModel(ctx context.Context, p *pipeline.Pipeline, parent *model.Scenario) (*model.Scenario, error) {
	sid, err := p.Console().RunModel(ctx, parent.SID)
	if err != nil {
		return nil, err
	}
	attrs, err := p.Console().ListScenarioAttrs(ctx, engine.ScenarioQuery{ResultsOnly: true})
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(attrs, func(a engine.ScenarioAttrs) bool { return a.SID == sid })
	if i < 0 {
		return nil, exception.Newf(exception.KindProtocol, module, "run of sid %d reported result %d, which is not listed", parent.SID, sid)
	}
	sc := &model.Scenario{
		ProjectID: parent.ProjectID,
		SID:       sid,
		Name:      attrs[i].Name,
		IsResult:  true,
		ParentID:  model.Int64Ptr(parent.ID),
	}
	if _, err := s.store.GetOrCreateScenario(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// recordResult links the result scenario to the job and exposes it in the
// job outputs.
func (s *Service) recordResult(ctx context.Context, job *model.AsyncJob, sc *model.Scenario) error {
	outputs, err := serialization.Marshal(map[string]any{
		"result_scenario": ScenarioRef{ID: sc.ID, SID: sc.SID},
	})
	if err != nil {
		return err
	}
	job.ResultScenarioID = model.Int64Ptr(sc.ID)
	job.Outputs = outputs
	return s.store.UpdateJob(ctx, job)
}

// tracker advances the model status around the run step and remembers
// the first persistence failure, which listeners cannot return.
type tracker struct {
	svc *Service
	job *model.AsyncJob
	err error
}

var (
	_ core.StepExecutionListener = (*tracker)(nil)
	_ core.JobExecutionListener  = (*tracker)(nil)
)

func (t *tracker) BeforeStep(ctx context.Context, se *core.StepExecution) {
	if se.StepName == runStepName {
		t.move(ctx, model.ModelStatusRunning)
	}
}

func (t *tracker) AfterStep(ctx context.Context, se *core.StepExecution) {
	if se.StepName == runStepName && se.Status == core.BatchStatusCompleted {
		t.move(ctx, model.ModelStatusProcessing)
	}
}

func (t *tracker) BeforeJob(_ context.Context, je *core.JobExecution) {
	logger.With("job", t.job.UUID, "execution", je.ID).Debug("run job started")
}

func (t *tracker) AfterJob(_ context.Context, je *core.JobExecution) {
	logger.With("job", t.job.UUID, "execution", je.ID, "status", string(je.Status)).Debug("run job finished")
}

func (t *tracker) move(ctx context.Context, next model.ModelStatus) {
	if err := t.svc.transition(ctx, t.job, next); err != nil && t.err == nil {
		t.err = err
	}
}
