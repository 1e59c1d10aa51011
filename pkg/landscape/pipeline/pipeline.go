// Package pipeline sequences sheet transfers between the engine and the
// store. Every transfer is a batch step; a pipeline invocation is a FlowJob
// that stops at the first failing step and keeps what earlier steps wrote.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/job/joblauncher"
	"landscapesim/pkg/batch/job/runner"
	"landscapesim/pkg/batch/repository"
	"landscapesim/pkg/batch/step/listener"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/contrib"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/metric"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/publish"
	"landscapesim/pkg/landscape/store"
)

const module = "pipeline"

const defaultChunkSize = 500

// Options configures a Pipeline.
type Options struct {
	Store      store.Store
	Repository repository.JobRepository
	// Bundle selects the sheet tables. The zero value means contrib.Default().
	Bundle    contrib.Bundle
	Publisher *publish.Publisher
	Cleaner   Cleaner
	Metrics   *metric.Metrics
	// KeepTempFiles retains exported and composed CSVs for inspection.
	KeepTempFiles bool
	ChunkSize     int
}

// Pipeline moves sheets of one library.
type Pipeline struct {
	lib       *model.Library
	console   engine.Console
	store     store.Store
	repo      repository.JobRepository
	bundle    contrib.Bundle
	resolver  *store.Resolver
	publisher *publish.Publisher
	cleaner   Cleaner
	metrics   *metric.Metrics
	keepTemp  bool
	chunkSize int
	listeners []core.StepExecutionListener
	log       *slog.Logger
}

// New creates a Pipeline for lib driven through console.
func New(lib *model.Library, console engine.Console, opts Options) *Pipeline {
	p := &Pipeline{
		lib:       lib,
		console:   console,
		store:     opts.Store,
		repo:      opts.Repository,
		bundle:    opts.Bundle,
		resolver:  store.NewResolver(opts.Store),
		publisher: opts.Publisher,
		cleaner:   opts.Cleaner,
		metrics:   opts.Metrics,
		keepTemp:  opts.KeepTempFiles,
		chunkSize: opts.ChunkSize,
		listeners: []core.StepExecutionListener{listener.NewLoggingListener()},
		log:       logger.With("component", module, "library", lib.Name),
	}
	if p.bundle.Name == "" {
		p.bundle = contrib.Default()
	}
	if p.repo == nil {
		p.repo = repository.NewMemoryJobRepository()
	}
	if p.cleaner == nil {
		p.cleaner = SQLiteCleaner{}
	}
	if p.chunkSize <= 0 {
		p.chunkSize = defaultChunkSize
	}
	return p
}

// Library returns the library record.
func (p *Pipeline) Library() *model.Library { return p.lib }

// Console returns the engine adapter.
func (p *Pipeline) Console() engine.Console { return p.console }

// Bundle returns the sheet tables in use.
func (p *Pipeline) Bundle() contrib.Bundle { return p.bundle }

// Repository returns the job repository step executions are recorded in.
func (p *Pipeline) Repository() repository.JobRepository { return p.repo }

// Publisher returns the raster publisher, which may be nil.
func (p *Pipeline) Publisher() *publish.Publisher { return p.publisher }

// StepListeners returns the listeners attached to every step built here.
func (p *Pipeline) StepListeners() []core.StepExecutionListener { return p.listeners }

// ImportDefinitions imports the definition sheets of project in order.
func (p *Pipeline) ImportDefinitions(ctx context.Context, project *model.Project) error {
	return p.launch(ctx, "importDefinitions", p.DefinitionSteps(project), "pid", project.PID)
}

// ImportValues imports every value sheet of sc, superseding earlier rows.
func (p *Pipeline) ImportValues(ctx context.Context, sc *model.Scenario) error {
	return p.launch(ctx, "importValues", p.ValueSteps(sc), "sid", sc.SID)
}

// ImportReports imports every report of a result scenario.
func (p *Pipeline) ImportReports(ctx context.Context, sc *model.Scenario) error {
	return p.launch(ctx, "importReports", p.ReportSteps(sc), "sid", sc.SID)
}

// ImportOutputs imports the run control echo and the reports of a result
// scenario.
func (p *Pipeline) ImportOutputs(ctx context.Context, sc *model.Scenario) error {
	return p.launch(ctx, "importOutputs", p.OutputSteps(sc), "sid", sc.SID)
}

// ImportConfig composes payload into the configuration sheets of sc and
// imports them into the working library. Result scenarios are rejected
// before the engine is invoked.
func (p *Pipeline) ImportConfig(ctx context.Context, sc *model.Scenario, payload map[string]any) error {
	steps, err := p.ConfigSteps(sc, payload)
	if err != nil {
		return err
	}
	return p.launch(ctx, "importConfig", steps, "sid", sc.SID)
}

// PublishOutputs uploads the spatial output rasters of a result scenario.
// It does nothing when no publisher is configured.
func (p *Pipeline) PublishOutputs(ctx context.Context, sc *model.Scenario) ([]publish.Info, error) {
	return p.publisher.PublishOutputs(ctx, p.lib.Name, sc.SID, p.console.SpatialOutputDir(sc.SID))
}

// Launch runs steps as one FlowJob.
func (p *Pipeline) Launch(ctx context.Context, name string, steps []core.Step, params core.JobParameters, jobListeners ...core.JobExecutionListener) (*core.JobExecution, error) {
	if params.Params == nil {
		params = core.NewJobParameters()
	}
	params.Put("library", p.lib.Name)
	job := runner.NewFlowJob(name, steps, p.repo, jobListeners)
	return joblauncher.NewSimpleJobLauncher(p.repo).Launch(ctx, job, params)
}

func (p *Pipeline) launch(ctx context.Context, name string, steps []core.Step, scopeKey string, id int) error {
	params := core.NewJobParameters()
	params.Put(scopeKey, strconv.Itoa(id))
	_, err := p.Launch(ctx, name, steps, params)
	return err
}
