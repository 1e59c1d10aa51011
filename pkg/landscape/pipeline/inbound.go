package pipeline

import (
	"context"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/step"
	"landscapesim/pkg/batch/step/reader"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/sheet"
)

const inputsSheet = "STSim_InitialConditionsSpatial"

// sheetProcessor turns one exported row into a record. scope supplies the
// owning ids when the row is processed.
type sheetProcessor struct {
	desc   sheet.Descriptor
	lookup sheet.Lookup
	scope  func() model.Record
}

var _ core.ItemProcessor[reader.Row, *model.Record] = (*sheetProcessor)(nil)

func (sp *sheetProcessor) Process(ctx context.Context, row reader.Row) (*model.Record, error) {
	rec := sp.scope()
	fields, err := sp.desc.Decode(ctx, row, sp.lookup, rec.ProjectID)
	if err != nil {
		return nil, err
	}
	rec.Kind = sp.desc.Kind
	rec.Fields = fields
	if sp.desc.HasName() {
		rec.Name, _ = fields["name"].(string)
	}
	return &rec, nil
}

type writeMode int

const (
	replaceDefinitions writeMode = iota
	supersedeRecords
	attachToReport
)

// recordWriter stages every chunk of a sheet and stores the whole sheet in
// one call on Commit. Definitions replace the project's earlier ones of the
// same kind, values supersede the scenario's earlier rows and report rows
// replace the contents of the scenario's report container.
type recordWriter struct {
	p        *Pipeline
	desc     sheet.Descriptor
	mode     writeMode
	project  *model.Project
	scenario *model.Scenario
	report   string

	ec     core.ExecutionContext
	staged []*model.Record
}

var (
	_ core.ItemWriter[*model.Record] = (*recordWriter)(nil)
	_ core.ItemCommitter             = (*recordWriter)(nil)
)

func (w *recordWriter) Open(_ context.Context, ec core.ExecutionContext) error {
	w.ec = ec
	w.staged = w.staged[:0]
	return nil
}

func (w *recordWriter) Write(_ context.Context, items []*model.Record) error {
	w.staged = append(w.staged, items...)
	return nil
}

func (w *recordWriter) Commit(ctx context.Context) error {
	var err error
	switch w.mode {
	case replaceDefinitions:
		err = w.p.store.ReplaceDefinitions(ctx, w.project.ID, w.desc.Kind, w.staged)
	case supersedeRecords:
		err = w.p.store.ReplaceScenarioRecords(ctx, w.scenario.ID, w.desc.Kind, w.staged)
	case attachToReport:
		var (
			rep     *model.Report
			created bool
		)
		rep, created, err = w.p.store.ReplaceReportRecords(ctx, w.scenario.ID, w.report, w.staged)
		if err == nil && w.ec != nil {
			w.ec.Put("report.id", rep.ID)
			w.ec.Put("report.created", created)
		}
	}
	if err != nil {
		return exception.New(exception.KindInternal, module, "store "+w.desc.Sheet, err)
	}
	w.p.metrics.AddSheetRows(w.desc.Sheet, "inbound", len(w.staged))
	return nil
}

func (w *recordWriter) Close(context.Context) error {
	w.staged = nil
	return nil
}

func (p *Pipeline) exportReader(sheetName string, scope func() (engine.Scope, bool)) *reader.CSVItemReader {
	return reader.NewCSVItemReader(p.console.TempCSVPath(), func(ctx context.Context, path string) error {
		sc, useOriginal := scope()
		return p.console.ExportSheet(ctx, sheetName, path, sc, engine.ExportOptions{Overwrite: true, UseOriginal: useOriginal})
	}, p.keepTemp)
}

// DefinitionSteps returns one step per definition sheet, in dependency order.
func (p *Pipeline) DefinitionSteps(project *model.Project) []core.Step {
	steps := make([]core.Step, 0, len(p.bundle.Definitions))
	for _, d := range p.bundle.Definitions {
		r := p.exportReader(d.Sheet, func() (engine.Scope, bool) {
			return engine.ProjectScope(project.PID), false
		})
		proc := &sheetProcessor{desc: d, lookup: p.resolver, scope: func() model.Record {
			return model.Record{ProjectID: project.ID}
		}}
		w := &recordWriter{p: p, desc: d, mode: replaceDefinitions, project: project}
		steps = append(steps, step.NewChunkStep[reader.Row, *model.Record]("export:"+d.Sheet, r, proc, w, p.chunkSize, p.repo, p.listeners))
	}
	return steps
}

// valueStep imports one value sheet of sc. Result scenarios are read from
// the working library, all others from the original. sc is read when the
// step executes, so it may be filled in by an earlier step.
func (p *Pipeline) valueStep(d sheet.Descriptor, sc *model.Scenario) core.Step {
	r := p.exportReader(d.Sheet, func() (engine.Scope, bool) {
		return engine.ScenarioScope(sc.SID), !sc.IsResult && p.console.HasOriginal()
	})
	proc := &sheetProcessor{desc: d, lookup: p.resolver, scope: func() model.Record {
		return model.Record{ProjectID: sc.ProjectID, ScenarioID: model.Int64Ptr(sc.ID)}
	}}
	w := &recordWriter{p: p, desc: d, mode: supersedeRecords, scenario: sc}
	return step.NewChunkStep[reader.Row, *model.Record]("export:"+d.Sheet, r, proc, w, p.chunkSize, p.repo, p.listeners)
}

// ValueSteps returns one step per value sheet, in dependency order. The
// spatial initial conditions are followed by publishing their rasters.
func (p *Pipeline) ValueSteps(sc *model.Scenario) []core.Step {
	steps := make([]core.Step, 0, len(p.bundle.Values)+1)
	for _, d := range p.bundle.Values {
		steps = append(steps, p.valueStep(d, sc))
		if d.Kind == model.KindInitialConditionsSpatial && p.publisher != nil {
			steps = append(steps, p.publishInputsStep(sc))
		}
	}
	return steps
}

// OutputSteps returns the steps importing what a run produced: the run
// control echo and the reports.
func (p *Pipeline) OutputSteps(sc *model.Scenario) []core.Step {
	var steps []core.Step
	for _, d := range p.bundle.Values {
		if d.Kind == model.KindRunControl {
			steps = append(steps, p.valueStep(d, sc))
		}
	}
	return append(steps, p.ReportSteps(sc)...)
}

// ReportSteps returns one step per report. Each report gets at most one
// container per scenario.
func (p *Pipeline) ReportSteps(sc *model.Scenario) []core.Step {
	steps := make([]core.Step, 0, len(p.bundle.Reports))
	for _, rs := range p.bundle.Reports {
		name := rs.Report
		r := reader.NewCSVItemReader(p.console.TempCSVPath(), func(ctx context.Context, path string) error {
			return p.console.GenerateReport(ctx, name, path, sc.SID)
		}, p.keepTemp)
		proc := &sheetProcessor{desc: rs.Descriptor, lookup: p.resolver, scope: func() model.Record {
			return model.Record{ProjectID: sc.ProjectID, ScenarioID: model.Int64Ptr(sc.ID)}
		}}
		w := &recordWriter{p: p, desc: rs.Descriptor, mode: attachToReport, scenario: sc, report: name}
		steps = append(steps, step.NewChunkStep[reader.Row, *model.Record]("report:"+name, r, proc, w, p.chunkSize, p.repo, p.listeners))
	}
	return steps
}

func (p *Pipeline) publishInputsStep(sc *model.Scenario) core.Step {
	return step.NewTaskletStep("publish:inputs", step.TaskletFunc(func(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
		dir, err := p.console.InputDir(sc.SID, inputsSheet)
		if err != nil {
			return core.ExitStatusFailed, err
		}
		infos, err := p.publisher.PublishInputs(ctx, p.lib.Name, sc.SID, dir)
		if err != nil {
			return core.ExitStatusFailed, err
		}
		se.WriteCount = len(infos)
		if len(infos) == 0 {
			return core.ExitStatusNoOp, nil
		}
		return core.ExitStatusCompleted, nil
	}), p.repo, p.listeners)
}

// PublishOutputsStep uploads the spatial output rasters of sc.
func (p *Pipeline) PublishOutputsStep(sc *model.Scenario) core.Step {
	return step.NewTaskletStep("publish:outputs", step.TaskletFunc(func(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
		infos, err := p.PublishOutputs(ctx, sc)
		if err != nil {
			return core.ExitStatusFailed, err
		}
		se.WriteCount = len(infos)
		return core.ExitStatusCompleted, nil
	}), p.repo, p.listeners)
}
