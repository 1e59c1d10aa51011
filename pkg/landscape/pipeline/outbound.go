package pipeline

import (
	"context"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/step"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/sheet"
)

// ConfigSteps returns one step per configuration sheet. Each step composes
// its rows into a fresh CSV and imports it with cleanup, so a sheet is
// either imported whole or not at all. An empty multi-row sheet cannot be
// expressed as an import and is cleared through the Cleaner instead.
func (p *Pipeline) ConfigSteps(sc *model.Scenario, payload map[string]any) ([]core.Step, error) {
	if sc.IsResult {
		return nil, exception.Newf(exception.KindScope, module, "sid %d is a result scenario", sc.SID, exception.ErrResultScenarioImmutable)
	}
	steps := make([]core.Step, 0, len(p.bundle.Configs))
	for _, cs := range p.bundle.Configs {
		rows, err := configRows(cs, payload[cs.Key])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step.NewTaskletStep("import:"+cs.Descriptor.Sheet, step.TaskletFunc(
			func(ctx context.Context, se *core.StepExecution) (core.ExitStatus, error) {
				return p.importConfigSheet(ctx, se, cs, rows, sc)
			}), p.repo, p.listeners))
	}
	return steps, nil
}

func (p *Pipeline) importConfigSheet(ctx context.Context, se *core.StepExecution, cs sheet.ConfigSheet, rows []map[string]any, sc *model.Scenario) (core.ExitStatus, error) {
	d := cs.Descriptor
	if len(rows) == 0 {
		if !cs.Multi {
			return core.ExitStatusNoOp, nil
		}
		if err := p.cleaner.ClearSheet(ctx, p.console.Library(), d.Sheet, sc.SID); err != nil {
			return core.ExitStatusFailed, err
		}
		return core.ExitStatusCompleted, nil
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		rec, err := d.Encode(ctx, row, p.resolver)
		if err != nil {
			return core.ExitStatusFailed, err
		}
		records = append(records, rec)
	}
	path := p.console.TempCSVPath()
	if err := d.WriteCSV(path, records); err != nil {
		return core.ExitStatusFailed, exception.New(exception.KindInternal, module, "compose "+d.Sheet, err)
	}
	se.ReadCount = len(rows)
	if err := p.console.ImportSheet(ctx, d.Sheet, path, engine.ScenarioScope(sc.SID), !p.keepTemp); err != nil {
		return core.ExitStatusFailed, err
	}
	se.WriteCount = len(records)
	p.metrics.AddSheetRows(d.Sheet, "outbound", len(records))
	return core.ExitStatusCompleted, nil
}

// configRows normalizes one payload value into rows: an object for single
// sheets, a list of objects for multi-row sheets.
func configRows(cs sheet.ConfigSheet, v any) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	bad := func() error {
		want := "an object"
		if cs.Multi {
			want = "a list of objects"
		}
		return exception.Newf(exception.KindValidation, module, "config key %q must be %s, got %T", cs.Key, want, v)
	}
	if !cs.Multi {
		row, ok := v.(map[string]any)
		if !ok {
			return nil, bad()
		}
		return []map[string]any{row}, nil
	}
	switch list := v.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		rows := make([]map[string]any, 0, len(list))
		for i, item := range list {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, exception.Newf(exception.KindValidation, module, "config key %q item %d must be an object, got %T", cs.Key, i, item)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return nil, bad()
}
