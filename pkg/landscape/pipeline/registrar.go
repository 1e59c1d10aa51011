package pipeline

import (
	"cmp"
	"context"
	"errors"
	"io"
	"os"
	"slices"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/contrib"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/model"
)

// OpenFunc builds the engine adapter of a library.
type OpenFunc func(ctx context.Context, lib *model.Library) (engine.Console, error)

// Registrar imports libraries into the store.
type Registrar struct {
	open    OpenFunc
	opts    Options
	bundles *contrib.Registry
}

// NewRegistrar creates a Registrar. opts is the template every library's
// Pipeline is built from; its Bundle is chosen per library from bundles.
func NewRegistrar(open OpenFunc, opts Options, bundles *contrib.Registry) *Registrar {
	return &Registrar{open: open, opts: opts, bundles: bundles}
}

// Register records a new library and imports every project with its
// definitions and every scenario with its values. When originalFile is
// configured but absent the working library is first copied there to
// freeze the baseline. A library whose import fails stays recorded as not
// imported and Open imports it again.
func (r *Registrar) Register(ctx context.Context, name, file, originalFile string) (*Pipeline, error) {
	if _, err := r.opts.Store.GetLibraryByName(ctx, name); err == nil {
		return nil, exception.Newf(exception.KindValidation, module, "library %q is already registered", name)
	} else if !errors.Is(err, exception.ErrNotFound) {
		return nil, err
	}
	if originalFile != "" {
		if err := freezeOriginal(file, originalFile); err != nil {
			return nil, err
		}
	}
	lib := &model.Library{Name: name, File: file, OriginalFile: originalFile}
	p, err := r.pipeline(ctx, lib)
	if err != nil {
		return nil, err
	}
	if err := r.opts.Store.CreateLibrary(ctx, lib); err != nil {
		return nil, err
	}
	return p, p.finishImport(ctx)
}

// Open returns the Pipeline of a library, registering it first if the store
// does not know it yet and resuming its import if an earlier one failed.
func (r *Registrar) Open(ctx context.Context, name, file, originalFile string) (*Pipeline, error) {
	lib, err := r.opts.Store.GetLibraryByName(ctx, name)
	if errors.Is(err, exception.ErrNotFound) {
		return r.Register(ctx, name, file, originalFile)
	}
	if err != nil {
		return nil, err
	}
	p, err := r.pipeline(ctx, lib)
	if err != nil {
		return nil, err
	}
	if !lib.Imported {
		p.log.Warn("library import was not finished, importing again")
		if err := p.finishImport(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *Registrar) pipeline(ctx context.Context, lib *model.Library) (*Pipeline, error) {
	console, err := r.open(ctx, lib)
	if err != nil {
		return nil, err
	}
	opts := r.opts
	opts.Bundle = r.bundles.For(lib.Name)
	return New(lib, console, opts), nil
}

func (p *Pipeline) finishImport(ctx context.Context) error {
	if err := p.importLibrary(ctx); err != nil {
		return err
	}
	if err := p.store.MarkLibraryImported(ctx, p.lib.ID); err != nil {
		return err
	}
	p.lib.Imported = true
	return nil
}

// importLibrary may run again over a partly imported library: projects and
// scenarios are reused and every sheet replaces what an earlier run stored.
func (p *Pipeline) importLibrary(ctx context.Context) error {
	projects, err := p.console.ListProjects(ctx)
	if err != nil {
		return err
	}
	byPID := make(map[int]*model.Project, len(projects))
	for pid, name := range projects {
		proj, err := p.store.FindProject(ctx, p.lib.ID, pid)
		if errors.Is(err, exception.ErrNotFound) {
			proj = &model.Project{LibraryID: p.lib.ID, PID: pid, Name: name}
			err = p.store.CreateProject(ctx, proj)
		}
		if err != nil {
			return err
		}
		byPID[pid] = proj
	}
	for _, proj := range sortedProjects(byPID) {
		if err := p.ImportDefinitions(ctx, proj); err != nil {
			return err
		}
	}

	attrs, err := p.console.ListScenarioAttrs(ctx, engine.ScenarioQuery{})
	if err != nil {
		return err
	}
	// Baselines first, then results.
	var ordered []engine.ScenarioAttrs
	for _, results := range []bool{false, true} {
		for _, a := range attrs {
			if a.IsResult == results {
				ordered = append(ordered, a)
			}
		}
	}
	for _, a := range ordered {
		proj, ok := byPID[a.PID]
		if !ok {
			p.log.Warn("scenario belongs to an unknown project", "sid", a.SID, "pid", a.PID)
			continue
		}
		sc := &model.Scenario{ProjectID: proj.ID, SID: a.SID, Name: a.Name, IsResult: a.IsResult}
		if _, err := p.store.GetOrCreateScenario(ctx, sc); err != nil {
			return err
		}
		if err := p.ImportValues(ctx, sc); err != nil {
			return err
		}
	}
	p.log.Info("library registered", "projects", len(byPID), "scenarios", len(ordered))
	return nil
}

func sortedProjects(m map[int]*model.Project) []*model.Project {
	out := make([]*model.Project, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *model.Project) int { return cmp.Compare(a.PID, b.PID) })
	return out
}

func freezeOriginal(file, original string) error {
	if _, err := os.Stat(original); err == nil {
		return nil
	}
	src, err := os.Open(file)
	if err != nil {
		return exception.New(exception.KindConfiguration, module, "library "+file+" is not readable", err)
	}
	defer src.Close()
	dst, err := os.OpenFile(original, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return exception.New(exception.KindConfiguration, module, "cannot create original "+original, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return exception.New(exception.KindInternal, module, "copy "+file, err)
	}
	logger.Infof("froze original library %s from %s", original, file)
	return dst.Close()
}
