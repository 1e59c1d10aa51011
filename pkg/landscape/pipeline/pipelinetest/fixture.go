// Package pipelinetest builds a fake engine library wired to an in-memory
// store, shared by the pipeline and job runner tests.
package pipelinetest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/repository"
	"landscapesim/pkg/landscape/contrib"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/engine/enginetest"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/publish"
	"landscapesim/pkg/landscape/store"
)

// LibraryName is the registered name of the fixture library.
const LibraryName = "castle"

// Cleared is one recorded ClearSheet call.
type Cleared struct {
	Library string
	Sheet   string
	SID     int
}

// RecordingCleaner records ClearSheet calls instead of touching the library.
type RecordingCleaner struct {
	mu    sync.Mutex
	calls []Cleared
}

// ClearSheet implements pipeline.Cleaner.
func (c *RecordingCleaner) ClearSheet(_ context.Context, library, sheet string, sid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Cleared{Library: library, Sheet: sheet, SID: sid})
	return nil
}

// Calls returns the recorded calls.
func (c *RecordingCleaner) Calls() []Cleared {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Cleared(nil), c.calls...)
}

// Fixture is a working library, its original, and the collaborators a
// Pipeline needs.
type Fixture struct {
	Dir       string
	Fake      *enginetest.Fake
	Lib       *enginetest.Library
	Orig      *enginetest.Library
	Store     store.Store
	Repo      repository.JobRepository
	Cleaner   *RecordingCleaner
	Blobs     *publish.MemoryStore
	Publisher *publish.Publisher
	Bundles   *contrib.Registry
}

// New builds a library with project 1 and scenario 10, two strata and one
// state class. Scenario values live in the original library.
func New(t testing.TB) *Fixture {
	t.Helper()
	dir := t.TempDir()
	fake := enginetest.New()

	var feeds []string
	b := contrib.Default()
	for _, d := range b.Definitions {
		feeds = append(feeds, d.Sheet)
	}
	for _, d := range b.Values {
		feeds = append(feeds, d.Sheet)
	}
	for _, r := range b.Reports {
		fake.Reports[r.Report] = strings.Join(r.Descriptor.Header(), ",") + "\n"
	}
	fake.Reports["stateclass-summary"] = "Iteration,Timestep,Stratum,SecondaryStratum,StateClass,Amount,ProportionOfLandscape,ProportionOfStratumType\n" +
		"1,0,A,,Shrubland,60,0.6,1\n" +
		"1,0,B,,Shrubland,40,0.4,1\n"

	lib, err := fake.AddLibrary(filepath.Join(dir, "castle.ssim"), feeds...)
	require.NoError(t, err)
	orig, err := fake.AddLibrary(filepath.Join(dir, "castle.orig.ssim"), feeds...)
	require.NoError(t, err)
	for _, l := range []*enginetest.Library{lib, orig} {
		l.Projects[1] = "Castle Valley"
		l.AddScenario(enginetest.Scenario{SID: 10, PID: 1, Name: "Baseline"})
		l.SetProjectSheet(1, "STSim_Stratum", []string{"Name", "Description", "Color"},
			[]string{"A", "Upland", "255,0,0,255"}, []string{"B", "Lowland", "0,0,255,255"})
		l.SetProjectSheet(1, "STSim_StateClass", []string{"Name", "StateLabelXID", "StateLabelYID", "Description", "Color"},
			[]string{"Shrubland", "Shrub", "All", "", ""})
		l.SetProjectSheet(1, "STSim_TransitionType", []string{"Name", "Description", "Color", "MapID"},
			[]string{"Fire", "", "", "1"})
		l.SetProjectSheet(1, "STSim_TransitionGroup", []string{"Name", "Description"},
			[]string{"Fire Group", ""})
		l.SetProjectSheet(1, "STSim_TransitionTypeGroup", []string{"TransitionTypeID", "TransitionGroupID", "IsPrimary"},
			[]string{"Fire", "Fire Group", "Yes"})
	}
	orig.SetScenarioSheet(10, "STSim_RunControl",
		[]string{"MinimumIteration", "MaximumIteration", "MinimumTimestep", "MaximumTimestep", "IsSpatial"},
		[]string{"1", "1", "0", "10", ""})

	blobs := publish.NewMemoryStore()
	bundles := contrib.NewRegistry()
	require.NoError(t, contrib.RegisterDefaults(bundles, nil))
	return &Fixture{
		Dir:       dir,
		Fake:      fake,
		Lib:       lib,
		Orig:      orig,
		Store:     store.NewMemoryStore(),
		Repo:      repository.NewMemoryJobRepository(),
		Cleaner:   &RecordingCleaner{},
		Blobs:     blobs,
		Publisher: publish.NewPublisher(blobs, ""),
		Bundles:   bundles,
	}
}

// Options returns the pipeline options backed by the fixture.
func (f *Fixture) Options() pipeline.Options {
	return pipeline.Options{
		Store:      f.Store,
		Repository: f.Repo,
		Publisher:  f.Publisher,
		Cleaner:    f.Cleaner,
	}
}

// Open builds the engine adapter for a library of the fixture.
func (f *Fixture) Open(ctx context.Context, lib *model.Library) (engine.Console, error) {
	return engine.New(ctx, engine.Options{
		Executable:      "SyncroSim.Console.exe",
		Library:         lib.File,
		OriginalLibrary: lib.OriginalFile,
		Platform:        engine.PosixPlatform("mono"),
		Runner:          f.Fake,
	})
}

// Registrar returns a Registrar over the fixture.
func (f *Fixture) Registrar() *pipeline.Registrar {
	return pipeline.NewRegistrar(f.Open, f.Options(), f.Bundles)
}

// Register registers the fixture library and returns its Pipeline.
func (f *Fixture) Register(t testing.TB) *pipeline.Pipeline {
	t.Helper()
	p, err := f.Registrar().Register(context.Background(), LibraryName, f.Lib.Path, f.Orig.Path)
	require.NoError(t, err)
	return p
}

// Scenario returns the stored scenario with sid in project pid 1.
func (f *Fixture) Scenario(t testing.TB, sid int) *model.Scenario {
	t.Helper()
	ctx := context.Background()
	lib, err := f.Store.GetLibraryByName(ctx, LibraryName)
	require.NoError(t, err)
	proj, err := f.Store.FindProject(ctx, lib.ID, 1)
	require.NoError(t, err)
	sc, err := f.Store.FindScenario(ctx, proj.ID, sid)
	require.NoError(t, err)
	return sc
}

// MinimalConfig returns a run configuration carrying every key, with a
// spatial run of two iterations over three timesteps and empty lists.
func MinimalConfig() map[string]any {
	cfg := make(map[string]any)
	for _, c := range contrib.Default().Configs {
		if c.Multi {
			cfg[c.Key] = []any{}
		} else {
			cfg[c.Key] = nil
		}
	}
	cfg["run_control"] = map[string]any{
		"min_iteration": float64(1),
		"max_iteration": float64(2),
		"min_timestep":  float64(0),
		"max_timestep":  float64(3),
		"is_spatial":    true,
	}
	cfg["initial_conditions_nonspatial_settings"] = map[string]any{
		"total_amount":   float64(1000),
		"num_cells":      float64(-1),
		"calc_from_dist": false,
	}
	cfg["initial_conditions_nonspatial_distributions"] = []any{
		map[string]any{"stratum": "A", "stateclass": "Shrubland", "relative_amount": float64(60)},
		map[string]any{"stratum": "B", "stateclass": "Shrubland", "relative_amount": float64(40)},
	}
	return cfg
}
