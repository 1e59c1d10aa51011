package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/engine/enginetest"
)

type fixture struct {
	fake *enginetest.Fake
	lib  *enginetest.Library
	orig *enginetest.Library
	st   *engine.STSim
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	fake := enginetest.New()
	feeds := []string{"STSim_Stratum", "STSim_RunControl"}
	lib, err := fake.AddLibrary(filepath.Join(dir, "castle.ssim"), feeds...)
	require.NoError(t, err)
	orig, err := fake.AddLibrary(filepath.Join(dir, "castle.orig.ssim"), feeds...)
	require.NoError(t, err)
	for _, l := range []*enginetest.Library{lib, orig} {
		l.Projects[1] = "Castle Valley"
		l.AddScenario(enginetest.Scenario{SID: 10, PID: 1, Name: "Baseline"})
	}
	orig.AddScenario(enginetest.Scenario{SID: 5, PID: 1, Name: "Old run", IsResult: true})

	st, err := engine.New(context.Background(), engine.Options{
		Executable:      "SyncroSim.Console.exe",
		Library:         lib.Path,
		OriginalLibrary: orig.Path,
		Platform:        engine.PosixPlatform("mono"),
		Runner:          fake,
	})
	require.NoError(t, err)
	return fixture{fake: fake, lib: lib, orig: orig, st: st}
}

func TestNew_ProbesAndLayout(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "stsim", f.st.ProtocolName())
	assert.Equal(t, "Version is: 2.10.22", f.st.Version())
	assert.DirExists(t, f.lib.Path+".input")
	assert.DirExists(t, f.lib.Path+".output")
	assert.Equal(t, 1, f.fake.CountCalls("--version"))
	assert.Equal(t, 2, f.fake.CountCalls("--datafeeds"))

	// The launcher prefix puts the executable first.
	assert.Equal(t, "SyncroSim.Console.exe", f.fake.Calls()[0][0])
}

func TestNew_BadExecutable(t *testing.T) {
	fake := enginetest.New()
	fake.Fail["--version"] = errors.New("exec: not found")
	_, err := engine.New(context.Background(), engine.Options{
		Executable: "/missing/console",
		Library:    filepath.Join(t.TempDir(), "x.ssim"),
		Runner:     fake,
	})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
	assert.Contains(t, err.Error(), "/missing/console")
}

func TestNew_BadLibrary(t *testing.T) {
	_, err := engine.New(context.Background(), engine.Options{
		Executable: "console",
		Library:    filepath.Join(t.TempDir(), "nope.ssim"),
		Runner:     enginetest.New(),
	})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
	assert.Contains(t, err.Error(), "nope.ssim")
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	projects, err := f.st.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "Castle Valley"}, projects)

	sids, err := f.st.ListScenarios(ctx, engine.ScenarioQuery{UseOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 5}, sids)

	results, err := f.st.ListScenarios(ctx, engine.ScenarioQuery{ResultsOnly: true, UseOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, []int{5}, results)

	attrs, err := f.st.ListScenarioAttrs(ctx, engine.ScenarioQuery{ResultsOnly: true, UseOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, []engine.ScenarioAttrs{{SID: 5, PID: 1, Name: "Old run", IsResult: true}}, attrs)
}

func TestImportSheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "strata.csv")
	require.NoError(t, os.WriteFile(file, []byte("Name\nA\n"), 0o644))

	err := f.st.ImportSheet(ctx, "STSim_Unknown", file, engine.ProjectScope(1), true)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))

	err = f.st.ImportSheet(ctx, "STSim_Stratum", file, engine.ProjectScope(9), true)
	assert.True(t, exception.IsKind(err, exception.KindScope))
	assert.ErrorIs(t, err, exception.ErrInvalidScope)

	err = f.st.ImportSheet(ctx, "STSim_Stratum", file, engine.Scope{}, true)
	assert.ErrorIs(t, err, exception.ErrInvalidScope)
	assert.Equal(t, 0, f.fake.CountCalls("--import"))

	require.NoError(t, f.st.ImportSheet(ctx, "STSim_Stratum", file, engine.ProjectScope(1), true))
	assert.Equal(t, 1, f.fake.CountCalls("--import"))
	assert.NoFileExists(t, file)
	// The original library is never imported into.
	for _, c := range f.fake.Calls() {
		if c[len(c)-1] == "--pid=1" && c[2] == "--import" {
			assert.Equal(t, "--lib="+f.lib.Path, c[1])
		}
	}
}

func TestExportSheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orig.SetScenarioSheet(10, "STSim_RunControl", []string{"MaximumIteration"}, []string{"3"})
	file := filepath.Join(t.TempDir(), "rc.csv")

	require.NoError(t, f.st.ExportSheet(ctx, "STSim_RunControl", file, engine.ScenarioScope(10), engine.ExportOptions{UseOriginal: true}))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "MaximumIteration\n3\n", string(data))

	err = f.st.ExportSheet(ctx, "STSim_RunControl", file, engine.ScenarioScope(10), engine.ExportOptions{})
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))

	require.NoError(t, f.st.ExportSheet(ctx, "STSim_RunControl", file, engine.ScenarioScope(10), engine.ExportOptions{Overwrite: true}))
	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRunModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.st.RunModel(ctx, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrResultScenarioImmutable)
	assert.Equal(t, 0, f.fake.CountCalls("--run"))

	_, err = f.st.RunModel(ctx, 99)
	assert.ErrorIs(t, err, exception.ErrInvalidScope)

	sid, err := f.st.RunModel(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, sid)
	sc, ok := f.lib.Scenario(11)
	require.True(t, ok)
	assert.True(t, sc.IsResult)
	assert.Equal(t, 10, sc.Parent)
}

func TestRunModel_ProcessFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.Fail["--run"] = errors.New("exit status 3")
	_, err := f.st.RunModel(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindProtocol))
}

func TestGenerateReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.Reports["stateclass-summary"] = "Iteration,Timestep\n1,0\n"
	out := filepath.Join(t.TempDir(), "report.csv")

	err := f.st.GenerateReport(ctx, "no-such-report", out, 10)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))

	err = f.st.GenerateReport(ctx, "stateclass-summary", out, 77)
	assert.True(t, exception.IsKind(err, exception.KindScope))
	assert.Equal(t, 0, f.fake.CountCalls("--create-report"))

	require.NoError(t, f.st.GenerateReport(ctx, "stateclass-summary", out, 10))
	assert.FileExists(t, out)
}

func TestLayout(t *testing.T) {
	f := newFixture(t)
	dir, err := f.st.InputDir(10, "STSim_InitialConditionsSpatial")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.lib.Path+".input", "Scenario-10", "STSim_InitialConditionsSpatial"), dir)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(f.lib.Path+".output", "Scenario-11", "Spatial"), f.st.SpatialOutputDir(11))

	a, b := f.st.TempCSVPath(), f.st.TempCSVPath()
	assert.NotEqual(t, a, b)
	assert.Equal(t, filepath.Dir(f.lib.Path), filepath.Dir(a))

	require.NoError(t, os.MkdirAll(f.st.OutputDir(12), 0o755))
	require.NoError(t, os.MkdirAll(f.st.OutputDir(3), 0o755))
	sids, err := f.st.OutputScenarioSIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 12}, sids)
}
