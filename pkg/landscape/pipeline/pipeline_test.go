package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/contrib"
	"landscapesim/pkg/landscape/engine/enginetest"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/pipeline/pipelinetest"
	"landscapesim/pkg/landscape/sheet"
	"landscapesim/pkg/landscape/store"
)

func records(t *testing.T, s store.Store, f store.RecordFilter) []model.Record {
	t.Helper()
	recs, err := s.ListRecords(context.Background(), f)
	require.NoError(t, err)
	return recs
}

func tempCSVs(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.temp-*.csv"))
	require.NoError(t, err)
	return matches
}

func TestRegisterImportsDefinitionsAndValues(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	ctx := context.Background()

	lib, err := f.Store.GetLibraryByName(ctx, pipelinetest.LibraryName)
	require.NoError(t, err)
	assert.Equal(t, p.Library().ID, lib.ID)
	proj, err := f.Store.FindProject(ctx, lib.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Castle Valley", proj.Name)

	strata := records(t, f.Store, store.RecordFilter{Kind: model.KindStratum, ProjectID: proj.ID})
	assert.Len(t, strata, 2)
	assert.Len(t, records(t, f.Store, store.RecordFilter{Kind: model.KindStateClass, ProjectID: proj.ID}), 1)

	groups := records(t, f.Store, store.RecordFilter{Kind: model.KindTransitionTypeGroup, ProjectID: proj.ID})
	require.Len(t, groups, 1)
	fire, err := f.Store.FindDefinitions(ctx, proj.ID, model.KindTransitionType, "Fire")
	require.NoError(t, err)
	require.Len(t, fire, 1)
	typeID, ok := groups[0].Int("transition_type")
	require.True(t, ok)
	assert.Equal(t, fire[0].ID, typeID)
	assert.Equal(t, true, groups[0].Fields["is_primary"])

	sc := f.Scenario(t, 10)
	assert.False(t, sc.IsResult)
	rc := records(t, f.Store, store.RecordFilter{Kind: model.KindRunControl, ScenarioID: sc.ID})
	require.Len(t, rc, 1)
	maxTs, _ := rc[0].Int("max_timestep")
	assert.Equal(t, int64(10), maxTs)

	// Baseline values come from the original library.
	for _, c := range f.Fake.Calls() {
		joined := strings.Join(c, " ")
		if strings.Contains(joined, "--export") && strings.Contains(joined, "--sid=10") {
			assert.Contains(t, joined, "--lib="+f.Orig.Path)
		}
	}
	assert.Empty(t, tempCSVs(t, f.Dir))
}

func TestRegisterTwiceIsRejected(t *testing.T) {
	f := pipelinetest.New(t)
	f.Register(t)
	_, err := f.Registrar().Register(context.Background(), pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	assert.True(t, exception.IsKind(err, exception.KindValidation))

	p, err := f.Registrar().Open(context.Background(), pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.NoError(t, err)
	assert.Equal(t, pipelinetest.LibraryName, p.Library().Name)
}

func TestRegisterFreezesMissingOriginal(t *testing.T) {
	f := pipelinetest.New(t)
	frozen := filepath.Join(f.Dir, "frozen.ssim")
	_, err := f.Registrar().Register(context.Background(), "frozen", f.Lib.Path, frozen)
	// The copy is not a library the fake knows, so opening it fails, but
	// only after the copy was made.
	require.Error(t, err)
	assert.FileExists(t, frozen)
}

func TestDefinitionOrderIsEnforcedByLookups(t *testing.T) {
	f := pipelinetest.New(t)
	defs := sheet.DefinitionSheets()
	var reordered []sheet.Descriptor
	for _, d := range defs {
		if d.Kind == model.KindTransitionTypeGroup {
			reordered = append([]sheet.Descriptor{d}, reordered...)
			continue
		}
		reordered = append(reordered, d)
	}
	require.NoError(t, f.Bundles.Register(contrib.Bundle{Name: "reordered", Definitions: reordered}))
	require.NoError(t, f.Bundles.Assign(pipelinetest.LibraryName, "reordered"))

	_, err := f.Registrar().Register(context.Background(), pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindIntegrity), "got %v", err)

	// Nothing after the failing step ran.
	lib, lerr := f.Store.GetLibraryByName(context.Background(), pipelinetest.LibraryName)
	require.NoError(t, lerr)
	proj, perr := f.Store.FindProject(context.Background(), lib.ID, 1)
	require.NoError(t, perr)
	assert.Empty(t, records(t, f.Store, store.RecordFilter{Kind: model.KindStratum, ProjectID: proj.ID}))
}

func TestImportConfigRejectsResultScenarioWithoutEngineCalls(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	before := len(f.Fake.Calls())

	result := &model.Scenario{ID: 99, ProjectID: 1, SID: 5, IsResult: true}
	err := p.ImportConfig(context.Background(), result, pipelinetest.MinimalConfig())
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindScope))
	assert.True(t, errors.Is(err, exception.ErrResultScenarioImmutable))
	assert.Len(t, f.Fake.Calls(), before)
}

func TestImportConfigComposesSheets(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	sc := f.Scenario(t, 10)
	outputOptionCalls := f.Fake.CountCalls("--sheet=STSim_OutputOptions")

	require.NoError(t, p.ImportConfig(context.Background(), sc, pipelinetest.MinimalConfig()))

	rc := f.Lib.ScenarioSheet(10, "STSim_RunControl")
	require.Len(t, rc, 2)
	assert.Equal(t, []string{"MinimumIteration", "MaximumIteration", "MinimumTimestep", "MaximumTimestep", "IsSpatial"}, rc[0])
	assert.Equal(t, []string{"1", "2", "0", "3", "Yes"}, rc[1])

	ic := f.Lib.ScenarioSheet(10, "STSim_InitialConditionsNonSpatialDistribution")
	require.Len(t, ic, 3)
	assert.Equal(t, "A", ic[1][0])
	assert.Equal(t, "", ic[1][1], "blank secondary stratum")
	assert.Equal(t, "60", ic[1][3])

	cleared := map[string]bool{}
	for _, c := range f.Cleaner.Calls() {
		assert.Equal(t, 10, c.SID)
		assert.Equal(t, f.Lib.Path, c.Library)
		cleared[c.Sheet] = true
	}
	assert.True(t, cleared["STSim_Transition"])
	assert.False(t, cleared["STSim_InitialConditionsNonSpatialDistribution"])
	assert.Equal(t, outputOptionCalls, f.Fake.CountCalls("--sheet=STSim_OutputOptions"), "absent single-row sheet is skipped")
	assert.Empty(t, tempCSVs(t, f.Dir))
}

func TestImportConfigRejectsMalformedPayload(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	cfg := pipelinetest.MinimalConfig()
	cfg["transitions"] = map[string]any{"probability": 1}
	err := p.ImportConfig(context.Background(), f.Scenario(t, 10), cfg)
	assert.True(t, exception.IsKind(err, exception.KindValidation))
}

func TestImportValuesSupersedes(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	sc := f.Scenario(t, 10)
	ctx := context.Background()

	require.NoError(t, p.ImportValues(ctx, sc))
	assert.Len(t, records(t, f.Store, store.RecordFilter{Kind: model.KindRunControl, ScenarioID: sc.ID}), 1)

	f.Orig.SetScenarioSheet(10, "STSim_RunControl",
		[]string{"MinimumIteration", "MaximumIteration", "MinimumTimestep", "MaximumTimestep", "IsSpatial"})
	require.NoError(t, p.ImportValues(ctx, sc))
	assert.Empty(t, records(t, f.Store, store.RecordFilter{Kind: model.KindRunControl, ScenarioID: sc.ID}))
}

func chunkedRegistrar(f *pipelinetest.Fixture, size int) *pipeline.Registrar {
	opts := f.Options()
	opts.ChunkSize = size
	return pipeline.NewRegistrar(f.Open, opts, f.Bundles)
}

var distributionHeader = []string{"StratumID", "SecondaryStratumID", "StateClassID", "RelativeAmount", "AgeMin", "AgeMax"}

func TestFailedValueSheetKeepsEarlierRows(t *testing.T) {
	f := pipelinetest.New(t)
	f.Orig.SetScenarioSheet(10, "STSim_InitialConditionsNonSpatialDistribution", distributionHeader,
		[]string{"A", "", "Shrubland", "50", "", ""},
		[]string{"B", "", "Shrubland", "30", "", ""},
		[]string{"A", "", "Shrubland", "20", "", ""})
	ctx := context.Background()
	p, err := chunkedRegistrar(f, 2).Register(ctx, pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.NoError(t, err)
	sc := f.Scenario(t, 10)
	filter := store.RecordFilter{Kind: model.KindInitialConditionsNonSpatialDistribution, ScenarioID: sc.ID}
	before := records(t, f.Store, filter)
	require.Len(t, before, 3)

	f.Orig.SetScenarioSheet(10, "STSim_InitialConditionsNonSpatialDistribution", distributionHeader,
		[]string{"A", "", "Shrubland", "99", "", ""},
		[]string{"B", "", "Shrubland", "99", "", ""},
		[]string{"C", "", "Shrubland", "99", "", ""})
	err = p.ImportValues(ctx, sc)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindIntegrity), "got %v", err)

	after := records(t, f.Store, filter)
	assert.Equal(t, before, after)
}

func TestFailedReportLeavesNoContainer(t *testing.T) {
	f := pipelinetest.New(t)
	f.Fake.Reports["stateclass-summary"] = "Iteration,Timestep,Stratum,SecondaryStratum,StateClass,Amount,ProportionOfLandscape,ProportionOfStratumType\n" +
		"1,0,A,,Shrubland,60,0.6,1\n" +
		"1,0,B,,Shrubland,30,0.3,1\n" +
		"1,0,C,,Shrubland,10,0.1,1\n"
	ctx := context.Background()
	p, err := chunkedRegistrar(f, 2).Register(ctx, pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.NoError(t, err)
	sc := f.Scenario(t, 10)

	require.Error(t, p.ImportReports(ctx, sc))
	reports, err := f.Store.ListReports(ctx, sc.ID)
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, records(t, f.Store, store.RecordFilter{Kind: model.KindStateClassSummaryRow, ScenarioID: sc.ID}))
}

func TestImportDefinitionsAgainKeepsNamesUnique(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	ctx := context.Background()
	sc := f.Scenario(t, 10)
	proj, err := f.Store.GetProject(ctx, sc.ProjectID)
	require.NoError(t, err)
	fire, err := f.Store.FindDefinitions(ctx, proj.ID, model.KindTransitionType, "Fire")
	require.NoError(t, err)
	require.Len(t, fire, 1)

	f.Lib.SetProjectSheet(1, "STSim_Stratum", []string{"Name", "Description", "Color"},
		[]string{"A", "Upland", "255,0,0,255"}, []string{"B", "Riparian", "0,0,255,255"})
	require.NoError(t, p.ImportDefinitions(ctx, proj))

	again, err := f.Store.FindDefinitions(ctx, proj.ID, model.KindTransitionType, "Fire")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, fire[0].ID, again[0].ID)
	assert.Len(t, records(t, f.Store, store.RecordFilter{Kind: model.KindTransitionTypeGroup, ProjectID: proj.ID}), 1)

	b, err := f.Store.FindDefinitions(ctx, proj.ID, model.KindStratum, "B")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "Riparian", b[0].Fields["description"])

	// References imported before still resolve.
	require.NoError(t, p.ImportValues(ctx, sc))
}

func TestOpenResumesFailedImport(t *testing.T) {
	f := pipelinetest.New(t)
	ctx := context.Background()
	f.Lib.SetProjectSheet(1, "STSim_TransitionTypeGroup", []string{"TransitionTypeID", "TransitionGroupID", "IsPrimary"},
		[]string{"Flood", "Fire Group", "Yes"})
	f.Orig.SetProjectSheet(1, "STSim_TransitionTypeGroup", []string{"TransitionTypeID", "TransitionGroupID", "IsPrimary"},
		[]string{"Flood", "Fire Group", "Yes"})
	_, err := f.Registrar().Register(ctx, pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.Error(t, err)
	lib, err := f.Store.GetLibraryByName(ctx, pipelinetest.LibraryName)
	require.NoError(t, err)
	assert.False(t, lib.Imported)

	for _, l := range []*enginetest.Library{f.Lib, f.Orig} {
		l.SetProjectSheet(1, "STSim_TransitionTypeGroup", []string{"TransitionTypeID", "TransitionGroupID", "IsPrimary"},
			[]string{"Fire", "Fire Group", "Yes"})
	}
	p, err := f.Registrar().Open(ctx, pipelinetest.LibraryName, f.Lib.Path, f.Orig.Path)
	require.NoError(t, err)
	assert.True(t, p.Library().Imported)

	projects, err := f.Store.ListProjects(ctx, lib.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	strata := records(t, f.Store, store.RecordFilter{Kind: model.KindStratum, ProjectID: projects[0].ID})
	assert.Len(t, strata, 2)
	sc := f.Scenario(t, 10)
	assert.Len(t, records(t, f.Store, store.RecordFilter{Kind: model.KindRunControl, ScenarioID: sc.ID}), 1)

	lib, err = f.Store.GetLibraryByName(ctx, pipelinetest.LibraryName)
	require.NoError(t, err)
	assert.True(t, lib.Imported)
}

func TestImportReportsIsIdempotentPerContainer(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	sc := f.Scenario(t, 10)
	ctx := context.Background()

	require.NoError(t, p.ImportReports(ctx, sc))
	first, err := f.Store.ListReports(ctx, sc.ID)
	require.NoError(t, err)
	assert.Len(t, first, len(sheet.ReportSheets()))

	require.NoError(t, p.ImportReports(ctx, sc))
	second, err := f.Store.ListReports(ctx, sc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, first, second)

	var summary model.Report
	for _, r := range second {
		if r.Kind == "stateclass-summary" {
			summary = r
		}
	}
	rows := records(t, f.Store, store.RecordFilter{ReportID: summary.ID})
	assert.Len(t, rows, 2, "a second import replaces the container's rows")
	amount, ok := model.AsFloat(rows[0].Fields["amount"])
	require.True(t, ok)
	assert.Contains(t, []float64{60, 40}, amount)
}

func TestImportValuesPublishesSpatialInputs(t *testing.T) {
	f := pipelinetest.New(t)
	p := f.Register(t)
	sc := f.Scenario(t, 10)

	dir, err := p.Console().InputDir(10, "STSim_InitialConditionsSpatial")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ic-sc.tif"), []byte("tif"), 0o644))

	require.NoError(t, p.ImportValues(context.Background(), sc))
	_, err = f.Blobs.Head(context.Background(), "castle/scenario-10/inputs/ic-sc.tif")
	assert.NoError(t, err)
}

func TestNewDefaults(t *testing.T) {
	f := pipelinetest.New(t)
	p := pipeline.New(&model.Library{Name: "x"}, nil, pipeline.Options{Store: f.Store})
	assert.Equal(t, contrib.DefaultBundle, p.Bundle().Name)
	assert.NotNil(t, p.Repository())
	assert.Nil(t, p.Publisher())
}
