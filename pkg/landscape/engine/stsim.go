package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"landscapesim/pkg/batch/util/exception"
	logger "landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/metric"
)

// DefaultConsole is the protocol name of the ST-Sim console.
const DefaultConsole = "stsim"

// Options configures an STSim adapter.
type Options struct {
	Executable      string
	Library         string
	OriginalLibrary string
	Console         string
	Platform        Platform
	TempDir         string
	Runner          CommandRunner
	Metrics         *metric.Metrics
}

// STSim talks to one library through the ST-Sim console. Calls block until
// the spawned process exits.
type STSim struct {
	exe      string
	lib      string
	orig     string
	console  string
	platform Platform
	tempDir  string
	runner   CommandRunner
	metrics  *metric.Metrics
	log      *slog.Logger
	version  string
}

var _ Console = (*STSim)(nil)

// New probes the executable and every configured library, then prepares the
// library's input and output directories.
func New(ctx context.Context, opts Options) (*STSim, error) {
	if opts.Executable == "" {
		return nil, exception.New(exception.KindConfiguration, "engine", "no executable configured", nil)
	}
	if opts.Library == "" {
		return nil, exception.New(exception.KindConfiguration, "engine", "no library configured", nil)
	}
	s := &STSim{
		exe:      opts.Executable,
		lib:      opts.Library,
		orig:     opts.OriginalLibrary,
		console:  opts.Console,
		platform: opts.Platform,
		tempDir:  opts.TempDir,
		runner:   opts.Runner,
		metrics:  opts.Metrics,
		log:      logger.With("component", "engine", "library", opts.Library),
	}
	if s.console == "" {
		s.console = DefaultConsole
	}
	if s.runner == nil {
		s.runner = ExecRunner{}
	}

	lines, err := s.invoke(ctx, "version", "--version")
	if err != nil {
		return nil, exception.Newf(exception.KindConfiguration, "engine", "executable %q is not runnable", s.exe, err)
	}
	if len(lines) > 0 {
		s.version = strings.TrimSpace(lines[len(lines)-1])
	}

	libs := []string{s.lib}
	if s.orig != "" {
		libs = append(libs, s.orig)
	}
	for _, lib := range libs {
		if _, err := os.Stat(lib); err != nil {
			return nil, exception.Newf(exception.KindConfiguration, "engine", "library %q is not accessible", lib, err)
		}
		if _, err := s.invoke(ctx, "list-datafeeds", "--lib="+lib, "--list", "--datafeeds"); err != nil {
			return nil, exception.Newf(exception.KindConfiguration, "engine", "library %q could not be opened", lib, err)
		}
	}

	for _, dir := range []string{s.lib + ".input", s.lib + ".output"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, exception.Newf(exception.KindConfiguration, "engine", "cannot create %s", dir, err)
		}
	}
	s.log.Info("engine ready", "executable", s.exe, "version", s.version, "original", s.orig)
	return s, nil
}

// ProtocolName implements Console.
func (s *STSim) ProtocolName() string { return s.console }

// Library implements Console.
func (s *STSim) Library() string { return s.lib }

// HasOriginal implements Console.
func (s *STSim) HasOriginal() bool { return s.orig != "" }

// Version returns the version string printed by the probe.
func (s *STSim) Version() string { return s.version }

func (s *STSim) libFlag(useOriginal bool) string {
	if useOriginal && s.orig != "" {
		return "--lib=" + s.orig
	}
	return "--lib=" + s.lib
}

func (s *STSim) invoke(ctx context.Context, command string, args ...string) ([]string, error) {
	name, full := s.platform.command(s.exe, args)
	start := time.Now()
	out, err := s.runner.Run(ctx, name, full...)
	s.metrics.ObserveCommand(command, err, time.Since(start))
	if err != nil {
		s.log.Debug("engine command failed", "command", command, "args", full, "error", err)
		return nil, exception.Newf(exception.KindProtocol, "engine", "%s failed", command, err)
	}
	s.log.Debug("engine command", "command", command, "elapsed", time.Since(start))
	return s.platform.lines(out), nil
}

// ListProjects implements Console.
func (s *STSim) ListProjects(ctx context.Context) (map[int]string, error) {
	return s.listProjects(ctx, false)
}

func (s *STSim) listProjects(ctx context.Context, useOriginal bool) (map[int]string, error) {
	lines, err := s.invoke(ctx, "list-projects", s.libFlag(useOriginal), "--list", "--projects")
	if err != nil {
		return nil, err
	}
	return parseProjects(lines), nil
}

// ListScenarioAttrs implements Console.
func (s *STSim) ListScenarioAttrs(ctx context.Context, q ScenarioQuery) ([]ScenarioAttrs, error) {
	lines, err := s.invoke(ctx, "list-scenarios", s.libFlag(q.UseOriginal), "--list", "--scenarios")
	if err != nil {
		return nil, err
	}
	all := parseScenarios(lines)
	if !q.ResultsOnly {
		return all, nil
	}
	results := all[:0]
	for _, a := range all {
		if a.IsResult {
			results = append(results, a)
		}
	}
	return results, nil
}

// ListScenarios implements Console.
func (s *STSim) ListScenarios(ctx context.Context, q ScenarioQuery) ([]int, error) {
	attrs, err := s.ListScenarioAttrs(ctx, q)
	if err != nil {
		return nil, err
	}
	sids := make([]int, len(attrs))
	for i, a := range attrs {
		sids[i] = a.SID
	}
	return sids, nil
}

// ListDatafeeds implements Console.
func (s *STSim) ListDatafeeds(ctx context.Context, useOriginal bool) (map[string]struct{}, error) {
	lines, err := s.invoke(ctx, "list-datafeeds", s.libFlag(useOriginal), "--list", "--datafeeds")
	if err != nil {
		return nil, err
	}
	return parseDatafeeds(lines), nil
}

func (s *STSim) checkSheet(ctx context.Context, sheet string, useOriginal bool) error {
	feeds, err := s.ListDatafeeds(ctx, useOriginal)
	if err != nil {
		return err
	}
	if _, ok := feeds[sheet]; !ok {
		return exception.Newf(exception.KindConfiguration, "engine", "%q is not a datafeed of this library", sheet)
	}
	return nil
}

func (s *STSim) checkScope(ctx context.Context, scope Scope, useOriginal bool) error {
	switch {
	case scope.IsProject():
		projects, err := s.listProjects(ctx, useOriginal)
		if err != nil {
			return err
		}
		if _, ok := projects[scope.ID()]; ok {
			return nil
		}
	case scope.IsScenario():
		sids, err := s.ListScenarios(ctx, ScenarioQuery{UseOriginal: useOriginal})
		if err != nil {
			return err
		}
		if slices.Contains(sids, scope.ID()) {
			return nil
		}
	}
	return invalidScope(scope)
}

// ImportSheet implements Console. The original library is never imported into.
func (s *STSim) ImportSheet(ctx context.Context, sheet, file string, scope Scope, cleanup bool) error {
	if err := s.checkSheet(ctx, sheet, false); err != nil {
		return err
	}
	if err := s.checkScope(ctx, scope, false); err != nil {
		return err
	}
	if _, err := s.invoke(ctx, "import", s.libFlag(false), "--import", "--sheet="+sheet, "--file="+file, scope.flag()); err != nil {
		return err
	}
	if cleanup {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("could not remove imported file", "file", file, "error", err)
		}
	}
	return nil
}

// ExportSheet implements Console.
func (s *STSim) ExportSheet(ctx context.Context, sheet, file string, scope Scope, opts ExportOptions) error {
	if _, err := os.Stat(file); err == nil {
		if !opts.Overwrite {
			return exception.Newf(exception.KindConfiguration, "engine", "export target %s already exists", file)
		}
		if err := os.Remove(file); err != nil {
			return exception.Newf(exception.KindProtocol, "engine", "cannot replace %s", file, err)
		}
	}
	if err := s.checkSheet(ctx, sheet, opts.UseOriginal); err != nil {
		return err
	}
	if err := s.checkScope(ctx, scope, opts.UseOriginal); err != nil {
		return err
	}
	_, err := s.invoke(ctx, "export", s.libFlag(opts.UseOriginal), "--export", "--sheet="+sheet, "--file="+file, scope.flag())
	return err
}

// RunModel implements Console. Result scenarios of either library edition
// cannot be run.
func (s *STSim) RunModel(ctx context.Context, sid int) (int, error) {
	results, err := s.ListScenarios(ctx, ScenarioQuery{ResultsOnly: true})
	if err != nil {
		return 0, err
	}
	if s.orig != "" {
		origResults, err := s.ListScenarios(ctx, ScenarioQuery{ResultsOnly: true, UseOriginal: true})
		if err != nil {
			return 0, err
		}
		results = append(results, origResults...)
	}
	if slices.Contains(results, sid) {
		return 0, exception.Newf(exception.KindScope, "engine", "sid %d is a result scenario", sid, exception.ErrResultScenarioImmutable)
	}
	if err := s.checkScope(ctx, ScenarioScope(sid), false); err != nil {
		return 0, err
	}
	s.log.Info("running scenario", "sid", sid)
	lines, err := s.invoke(ctx, "run", s.libFlag(false), "--run", "--sid="+strconv.Itoa(sid))
	if err != nil {
		return 0, err
	}
	return parseRunResult(lines)
}

// ListReports implements Console.
func (s *STSim) ListReports(ctx context.Context) (map[string]struct{}, error) {
	lines, err := s.invoke(ctx, "list-reports", "--console="+s.console, "--list-reports")
	if err != nil {
		return nil, err
	}
	return parseReports(lines), nil
}

// GenerateReport implements Console.
func (s *STSim) GenerateReport(ctx context.Context, name, outPath string, sid int) error {
	reports, err := s.ListReports(ctx)
	if err != nil {
		return err
	}
	if _, ok := reports[name]; !ok {
		return exception.Newf(exception.KindConfiguration, "engine", "%q is not a report of console %s", name, s.console)
	}
	sids, err := s.ListScenarios(ctx, ScenarioQuery{})
	if err != nil {
		return err
	}
	if !slices.Contains(sids, sid) {
		return exception.Newf(exception.KindScope, "engine", "report %s: sid %d does not exist", name, sid, exception.ErrInvalidScope)
	}
	_, err = s.invoke(ctx, "create-report", "--console="+s.console, "--create-report",
		"--name="+name, "--file="+outPath, s.libFlag(false), "--sids="+strconv.Itoa(sid))
	return err
}

// TempCSVPath returns a fresh path next to the library (or in TempDir).
func (s *STSim) TempCSVPath() string {
	dir := s.tempDir
	if dir == "" {
		dir = filepath.Dir(s.lib)
	}
	return filepath.Join(dir, filepath.Base(s.lib)+".temp-"+uuid.NewString()+".csv")
}

// InputDir returns, creating it, the spatial input directory of one sheet.
func (s *STSim) InputDir(sid int, sheet string) (string, error) {
	dir := filepath.Join(s.lib+".input", scenarioDir(sid), sheet)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", exception.Newf(exception.KindProtocol, "engine", "cannot create %s", dir, err)
	}
	return dir, nil
}

// OutputDir returns the output directory of a result scenario.
func (s *STSim) OutputDir(sid int) string {
	return filepath.Join(s.lib+".output", scenarioDir(sid))
}

// SpatialOutputDir returns the raster output directory of a result scenario.
func (s *STSim) SpatialOutputDir(sid int) string {
	return filepath.Join(s.OutputDir(sid), "Spatial")
}

// OutputScenarioSIDs lists the sids that have an output directory, ascending.
func (s *STSim) OutputScenarioSIDs() ([]int, error) {
	return ScenarioDirSIDs(s.lib + ".output")
}

// ScenarioDirSIDs lists the sids of the Scenario-<sid> directories under root.
func ScenarioDirSIDs(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.Newf(exception.KindProtocol, "engine", "cannot list %s", root, err)
	}
	var sids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		suffix, ok := strings.CutPrefix(e.Name(), "Scenario-")
		if !ok {
			continue
		}
		if sid, err := strconv.Atoi(suffix); err == nil {
			sids = append(sids, sid)
		}
	}
	sort.Ints(sids)
	return sids, nil
}

func scenarioDir(sid int) string {
	return "Scenario-" + strconv.Itoa(sid)
}
