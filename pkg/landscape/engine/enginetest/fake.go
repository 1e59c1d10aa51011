// Package enginetest provides an in-process stand-in for the ST-Sim console
// that speaks its command line protocol.
package enginetest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Scenario is one scenario of a fake library.
type Scenario struct {
	SID      int
	PID      int
	Name     string
	IsResult bool
	Parent   int
}

type sheetKey struct {
	sheet string
	pid   int
	sid   int
}

// Library is the in-memory content of one library file.
type Library struct {
	Path      string
	Projects  map[int]string
	Scenarios []Scenario
	Datafeeds []string

	sheets map[sheetKey][]byte
}

// Fake implements engine.CommandRunner.
type Fake struct {
	mu        sync.Mutex
	Version   string
	libraries map[string]*Library
	// Reports maps a report name to the CSV it produces for any scenario.
	Reports map[string]string
	// Fail makes the command carrying this flag exit non-zero.
	Fail  map[string]error
	calls [][]string
}

// New returns a fake with no libraries.
func New() *Fake {
	return &Fake{
		Version:   "Version is: 2.10.22",
		libraries: make(map[string]*Library),
		Reports:   make(map[string]string),
		Fail:      make(map[string]error),
	}
}

// AddLibrary creates an empty library file at path and registers it.
func (f *Fake) AddLibrary(path string, datafeeds ...string) (*Library, error) {
	if err := os.WriteFile(path, []byte("fake library\n"), 0o644); err != nil {
		return nil, err
	}
	lib := &Library{
		Path:      path,
		Projects:  make(map[int]string),
		Datafeeds: append([]string(nil), datafeeds...),
		sheets:    make(map[sheetKey][]byte),
	}
	f.mu.Lock()
	f.libraries[path] = lib
	f.mu.Unlock()
	return lib, nil
}

// Lib returns the library registered at path.
func (f *Fake) Lib(path string) *Library {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.libraries[path]
}

// Calls returns every invocation's arguments.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CountCalls counts the invocations that carried flag.
func (f *Fake) CountCalls(flag string) int {
	n := 0
	for _, c := range f.Calls() {
		for _, a := range c {
			if a == flag {
				n++
				break
			}
		}
	}
	return n
}

// AddScenario appends a scenario.
func (l *Library) AddScenario(sc Scenario) {
	l.Scenarios = append(l.Scenarios, sc)
}

// SetProjectSheet stores a project-scoped sheet.
func (l *Library) SetProjectSheet(pid int, sheet string, header []string, rows ...[]string) {
	l.sheets[sheetKey{sheet: sheet, pid: pid}] = encode(header, rows)
}

// SetScenarioSheet stores a scenario-scoped sheet.
func (l *Library) SetScenarioSheet(sid int, sheet string, header []string, rows ...[]string) {
	l.sheets[sheetKey{sheet: sheet, sid: sid}] = encode(header, rows)
}

// ScenarioSheet returns the records of a scenario-scoped sheet, header first.
func (l *Library) ScenarioSheet(sid int, sheet string) [][]string {
	data, ok := l.sheets[sheetKey{sheet: sheet, sid: sid}]
	if !ok {
		return nil
	}
	recs, _ := csv.NewReader(bytes.NewReader(data)).ReadAll()
	return recs
}

// Scenario returns the scenario with sid.
func (l *Library) Scenario(sid int) (Scenario, bool) {
	for _, sc := range l.Scenarios {
		if sc.SID == sid {
			return sc, true
		}
	}
	return Scenario{}, false
}

func encode(header []string, rows [][]string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	_ = w.WriteAll(rows)
	return buf.Bytes()
}

// Run implements engine.CommandRunner. Leading arguments that are not
// flags, such as the executable path behind a launcher, are ignored.
func (f *Fake) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))

	flags := make(map[string]string)
	for _, a := range args {
		if !strings.HasPrefix(a, "--") {
			continue
		}
		k, v, _ := strings.Cut(strings.TrimPrefix(a, "--"), "=")
		flags[k] = v
	}
	for flag, err := range f.Fail {
		if _, ok := flags[strings.TrimPrefix(flag, "--")]; ok {
			return nil, err
		}
	}

	if _, ok := flags["version"]; ok {
		return []byte(f.Version + "\n"), nil
	}
	if _, ok := flags["list-reports"]; ok {
		return f.listReports(), nil
	}
	if _, ok := flags["create-report"]; ok {
		return nil, f.createReport(flags)
	}

	lib, ok := f.libraries[flags["lib"]]
	if !ok {
		return nil, fmt.Errorf("exit status 1: library not found: %s", flags["lib"])
	}
	switch {
	case has(flags, "list") && has(flags, "projects"):
		return lib.listProjects(), nil
	case has(flags, "list") && has(flags, "scenarios"):
		return lib.listScenarios(), nil
	case has(flags, "list") && has(flags, "datafeeds"):
		return lib.listDatafeeds(), nil
	case has(flags, "import"):
		return nil, lib.importSheet(flags)
	case has(flags, "export"):
		return nil, lib.exportSheet(flags)
	case has(flags, "run"):
		return lib.run(flags)
	}
	return nil, fmt.Errorf("exit status 1: unsupported arguments %v", args)
}

func has(flags map[string]string, k string) bool {
	_, ok := flags[k]
	return ok
}

func (f *Fake) listReports() []byte {
	names := make([]string, 0, len(f.Reports))
	for n := range f.Reports {
		names = append(names, n)
	}
	sort.Strings(names)
	return []byte("Report Name\n" + strings.Join(names, "\n") + "\n")
}

func (f *Fake) createReport(flags map[string]string) error {
	content, ok := f.Reports[flags["name"]]
	if !ok {
		return fmt.Errorf("exit status 1: unknown report %s", flags["name"])
	}
	return os.WriteFile(flags["file"], []byte(content), 0o644)
}

func (l *Library) listProjects() []byte {
	pids := make([]int, 0, len(l.Projects))
	for pid := range l.Projects {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	var b strings.Builder
	b.WriteString("Project ID    Name\n")
	for _, pid := range pids {
		fmt.Fprintf(&b, "%d    %s\n", pid, l.Projects[pid])
	}
	return []byte(b.String())
}

func (l *Library) listScenarios() []byte {
	var b strings.Builder
	b.WriteString("Scenario ID    Project ID    Name\n")
	for _, sc := range l.Scenarios {
		if sc.IsResult {
			fmt.Fprintf(&b, "%d    %d    (Y)    %s ([%d] @ 10/19/2026 10:20:30 AM)\n", sc.SID, sc.PID, sc.Name, sc.SID)
			continue
		}
		fmt.Fprintf(&b, "%d    %d    %s\n", sc.SID, sc.PID, sc.Name)
	}
	return []byte(b.String())
}

func (l *Library) listDatafeeds() []byte {
	var b strings.Builder
	b.WriteString("Display Name    Name\n")
	for _, d := range l.Datafeeds {
		fmt.Fprintf(&b, "Datafeed    %s\n", d)
	}
	return []byte(b.String())
}

func (l *Library) key(flags map[string]string) (sheetKey, error) {
	k := sheetKey{sheet: flags["sheet"]}
	if v, ok := flags["pid"]; ok {
		k.pid, _ = strconv.Atoi(v)
		return k, nil
	}
	if v, ok := flags["sid"]; ok {
		k.sid, _ = strconv.Atoi(v)
		return k, nil
	}
	return k, fmt.Errorf("exit status 1: no scope")
}

func (l *Library) importSheet(flags map[string]string) error {
	k, err := l.key(flags)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(flags["file"])
	if err != nil {
		return fmt.Errorf("exit status 1: %w", err)
	}
	l.sheets[k] = data
	return nil
}

func (l *Library) exportSheet(flags map[string]string) error {
	k, err := l.key(flags)
	if err != nil {
		return err
	}
	return os.WriteFile(flags["file"], l.sheets[k], 0o644)
}

func (l *Library) run(flags map[string]string) ([]byte, error) {
	sid, _ := strconv.Atoi(flags["sid"])
	parent, ok := l.Scenario(sid)
	if !ok {
		return nil, fmt.Errorf("exit status 1: scenario %d not found", sid)
	}
	next := 0
	for _, sc := range l.Scenarios {
		if sc.SID > next {
			next = sc.SID
		}
	}
	next++
	l.Scenarios = append(l.Scenarios, Scenario{SID: next, PID: parent.PID, Name: parent.Name, IsResult: true, Parent: sid})
	for k, v := range l.sheets {
		if k.sid == sid {
			l.sheets[sheetKey{sheet: k.sheet, sid: next}] = v
		}
	}
	if err := l.writeRasters(sid, next); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("Running scenario [%d]\nResult scenario ID is: %d\n", sid, next)), nil
}

// writeRasters emits one state class raster per iteration and timestep,
// including timestep zero, when the run control is spatial.
func (l *Library) writeRasters(sid, result int) error {
	recs := l.ScenarioSheet(sid, "STSim_RunControl")
	if len(recs) < 2 {
		return nil
	}
	col := make(map[string]string)
	for i, h := range recs[0] {
		if i < len(recs[1]) {
			col[h] = recs[1][i]
		}
	}
	if col["IsSpatial"] != "Yes" {
		return nil
	}
	minIt, _ := strconv.Atoi(col["MinimumIteration"])
	maxIt, _ := strconv.Atoi(col["MaximumIteration"])
	minTs, _ := strconv.Atoi(col["MinimumTimestep"])
	maxTs, _ := strconv.Atoi(col["MaximumTimestep"])
	dir := filepath.Join(l.Path+".output", fmt.Sprintf("Scenario-%d", result), "Spatial")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for it := minIt; it <= maxIt; it++ {
		for ts := minTs; ts <= maxTs; ts++ {
			name := filepath.Join(dir, fmt.Sprintf("It%04d-Ts%04d-sc.tif", it, ts))
			if err := os.WriteFile(name, []byte("raster"), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}
