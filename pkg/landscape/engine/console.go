// Package engine drives the external simulation console through its
// command line protocol.
package engine

import (
	"context"
	"strconv"

	"landscapesim/pkg/batch/util/exception"
)

// Console is the typed surface of one engine library.
type Console interface {
	// ProtocolName is the value passed as --console= to report commands.
	ProtocolName() string
	// Library returns the working library path.
	Library() string
	// HasOriginal reports whether a read-only original library is configured.
	HasOriginal() bool

	ListProjects(ctx context.Context) (map[int]string, error)
	ListScenarios(ctx context.Context, q ScenarioQuery) ([]int, error)
	ListScenarioAttrs(ctx context.Context, q ScenarioQuery) ([]ScenarioAttrs, error)
	ListDatafeeds(ctx context.Context, useOriginal bool) (map[string]struct{}, error)

	ImportSheet(ctx context.Context, sheet, file string, scope Scope, cleanup bool) error
	ExportSheet(ctx context.Context, sheet, file string, scope Scope, opts ExportOptions) error

	RunModel(ctx context.Context, sid int) (int, error)

	ListReports(ctx context.Context) (map[string]struct{}, error)
	GenerateReport(ctx context.Context, name, outPath string, sid int) error

	TempCSVPath() string
	InputDir(sid int, sheet string) (string, error)
	OutputDir(sid int) string
	SpatialOutputDir(sid int) string
	OutputScenarioSIDs() ([]int, error)
}

// ScenarioQuery filters scenario listings.
type ScenarioQuery struct {
	ResultsOnly bool
	UseOriginal bool
}

// ScenarioAttrs is one parsed scenario listing line.
type ScenarioAttrs struct {
	SID      int
	PID      int
	Name     string
	IsResult bool
}

// ExportOptions controls ExportSheet.
type ExportOptions struct {
	Overwrite   bool
	UseOriginal bool
}

type scopeKind int

const (
	scopeNone scopeKind = iota
	scopeProject
	scopeScenario
)

// Scope targets a sheet transfer at one project or one scenario.
type Scope struct {
	kind scopeKind
	id   int
}

// ProjectScope targets project pid.
func ProjectScope(pid int) Scope {
	return Scope{kind: scopeProject, id: pid}
}

// ScenarioScope targets scenario sid.
func ScenarioScope(sid int) Scope {
	return Scope{kind: scopeScenario, id: sid}
}

// IsProject reports whether s targets a project.
func (s Scope) IsProject() bool { return s.kind == scopeProject }

// IsScenario reports whether s targets a scenario.
func (s Scope) IsScenario() bool { return s.kind == scopeScenario }

// ID returns the pid or sid.
func (s Scope) ID() int { return s.id }

func (s Scope) flag() string {
	if s.kind == scopeProject {
		return "--pid=" + strconv.Itoa(s.id)
	}
	return "--sid=" + strconv.Itoa(s.id)
}

func (s Scope) String() string {
	switch s.kind {
	case scopeProject:
		return "pid " + strconv.Itoa(s.id)
	case scopeScenario:
		return "sid " + strconv.Itoa(s.id)
	default:
		return "no scope"
	}
}

func invalidScope(s Scope) error {
	return exception.Newf(exception.KindScope, "engine", "%s does not identify a project or scenario", s, exception.ErrInvalidScope)
}
