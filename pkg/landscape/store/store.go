// Package store persists libraries, projects, scenarios, sheet records,
// report containers and async jobs.
package store

import (
	"context"
	"strings"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/model"
)

const module = "store"

// RecordFilter selects records. Zero fields do not filter.
type RecordFilter struct {
	Kind       model.Kind
	ProjectID  int64
	ScenarioID int64
	ReportID   int64
}

// Store is the persistence collaborator of the pipeline and the job runner.
type Store interface {
	CreateLibrary(ctx context.Context, lib *model.Library) error
	GetLibraryByName(ctx context.Context, name string) (*model.Library, error)
	ListLibraries(ctx context.Context) ([]model.Library, error)
	MarkLibraryImported(ctx context.Context, id int64) error

	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	FindProject(ctx context.Context, libraryID int64, pid int) (*model.Project, error)
	ListProjects(ctx context.Context, libraryID int64) ([]model.Project, error)

	// GetOrCreateScenario returns the scenario keyed by (ProjectID, SID),
	// creating it from sc when absent. sc is updated in place.
	GetOrCreateScenario(ctx context.Context, sc *model.Scenario) (created bool, err error)
	GetScenario(ctx context.Context, id int64) (*model.Scenario, error)
	FindScenario(ctx context.Context, projectID int64, sid int) (*model.Scenario, error)
	ListScenarios(ctx context.Context, projectID int64) ([]model.Scenario, error)

	// CreateRecords inserts all records atomically and sets their IDs.
	CreateRecords(ctx context.Context, recs []*model.Record) error
	// ReplaceScenarioRecords deletes the scenario's records of kind, then
	// inserts recs, atomically.
	ReplaceScenarioRecords(ctx context.Context, scenarioID int64, kind model.Kind, recs []*model.Record) error
	// ReplaceDefinitions stores recs as the project's definitions of kind,
	// atomically. A record named like an existing definition takes over its
	// id so references to it stay valid. Unnamed definitions are replaced
	// outright; named ones absent from recs are kept.
	ReplaceDefinitions(ctx context.Context, projectID int64, kind model.Kind, recs []*model.Record) error
	GetRecord(ctx context.Context, id int64) (*model.Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]model.Record, error)
	FindDefinitions(ctx context.Context, projectID int64, kind model.Kind, name string) ([]model.Record, error)

	// ReplaceReportRecords gets or creates the container of kind for the
	// scenario and replaces its records with recs, atomically.
	ReplaceReportRecords(ctx context.Context, scenarioID int64, kind string, recs []*model.Record) (*model.Report, bool, error)
	ListReports(ctx context.Context, scenarioID int64) ([]model.Report, error)

	CreateJob(ctx context.Context, job *model.AsyncJob) error
	UpdateJob(ctx context.Context, job *model.AsyncJob) error
	GetJob(ctx context.Context, uuid string) (*model.AsyncJob, error)
	// ListJobs returns the jobs of one library, newest first.
	ListJobs(ctx context.Context, libraryName string) ([]model.AsyncJob, error)

	Close() error
}

// New returns a memory store for the memory database type and a SQL store
// over conn otherwise.
func New(cfg config.DatabaseConfig, conn database.DBConnection) Store {
	if strings.EqualFold(cfg.Type, "memory") || conn == nil {
		logger.Debugf("using in-memory store")
		return NewMemoryStore()
	}
	logger.Debugf("using SQL store (%s)", conn.Dialect())
	return NewSQLStore(conn)
}

func notFound(what string) error {
	return exception.NewBatchError(module, what, exception.ErrNotFound, false, false)
}

// ScenariosOfLibrary lists every scenario across the library's projects.
func ScenariosOfLibrary(ctx context.Context, s Store, libraryID int64) ([]model.Scenario, error) {
	projects, err := s.ListProjects(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	var out []model.Scenario
	for _, p := range projects {
		scs, err := s.ListScenarios(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, scs...)
	}
	return out, nil
}
