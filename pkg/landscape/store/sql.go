package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"landscapesim/pkg/batch/database"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/serialization"
	"landscapesim/pkg/landscape/model"
)

// SQLStore persists to the tables created by the landscape_store migration.
type SQLStore struct {
	db database.DBConnection
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a store over db.
func NewSQLStore(db database.DBConnection) *SQLStore {
	return &SQLStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) q(query string) string {
	return s.db.Dialect().Rebind(query)
}

func (s *SQLStore) insert(ctx context.Context, ex execer, query string, args ...any) (int64, error) {
	if s.db.Dialect().SupportsReturning() {
		var id int64
		err := ex.QueryRowContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := ex.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func wrap(msg string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(msg)
	}
	return exception.NewBatchError(module, msg, err, false, false)
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func (s *SQLStore) CreateLibrary(ctx context.Context, lib *model.Library) error {
	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = time.Now()
	}
	id, err := s.insert(ctx, s.db, `INSERT INTO libraries (name, file, original_file, imported, created_at) VALUES (?, ?, ?, ?, ?)`,
		lib.Name, lib.File, lib.OriginalFile, lib.Imported, lib.CreatedAt.UnixNano())
	if err != nil {
		return wrap("failed to create library "+lib.Name, err)
	}
	lib.ID = id
	return nil
}

const libraryColumns = `id, name, file, original_file, imported, created_at`

func scanLibrary(r rowScanner) (*model.Library, error) {
	var (
		l       model.Library
		created int64
	)
	if err := r.Scan(&l.ID, &l.Name, &l.File, &l.OriginalFile, &l.Imported, &created); err != nil {
		return nil, err
	}
	l.CreatedAt = time.Unix(0, created)
	return &l, nil
}

func (s *SQLStore) GetLibraryByName(ctx context.Context, name string) (*model.Library, error) {
	l, err := scanLibrary(s.db.QueryRowContext(ctx, s.q(`SELECT `+libraryColumns+` FROM libraries WHERE name = ?`), name))
	if err != nil {
		return nil, wrap("library "+name, err)
	}
	return l, nil
}

func (s *SQLStore) ListLibraries(ctx context.Context) ([]model.Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY id`)
	if err != nil {
		return nil, wrap("failed to list libraries", err)
	}
	defer rows.Close()
	var out []model.Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, wrap("failed to scan library", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkLibraryImported(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE libraries SET imported = ? WHERE id = ?`), true, id); err != nil {
		return wrap("failed to mark library imported", err)
	}
	return nil
}

func (s *SQLStore) CreateProject(ctx context.Context, p *model.Project) error {
	id, err := s.insert(ctx, s.db, `INSERT INTO projects (library_id, pid, name) VALUES (?, ?, ?)`, p.LibraryID, p.PID, p.Name)
	if err != nil {
		return wrap("failed to create project", err)
	}
	p.ID = id
	return nil
}

const projectColumns = `id, library_id, pid, name`

func scanProject(r rowScanner) (*model.Project, error) {
	var p model.Project
	if err := r.Scan(&p.ID, &p.LibraryID, &p.PID, &p.Name); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id))
	if err != nil {
		return nil, wrap("project", err)
	}
	return p, nil
}

func (s *SQLStore) FindProject(ctx context.Context, libraryID int64, pid int) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+projectColumns+` FROM projects WHERE library_id = ? AND pid = ?`), libraryID, pid))
	if err != nil {
		return nil, wrap("project", err)
	}
	return p, nil
}

func (s *SQLStore) ListProjects(ctx context.Context, libraryID int64) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE library_id = ? ORDER BY pid`), libraryID)
	if err != nil {
		return nil, wrap("failed to list projects", err)
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, wrap("failed to scan project", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const scenarioColumns = `id, project_id, sid, name, is_result, parent_id`

func scanScenario(r rowScanner) (*model.Scenario, error) {
	var (
		sc     model.Scenario
		parent sql.NullInt64
	)
	if err := r.Scan(&sc.ID, &sc.ProjectID, &sc.SID, &sc.Name, &sc.IsResult, &parent); err != nil {
		return nil, err
	}
	sc.ParentID = nullInt(parent)
	return &sc, nil
}

func (s *SQLStore) GetOrCreateScenario(ctx context.Context, sc *model.Scenario) (bool, error) {
	created := false
	err := database.WithTx(ctx, s.db, func(tx database.Tx) error {
		existing, err := scanScenario(tx.QueryRowContext(ctx,
			s.q(`SELECT `+scenarioColumns+` FROM scenarios WHERE project_id = ? AND sid = ?`), sc.ProjectID, sc.SID))
		if err == nil {
			*sc = *existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		id, err := s.insert(ctx, tx, `INSERT INTO scenarios (project_id, sid, name, is_result, parent_id) VALUES (?, ?, ?, ?, ?)`,
			sc.ProjectID, sc.SID, sc.Name, sc.IsResult, sc.ParentID)
		if err != nil {
			return err
		}
		sc.ID = id
		created = true
		return nil
	})
	if err != nil {
		return false, wrap("failed to get or create scenario", err)
	}
	return created, nil
}

func (s *SQLStore) GetScenario(ctx context.Context, id int64) (*model.Scenario, error) {
	sc, err := scanScenario(s.db.QueryRowContext(ctx, s.q(`SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`), id))
	if err != nil {
		return nil, wrap("scenario", err)
	}
	return sc, nil
}

func (s *SQLStore) FindScenario(ctx context.Context, projectID int64, sid int) (*model.Scenario, error) {
	sc, err := scanScenario(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+scenarioColumns+` FROM scenarios WHERE project_id = ? AND sid = ?`), projectID, sid))
	if err != nil {
		return nil, wrap("scenario", err)
	}
	return sc, nil
}

func (s *SQLStore) ListScenarios(ctx context.Context, projectID int64) ([]model.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+scenarioColumns+` FROM scenarios WHERE project_id = ? ORDER BY sid`), projectID)
	if err != nil {
		return nil, wrap("failed to list scenarios", err)
	}
	defer rows.Close()
	var out []model.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, wrap("failed to scan scenario", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (s *SQLStore) insertRecords(ctx context.Context, tx database.Tx, recs []*model.Record) error {
	for _, r := range recs {
		data, err := serialization.Marshal(r.Fields)
		if err != nil {
			return err
		}
		id, err := s.insert(ctx, tx, `INSERT INTO records (kind, project_id, scenario_id, report_id, name, data) VALUES (?, ?, ?, ?, ?, ?)`,
			string(r.Kind), r.ProjectID, r.ScenarioID, r.ReportID, r.Name, string(data))
		if err != nil {
			return err
		}
		r.ID = id
	}
	return nil
}

func (s *SQLStore) CreateRecords(ctx context.Context, recs []*model.Record) error {
	if len(recs) == 0 {
		return nil
	}
	err := database.WithTx(ctx, s.db, func(tx database.Tx) error {
		return s.insertRecords(ctx, tx, recs)
	})
	if err != nil {
		return wrap("failed to create records", err)
	}
	return nil
}

func (s *SQLStore) ReplaceScenarioRecords(ctx context.Context, scenarioID int64, kind model.Kind, recs []*model.Record) error {
	err := database.WithTx(ctx, s.db, func(tx database.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM records WHERE scenario_id = ? AND kind = ?`), scenarioID, string(kind)); err != nil {
			return err
		}
		return s.insertRecords(ctx, tx, recs)
	})
	if err != nil {
		return wrap("failed to replace "+string(kind)+" records", err)
	}
	return nil
}

func (s *SQLStore) ReplaceDefinitions(ctx context.Context, projectID int64, kind model.Kind, recs []*model.Record) error {
	err := database.WithTx(ctx, s.db, func(tx database.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM records WHERE project_id = ? AND kind = ? AND scenario_id IS NULL AND name = ''`),
			projectID, string(kind)); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, s.q(`SELECT id, name FROM records WHERE project_id = ? AND kind = ? AND scenario_id IS NULL ORDER BY id`),
			projectID, string(kind))
		if err != nil {
			return err
		}
		byName := make(map[string]int64)
		for rows.Next() {
			var (
				id   int64
				name string
			)
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return err
			}
			byName[name] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, r := range recs {
			id, ok := byName[r.Name]
			if !ok || r.Name == "" {
				if err := s.insertRecords(ctx, tx, []*model.Record{r}); err != nil {
					return err
				}
				if r.Name != "" {
					byName[r.Name] = r.ID
				}
				continue
			}
			data, err := serialization.Marshal(r.Fields)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE records SET data = ? WHERE id = ?`), string(data), id); err != nil {
				return err
			}
			r.ID = id
		}
		return nil
	})
	if err != nil {
		return wrap("failed to replace "+string(kind)+" definitions", err)
	}
	return nil
}

const recordColumns = `id, kind, project_id, scenario_id, report_id, name, data`

func scanRecord(r rowScanner) (*model.Record, error) {
	var (
		rec                model.Record
		kind, data         string
		scenario, reportID sql.NullInt64
	)
	if err := r.Scan(&rec.ID, &kind, &rec.ProjectID, &scenario, &reportID, &rec.Name, &data); err != nil {
		return nil, err
	}
	rec.Kind = model.Kind(kind)
	rec.ScenarioID = nullInt(scenario)
	rec.ReportID = nullInt(reportID)
	if err := serialization.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) GetRecord(ctx context.Context, id int64) (*model.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.q(`SELECT `+recordColumns+` FROM records WHERE id = ?`), id))
	if err != nil {
		return nil, wrap("record", err)
	}
	return rec, nil
}

func (s *SQLStore) queryRecords(ctx context.Context, where []string, args []any) ([]model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY id`), args...)
	if err != nil {
		return nil, wrap("failed to list records", err)
	}
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("failed to scan record", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListRecords(ctx context.Context, f RecordFilter) ([]model.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where, args = append(where, "kind = ?"), append(args, string(f.Kind))
	}
	if f.ProjectID != 0 {
		where, args = append(where, "project_id = ?"), append(args, f.ProjectID)
	}
	if f.ScenarioID != 0 {
		where, args = append(where, "scenario_id = ?"), append(args, f.ScenarioID)
	}
	if f.ReportID != 0 {
		where, args = append(where, "report_id = ?"), append(args, f.ReportID)
	}
	return s.queryRecords(ctx, where, args)
}

func (s *SQLStore) FindDefinitions(ctx context.Context, projectID int64, kind model.Kind, name string) ([]model.Record, error) {
	return s.queryRecords(ctx,
		[]string{"project_id = ?", "kind = ?", "name = ?", "scenario_id IS NULL"},
		[]any{projectID, string(kind), name})
}

const reportColumns = `id, scenario_id, kind, created_at`

func scanReport(r rowScanner) (*model.Report, error) {
	var (
		rp      model.Report
		created int64
	)
	if err := r.Scan(&rp.ID, &rp.ScenarioID, &rp.Kind, &created); err != nil {
		return nil, err
	}
	rp.CreatedAt = time.Unix(0, created)
	return &rp, nil
}

func (s *SQLStore) getOrCreateReport(ctx context.Context, tx database.Tx, scenarioID int64, kind string) (*model.Report, bool, error) {
	rp, err := scanReport(tx.QueryRowContext(ctx,
		s.q(`SELECT `+reportColumns+` FROM reports WHERE scenario_id = ? AND kind = ?`), scenarioID, kind))
	if err == nil {
		return rp, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	now := time.Now()
	id, err := s.insert(ctx, tx, `INSERT INTO reports (scenario_id, kind, created_at) VALUES (?, ?, ?)`,
		scenarioID, kind, now.UnixNano())
	if err != nil {
		return nil, false, err
	}
	return &model.Report{ID: id, ScenarioID: scenarioID, Kind: kind, CreatedAt: now}, true, nil
}

func (s *SQLStore) ReplaceReportRecords(ctx context.Context, scenarioID int64, kind string, recs []*model.Record) (*model.Report, bool, error) {
	var (
		out     *model.Report
		created bool
	)
	err := database.WithTx(ctx, s.db, func(tx database.Tx) error {
		var err error
		out, created, err = s.getOrCreateReport(ctx, tx, scenarioID, kind)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM records WHERE report_id = ?`), out.ID); err != nil {
			return err
		}
		for _, r := range recs {
			r.ReportID = model.Int64Ptr(out.ID)
		}
		return s.insertRecords(ctx, tx, recs)
	})
	if err != nil {
		return nil, false, wrap("failed to replace report "+kind, err)
	}
	return out, created, nil
}

func (s *SQLStore) ListReports(ctx context.Context, scenarioID int64) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+reportColumns+` FROM reports WHERE scenario_id = ? ORDER BY id`), scenarioID)
	if err != nil {
		return nil, wrap("failed to list reports", err)
	}
	defer rows.Close()
	var out []model.Report
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, wrap("failed to scan report", err)
		}
		out = append(out, *rp)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateJob(ctx context.Context, job *model.AsyncJob) error {
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	id, err := s.insert(ctx, s.db, `INSERT INTO async_jobs
		(uuid, library_name, status, model_status, error_message, inputs, outputs, parent_scenario_id, result_scenario_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.UUID, job.LibraryName, job.Status, string(job.ModelStatus), job.ErrorMessage,
		string(job.Inputs), string(job.Outputs), job.ParentScenarioID, job.ResultScenarioID,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return wrap("failed to create job "+job.UUID, err)
	}
	job.ID = id
	return nil
}

func (s *SQLStore) UpdateJob(ctx context.Context, job *model.AsyncJob) error {
	job.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE async_jobs SET
		status = ?, model_status = ?, error_message = ?, inputs = ?, outputs = ?,
		parent_scenario_id = ?, result_scenario_id = ?, updated_at = ?
		WHERE uuid = ?`),
		job.Status, string(job.ModelStatus), job.ErrorMessage, string(job.Inputs), string(job.Outputs),
		job.ParentScenarioID, job.ResultScenarioID, job.UpdatedAt.UnixNano(), job.UUID)
	if err != nil {
		return wrap("failed to update job "+job.UUID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("job " + job.UUID)
	}
	return nil
}

const jobColumns = `id, uuid, library_name, status, model_status, error_message, inputs, outputs, parent_scenario_id, result_scenario_id, created_at, updated_at`

func scanJob(r rowScanner) (*model.AsyncJob, error) {
	var (
		j                model.AsyncJob
		modelStatus      string
		errMsg           sql.NullString
		inputs, outputs  string
		parent, result   sql.NullInt64
		created, updated int64
	)
	if err := r.Scan(&j.ID, &j.UUID, &j.LibraryName, &j.Status, &modelStatus, &errMsg, &inputs, &outputs,
		&parent, &result, &created, &updated); err != nil {
		return nil, err
	}
	j.ModelStatus = model.ModelStatus(modelStatus)
	j.ErrorMessage = errMsg.String
	j.Inputs, j.Outputs = []byte(inputs), []byte(outputs)
	j.ParentScenarioID, j.ResultScenarioID = nullInt(parent), nullInt(result)
	j.CreatedAt, j.UpdatedAt = time.Unix(0, created), time.Unix(0, updated)
	return &j, nil
}

func (s *SQLStore) GetJob(ctx context.Context, uuid string) (*model.AsyncJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM async_jobs WHERE uuid = ?`), uuid))
	if err != nil {
		return nil, wrap("job "+uuid, err)
	}
	return j, nil
}

func (s *SQLStore) ListJobs(ctx context.Context, libraryName string) ([]model.AsyncJob, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+jobColumns+` FROM async_jobs WHERE library_name = ? ORDER BY id DESC`), libraryName)
	if err != nil {
		return nil, wrap("failed to list jobs", err)
	}
	defer rows.Close()
	var out []model.AsyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrap("failed to scan job", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
