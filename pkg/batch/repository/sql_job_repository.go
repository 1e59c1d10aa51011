package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"landscapesim/pkg/batch/database"
	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/serialization"
)

const module = "repository"

// SQLJobRepository stores executions in batch_job_execution and
// batch_step_execution.
type SQLJobRepository struct {
	db database.DBConnection
}

var _ JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository returns a repository over db.
func NewSQLJobRepository(db database.DBConnection) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

func (r *SQLJobRepository) q(query string) string {
	return r.db.Dialect().Rebind(query)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, je *core.JobExecution) error {
	params, err := serialization.MarshalJobParameters(je.Parameters)
	if err != nil {
		return err
	}
	failures, err := serialization.MarshalFailures(je.Failures)
	if err != nil {
		return err
	}
	ec, err := serialization.MarshalExecutionContext(je.ExecutionContext)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.q(`INSERT INTO batch_job_execution
		(id, job_name, parameters, status, exit_status, start_time, end_time, failures, execution_context, current_step_name, version, create_time, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		je.ID, je.JobName, string(params), string(je.Status), string(je.ExitStatus),
		toUnix(je.StartTime), toUnix(je.EndTime), string(failures), string(ec), je.CurrentStepName,
		je.Version, toUnix(je.CreateTime), toUnix(je.LastUpdated))
	if err != nil {
		return exception.NewBatchError(module, "failed to save job execution "+je.ID, err, false, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, je *core.JobExecution) error {
	failures, err := serialization.MarshalFailures(je.Failures)
	if err != nil {
		return err
	}
	ec, err := serialization.MarshalExecutionContext(je.ExecutionContext)
	if err != nil {
		return err
	}
	je.LastUpdated = time.Now()
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE batch_job_execution SET
		status = ?, exit_status = ?, start_time = ?, end_time = ?, failures = ?, execution_context = ?,
		current_step_name = ?, version = version + 1, last_updated = ?
		WHERE id = ?`),
		string(je.Status), string(je.ExitStatus), toUnix(je.StartTime), toUnix(je.EndTime),
		string(failures), string(ec), je.CurrentStepName, toUnix(je.LastUpdated), je.ID)
	if err != nil {
		return exception.NewBatchError(module, "failed to update job execution "+je.ID, err, false, false)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exception.NewBatchError(module, "job execution "+je.ID, exception.ErrNotFound, false, false)
	}
	je.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const jobColumns = `id, job_name, parameters, status, exit_status, start_time, end_time, failures, execution_context, current_step_name, version, create_time, last_updated`

func scanJobExecution(s rowScanner) (*core.JobExecution, error) {
	var (
		je                        core.JobExecution
		params, failures, ec      string
		status, exitStatus        string
		start, end, created, last int64
	)
	if err := s.Scan(&je.ID, &je.JobName, &params, &status, &exitStatus, &start, &end, &failures, &ec,
		&je.CurrentStepName, &je.Version, &created, &last); err != nil {
		return nil, err
	}
	var err error
	if je.Parameters, err = serialization.UnmarshalJobParameters([]byte(params)); err != nil {
		return nil, err
	}
	if je.Failures, err = serialization.UnmarshalFailures([]byte(failures)); err != nil {
		return nil, err
	}
	if je.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(ec)); err != nil {
		return nil, err
	}
	je.Status = core.JobStatus(status)
	je.ExitStatus = core.ExitStatus(exitStatus)
	je.StartTime, je.EndTime = fromUnix(start), fromUnix(end)
	je.CreateTime, je.LastUpdated = fromUnix(created), fromUnix(last)
	return &je, nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*core.JobExecution, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+jobColumns+` FROM batch_job_execution WHERE id = ?`), id)
	je, err := scanJobExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchError(module, "job execution "+id, exception.ErrNotFound, false, false)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to load job execution "+id, err, false, false)
	}
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		se.JobExecution = je
	}
	je.StepExecutions = steps
	return je, nil
}

func (r *SQLJobRepository) FindJobExecutionsByJobName(ctx context.Context, jobName string) ([]*core.JobExecution, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT `+jobColumns+` FROM batch_job_execution WHERE job_name = ? ORDER BY create_time DESC`), jobName)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to list job executions", err, false, false)
	}
	defer rows.Close()
	var out []*core.JobExecution
	for rows.Next() {
		je, err := scanJobExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError(module, "failed to scan job execution", err, false, false)
		}
		out = append(out, je)
	}
	return out, rows.Err()
}

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, se *core.StepExecution) error {
	if se.JobExecution == nil {
		return exception.NewBatchErrorf(module, "step execution %s has no job execution", se.ID)
	}
	failures, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return err
	}
	ec, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.q(`INSERT INTO batch_step_execution
		(id, job_execution_id, step_name, status, exit_status, start_time, end_time, read_count, write_count,
		 commit_count, rollback_count, filter_count, failures, execution_context, version, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		se.ID, se.JobExecution.ID, se.StepName, string(se.Status), string(se.ExitStatus),
		toUnix(se.StartTime), toUnix(se.EndTime), se.ReadCount, se.WriteCount, se.CommitCount,
		se.RollbackCount, se.FilterCount, string(failures), string(ec), se.Version, toUnix(se.LastUpdated))
	if err != nil {
		return exception.NewBatchError(module, "failed to save step execution "+se.ID, err, false, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, se *core.StepExecution) error {
	failures, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return err
	}
	ec, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return err
	}
	se.LastUpdated = time.Now()
	_, err = r.db.ExecContext(ctx, r.q(`UPDATE batch_step_execution SET
		status = ?, exit_status = ?, start_time = ?, end_time = ?, read_count = ?, write_count = ?,
		commit_count = ?, rollback_count = ?, filter_count = ?, failures = ?, execution_context = ?,
		version = version + 1, last_updated = ?
		WHERE id = ?`),
		string(se.Status), string(se.ExitStatus), toUnix(se.StartTime), toUnix(se.EndTime),
		se.ReadCount, se.WriteCount, se.CommitCount, se.RollbackCount, se.FilterCount,
		string(failures), string(ec), toUnix(se.LastUpdated), se.ID)
	if err != nil {
		return exception.NewBatchError(module, "failed to update step execution "+se.ID, err, false, false)
	}
	se.Version++
	return nil
}

func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, id string) ([]*core.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT id, step_name, status, exit_status, start_time, end_time,
		read_count, write_count, commit_count, rollback_count, filter_count, failures, execution_context, version, last_updated
		FROM batch_step_execution WHERE job_execution_id = ? ORDER BY start_time, id`), id)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to list step executions", err, false, false)
	}
	defer rows.Close()
	var out []*core.StepExecution
	for rows.Next() {
		var (
			se                 core.StepExecution
			status, exitStatus string
			failures, ec       string
			start, end, last   int64
		)
		if err := rows.Scan(&se.ID, &se.StepName, &status, &exitStatus, &start, &end,
			&se.ReadCount, &se.WriteCount, &se.CommitCount, &se.RollbackCount, &se.FilterCount,
			&failures, &ec, &se.Version, &last); err != nil {
			return nil, exception.NewBatchError(module, "failed to scan step execution", err, false, false)
		}
		se.Status, se.ExitStatus = core.JobStatus(status), core.ExitStatus(exitStatus)
		se.StartTime, se.EndTime, se.LastUpdated = fromUnix(start), fromUnix(end), fromUnix(last)
		if se.Failures, err = serialization.UnmarshalFailures([]byte(failures)); err != nil {
			return nil, err
		}
		if se.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(ec)); err != nil {
			return nil, err
		}
		out = append(out, &se)
	}
	return out, rows.Err()
}

func (r *SQLJobRepository) Close() error {
	return r.db.Close()
}
