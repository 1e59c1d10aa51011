package job

import (
	"context"

	core "landscapesim/pkg/batch/job/core"
)

// JobExecution persists and loads job executions.
type JobExecution interface {
	// SaveJobExecution stores a new execution.
	SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error

	// UpdateJobExecution stores the current state of an existing execution.
	UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error

	// FindJobExecutionByID loads an execution together with its step executions.
	FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error)

	// FindJobExecutionsByJobName lists executions of jobName, newest first.
	FindJobExecutionsByJobName(ctx context.Context, jobName string) ([]*core.JobExecution, error)
}
