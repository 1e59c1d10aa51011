package joblauncher

import (
	"context"
	"fmt"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/repository"
	exception "landscapesim/pkg/batch/util/exception"
	logger "landscapesim/pkg/batch/util/logger"
)

// SimpleJobLauncher validates parameters, records a new JobExecution and runs
// the job synchronously.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
}

// NewSimpleJobLauncher creates a launcher persisting to jobRepository.
func NewSimpleJobLauncher(jobRepository repository.JobRepository) *SimpleJobLauncher {
	return &SimpleJobLauncher{jobRepository: jobRepository}
}

// Launch runs job. The returned execution is non-nil whenever the execution
// was recorded, even if the job failed.
func (l *SimpleJobLauncher) Launch(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error) {
	jobName := job.JobName()
	if params.Params == nil {
		params = core.NewJobParameters()
	}
	if err := job.ValidateParameters(params); err != nil {
		logger.Errorf("job '%s': parameter validation failed: %v", jobName, err)
		return nil, err
	}

	jobExecution := core.NewJobExecution(jobName, params)
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError("job_launcher", fmt.Sprintf("failed to save execution of job '%s'", jobName), err, false, false)
	}
	logger.Debugf("launching job '%s' (execution %s)", jobName, jobExecution.ID)

	if err := job.Run(ctx, jobExecution, params); err != nil {
		return jobExecution, err
	}
	return jobExecution, nil
}
