package runner

import (
	"context"
	"errors"
	"time"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/repository"
	exception "landscapesim/pkg/batch/util/exception"
	logger "landscapesim/pkg/batch/util/logger"
)

// FlowJob runs its steps strictly in order. The first failing step fails
// the job and the remaining steps are not run. Steps that already completed
// are not rolled back.
type FlowJob struct {
	name          string
	steps         []core.Step
	jobRepository repository.JobRepository
	jobListeners  []core.JobExecutionListener
	validator     func(core.JobParameters) error
}

var _ core.Job = (*FlowJob)(nil)

// NewFlowJob creates a FlowJob.
func NewFlowJob(
	name string,
	steps []core.Step,
	jobRepository repository.JobRepository,
	jobListeners []core.JobExecutionListener,
) *FlowJob {
	return &FlowJob{
		name:          name,
		steps:         steps,
		jobRepository: jobRepository,
		jobListeners:  jobListeners,
	}
}

// WithValidator sets the parameter check run by ValidateParameters.
func (j *FlowJob) WithValidator(fn func(core.JobParameters) error) *FlowJob {
	j.validator = fn
	return j
}

// JobName returns the job name.
func (j *FlowJob) JobName() string {
	return j.name
}

// Steps returns the ordered steps.
func (j *FlowJob) Steps() []core.Step {
	return j.steps
}

// ValidateParameters runs the configured validator, if any.
func (j *FlowJob) ValidateParameters(params core.JobParameters) error {
	if j.validator == nil {
		return nil
	}
	return j.validator(params)
}

func (j *FlowJob) notifyBeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *FlowJob) notifyAfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run executes every step in order.
func (j *FlowJob) Run(ctx context.Context, jobExecution *core.JobExecution, _ core.JobParameters) (runErr error) {
	logger.Infof("job '%s' (execution %s) starting with %d steps", j.name, jobExecution.ID, len(j.steps))

	jobExecution.MarkAsStarted()
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		jobExecution.MarkAsFailed(err)
		return exception.NewBatchError(j.name, "failed to persist job start", err, false, false)
	}
	j.notifyBeforeJob(ctx, jobExecution)

	defer func() {
		jobExecution.EndTime = time.Now()
		if err := j.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
			logger.Errorf("job '%s': failed to persist final state: %v", j.name, err)
			if runErr == nil {
				runErr = err
			}
		}
		j.notifyAfterJob(ctx, jobExecution)
		logger.Infof("job '%s' (execution %s) finished. status: %s, exit status: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	for _, step := range j.steps {
		if err := ctx.Err(); err != nil {
			logger.Warnf("job '%s' interrupted before step '%s': %v", j.name, step.StepName(), err)
			jobExecution.AddFailureException(err)
			jobExecution.MarkAsStopped()
			return err
		}

		stepName := step.StepName()
		jobExecution.CurrentStepName = stepName
		stepExecution := core.NewStepExecution("", jobExecution, stepName)
		jobExecution.AddStepExecution(stepExecution)
		if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
			jobExecution.MarkAsFailed(err)
			return exception.NewBatchError(j.name, "failed to save step execution for "+stepName, err, false, false)
		}

		if err := step.Execute(ctx, jobExecution, stepExecution); err != nil {
			logger.Errorf("job '%s': step '%s' failed: %v", j.name, stepName, err)
			if errors.Is(err, context.Canceled) {
				jobExecution.AddFailureException(err)
				jobExecution.MarkAsStopped()
			} else {
				jobExecution.MarkAsFailed(err)
			}
			return err
		}
		logger.Debugf("job '%s': step '%s' completed. exit status: %s", j.name, stepName, stepExecution.ExitStatus)
	}

	jobExecution.MarkAsCompleted()
	return nil
}
