package step

import (
	"context"
	"fmt"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/repository"
	exception "landscapesim/pkg/batch/util/exception"
	logger "landscapesim/pkg/batch/util/logger"
)

// TaskletFunc adapts a function to core.Tasklet.
type TaskletFunc func(ctx context.Context, stepExecution *core.StepExecution) (core.ExitStatus, error)

// Execute calls f.
func (f TaskletFunc) Execute(ctx context.Context, stepExecution *core.StepExecution) (core.ExitStatus, error) {
	return f(ctx, stepExecution)
}

// TaskletStep runs a single core.Tasklet.
type TaskletStep struct {
	name          string
	tasklet       core.Tasklet
	stepListeners []core.StepExecutionListener
	jobRepository repository.JobRepository
}

var _ core.Step = (*TaskletStep)(nil)

// NewTaskletStep creates a TaskletStep.
func NewTaskletStep(
	name string,
	tasklet core.Tasklet,
	jobRepository repository.JobRepository,
	stepListeners []core.StepExecutionListener,
) *TaskletStep {
	return &TaskletStep{
		name:          name,
		tasklet:       tasklet,
		jobRepository: jobRepository,
		stepListeners: stepListeners,
	}
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.name
}

// Execute runs the tasklet and records the outcome on stepExecution.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Debugf("tasklet step '%s' (execution %s) starting", s.name, stepExecution.ID)

	stepExecution.MarkAsStarted()
	notifyBeforeStep(ctx, s.stepListeners, stepExecution)

	exitStatus, err := s.tasklet.Execute(ctx, stepExecution)
	if err == nil && exitStatus != core.ExitStatusCompleted && exitStatus != core.ExitStatusNoOp {
		err = fmt.Errorf("tasklet returned non-completed exit status: %s", exitStatus)
	}
	if err != nil {
		stepExecution.MarkAsFailed(err)
		jobExecution.AddFailureException(err)
	} else {
		stepExecution.MarkAsCompleted()
		stepExecution.ExitStatus = exitStatus
	}

	notifyAfterStep(ctx, s.stepListeners, stepExecution)

	if s.jobRepository == nil {
		return err
	}
	if uerr := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); uerr != nil {
		logger.Errorf("tasklet step '%s': failed to persist step execution: %v", s.name, uerr)
		if err == nil {
			return exception.NewBatchError(s.name, "failed to persist step execution", uerr, false, false)
		}
	}
	return err
}

func notifyBeforeStep(ctx context.Context, listeners []core.StepExecutionListener, se *core.StepExecution) {
	for _, l := range listeners {
		l.BeforeStep(ctx, se)
	}
}

func notifyAfterStep(ctx context.Context, listeners []core.StepExecutionListener, se *core.StepExecution) {
	for _, l := range listeners {
		l.AfterStep(ctx, se)
	}
}
