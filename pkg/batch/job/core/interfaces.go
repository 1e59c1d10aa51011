package core

import (
	"context"
)

// Job is a runnable batch job.
type Job interface {
	Run(ctx context.Context, jobExecution *JobExecution, jobParameters JobParameters) error
	JobName() string
	ValidateParameters(params JobParameters) error
}

// Step is a single unit of work inside a Job.
type Step interface {
	Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error
	StepName() string
}

// ItemReader reads items one at a time. Read returns io.EOF when exhausted.
type ItemReader[O any] interface {
	Open(ctx context.Context, ec ExecutionContext) error
	Read(ctx context.Context) (O, error)
	Close(ctx context.Context) error
}

// ItemProcessor turns an input item into an output item.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter writes a chunk of items.
type ItemWriter[I any] interface {
	Open(ctx context.Context, ec ExecutionContext) error
	Write(ctx context.Context, items []I) error
	Close(ctx context.Context) error
}

// ItemCommitter is implemented by writers that stage written chunks and
// store them together. Commit runs once, after the last chunk of a step that
// read its input without error.
type ItemCommitter interface {
	Commit(ctx context.Context) error
}

// Tasklet performs a single operation as a step.
type Tasklet interface {
	// Execute runs the business logic and returns the exit status.
	Execute(ctx context.Context, stepExecution *StepExecution) (ExitStatus, error)
}

// StepExecutionListener observes step boundaries.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// JobExecutionListener observes job boundaries.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}
