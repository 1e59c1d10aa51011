package repository

import (
	"landscapesim/pkg/batch/repository/job"
)

// JobRepository persists batch execution metadata.
type JobRepository interface {
	job.JobExecution
	job.StepExecution

	// Close releases the underlying resources.
	Close() error
}
