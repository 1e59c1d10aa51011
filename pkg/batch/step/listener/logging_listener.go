package listener

import (
	"context"

	core "landscapesim/pkg/batch/job/core"
	logger "landscapesim/pkg/batch/util/logger"
)

// LoggingListener logs job and step boundaries.
type LoggingListener struct{}

var (
	_ core.StepExecutionListener = (*LoggingListener)(nil)
	_ core.JobExecutionListener  = (*LoggingListener)(nil)
)

// NewLoggingListener returns a LoggingListener.
func NewLoggingListener() *LoggingListener {
	return &LoggingListener{}
}

func (l *LoggingListener) BeforeJob(_ context.Context, je *core.JobExecution) {
	logger.With("job", je.JobName, "execution", je.ID).Info("job started")
}

func (l *LoggingListener) AfterJob(_ context.Context, je *core.JobExecution) {
	log := logger.With("job", je.JobName, "execution", je.ID, "status", string(je.Status), "steps", len(je.StepExecutions))
	if je.Status == core.BatchStatusFailed {
		log.Error("job failed", "failures", len(je.Failures))
		return
	}
	log.Info("job finished")
}

func (l *LoggingListener) BeforeStep(_ context.Context, se *core.StepExecution) {
	logger.With("step", se.StepName, "execution", se.ID).Debug("step started")
}

func (l *LoggingListener) AfterStep(_ context.Context, se *core.StepExecution) {
	log := logger.With("step", se.StepName, "status", string(se.Status),
		"read", se.ReadCount, "written", se.WriteCount)
	if se.Status == core.BatchStatusFailed {
		log.Error("step failed")
		return
	}
	log.Info("step finished")
}
