package step

import (
	"context"
	"errors"
	"io"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/repository"
	exception "landscapesim/pkg/batch/util/exception"
	logger "landscapesim/pkg/batch/util/logger"
)

// ChunkStep reads items, processes them one by one and writes them in
// chunks of chunkSize. Any read, process or write error fails the step. A
// writer implementing core.ItemCommitter is committed once after the last
// chunk, so a failed step leaves nothing of its input stored.
type ChunkStep[I, O any] struct {
	name          string
	reader        core.ItemReader[I]
	processor     core.ItemProcessor[I, O]
	writer        core.ItemWriter[O]
	chunkSize     int
	jobRepository repository.JobRepository
	stepListeners []core.StepExecutionListener
}

// NewChunkStep creates a ChunkStep. A chunkSize below 1 writes everything in
// a single chunk.
func NewChunkStep[I, O any](
	name string,
	r core.ItemReader[I],
	p core.ItemProcessor[I, O],
	w core.ItemWriter[O],
	chunkSize int,
	jobRepository repository.JobRepository,
	stepListeners []core.StepExecutionListener,
) *ChunkStep[I, O] {
	return &ChunkStep[I, O]{
		name:          name,
		reader:        r,
		processor:     p,
		writer:        w,
		chunkSize:     chunkSize,
		jobRepository: jobRepository,
		stepListeners: stepListeners,
	}
}

// StepName returns the step name.
func (cs *ChunkStep[I, O]) StepName() string {
	return cs.name
}

// Execute runs the read/process/write loop.
func (cs *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Debugf("chunk step '%s' (execution %s) starting", cs.name, stepExecution.ID)
	stepExecution.MarkAsStarted()
	notifyBeforeStep(ctx, cs.stepListeners, stepExecution)

	err := cs.run(ctx, stepExecution)
	if err != nil {
		stepExecution.MarkAsFailed(err)
		jobExecution.AddFailureException(err)
	} else {
		stepExecution.MarkAsCompleted()
	}
	notifyAfterStep(ctx, cs.stepListeners, stepExecution)

	if cs.jobRepository == nil {
		return err
	}
	if uerr := cs.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); uerr != nil {
		logger.Errorf("chunk step '%s': failed to persist step execution: %v", cs.name, uerr)
		if err == nil {
			return exception.NewBatchError(cs.name, "failed to persist step execution", uerr, false, false)
		}
	}
	return err
}

func (cs *ChunkStep[I, O]) run(ctx context.Context, se *core.StepExecution) (err error) {
	if err := cs.reader.Open(ctx, se.ExecutionContext); err != nil {
		return err
	}
	defer func() {
		if cerr := cs.reader.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := cs.writer.Open(ctx, se.ExecutionContext); err != nil {
		return err
	}
	defer func() {
		if cerr := cs.writer.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	committer, staged := cs.writer.(core.ItemCommitter)
	chunk := make([]O, 0, max(cs.chunkSize, 0))
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := cs.writer.Write(ctx, chunk); err != nil {
			se.RollbackCount++
			return err
		}
		se.WriteCount += len(chunk)
		if !staged {
			se.CommitCount++
		}
		chunk = chunk[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := cs.reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		se.ReadCount++

		out, err := cs.processor.Process(ctx, item)
		if err != nil {
			return err
		}
		chunk = append(chunk, out)
		if cs.chunkSize > 0 && len(chunk) >= cs.chunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if !staged {
		return nil
	}
	if err := committer.Commit(ctx); err != nil {
		se.RollbackCount++
		return err
	}
	se.CommitCount++
	return nil
}
