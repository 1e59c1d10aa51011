package repository

import (
	"context"
	"sort"
	"sync"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/util/exception"
)

// MemoryJobRepository keeps executions in process memory. Stored values are
// the caller's pointers, so updates are visible without a reload.
type MemoryJobRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*core.JobExecution
	steps map[string][]*core.StepExecution
}

var _ JobRepository = (*MemoryJobRepository)(nil)

// NewMemoryJobRepository returns an empty repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:  make(map[string]*core.JobExecution),
		steps: make(map[string][]*core.StepExecution),
	}
}

func (r *MemoryJobRepository) SaveJobExecution(_ context.Context, je *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[je.ID]; ok {
		return exception.NewBatchErrorf("repository", "job execution %s already exists", je.ID)
	}
	r.jobs[je.ID] = je
	return nil
}

func (r *MemoryJobRepository) UpdateJobExecution(_ context.Context, je *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[je.ID]; !ok {
		return exception.New(exception.KindInternal, "repository", "job execution "+je.ID, exception.ErrNotFound)
	}
	je.Version++
	r.jobs[je.ID] = je
	return nil
}

func (r *MemoryJobRepository) FindJobExecutionByID(_ context.Context, id string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	je, ok := r.jobs[id]
	if !ok {
		return nil, exception.New(exception.KindInternal, "repository", "job execution "+id, exception.ErrNotFound)
	}
	return je, nil
}

func (r *MemoryJobRepository) FindJobExecutionsByJobName(_ context.Context, jobName string) ([]*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*core.JobExecution
	for _, je := range r.jobs {
		if je.JobName == jobName {
			out = append(out, je)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime.After(out[j].CreateTime) })
	return out, nil
}

func (r *MemoryJobRepository) SaveStepExecution(_ context.Context, se *core.StepExecution) error {
	if se.JobExecution == nil {
		return exception.NewBatchErrorf("repository", "step execution %s has no job execution", se.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[se.JobExecution.ID] = append(r.steps[se.JobExecution.ID], se)
	return nil
}

func (r *MemoryJobRepository) UpdateStepExecution(_ context.Context, se *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	se.Version++
	return nil
}

func (r *MemoryJobRepository) FindStepExecutionsByJobExecutionID(_ context.Context, id string) ([]*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*core.StepExecution(nil), r.steps[id]...), nil
}

func (r *MemoryJobRepository) Close() error { return nil }
