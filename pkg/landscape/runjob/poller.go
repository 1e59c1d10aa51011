package runjob

import (
	"context"
	"slices"
	"time"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/store"
)

// Poller records result scenarios whose output directory appeared without
// the synchronous run observing it, for example after a restart.
type Poller struct {
	svc *Service
}

// NewPoller creates a Poller over the libraries of svc.
func NewPoller(svc *Service) *Poller {
	return &Poller{svc: svc}
}

// unrecordedOutputs lists, ascending, the sids that have an output
// directory but no stored scenario.
func (s *Service) unrecordedOutputs(ctx context.Context, lib *model.Library, console engine.Console) ([]int, error) {
	sids, err := console.OutputScenarioSIDs()
	if err != nil {
		return nil, err
	}
	if len(sids) == 0 {
		return nil, nil
	}
	scenarios, err := store.ScenariosOfLibrary(ctx, s.store, lib.ID)
	if err != nil {
		return nil, err
	}
	recorded := make(map[int]bool, len(scenarios))
	for _, sc := range scenarios {
		recorded[sc.SID] = true
	}
	return slices.DeleteFunc(sids, func(sid int) bool { return recorded[sid] }), nil
}

// Poll records every missing result scenario of library once, attaches it
// to the newest job still waiting for a result, imports its outputs and
// publishes its rasters. A library with a run in progress is skipped.
func (pl *Poller) Poll(ctx context.Context, library string) ([]model.Scenario, error) {
	s := pl.svc
	p, err := s.pipeline(library)
	if err != nil {
		return nil, err
	}
	lock := s.lockFor(library)
	if !lock.TryLock() {
		logger.Debugf("library %s has a run in progress; poll skipped", library)
		return nil, nil
	}
	defer lock.Unlock()

	missing, err := s.unrecordedOutputs(ctx, p.Library(), p.Console())
	if err != nil || len(missing) == 0 {
		return nil, err
	}
	attrs, err := p.Console().ListScenarioAttrs(ctx, engine.ScenarioQuery{ResultsOnly: true})
	if err != nil {
		return nil, err
	}

	var created []model.Scenario
	for _, sid := range missing {
		i := slices.IndexFunc(attrs, func(a engine.ScenarioAttrs) bool { return a.SID == sid })
		if i < 0 {
			logger.Debugf("output of sid %d in %s is not a listed result yet", sid, library)
			continue
		}
		sc, err := pl.record(ctx, p, attrs[i])
		if err != nil {
			return created, err
		}
		created = append(created, *sc)
	}
	return created, nil
}

func (pl *Poller) record(ctx context.Context, p *pipeline.Pipeline, a engine.ScenarioAttrs) (*model.Scenario, error) {
	s := pl.svc
	job, err := pl.pendingJob(ctx, p.Library().Name)
	if err != nil {
		return nil, err
	}
	sc := &model.Scenario{SID: a.SID, Name: a.Name, IsResult: true}
	if job != nil {
		parent, err := s.store.GetScenario(ctx, *job.ParentScenarioID)
		if err != nil {
			return nil, err
		}
		sc.ProjectID = parent.ProjectID
		sc.ParentID = model.Int64Ptr(parent.ID)
	} else {
		proj, err := s.store.FindProject(ctx, p.Library().ID, a.PID)
		if err != nil {
			return nil, err
		}
		sc.ProjectID = proj.ID
	}
	created, err := s.store.GetOrCreateScenario(ctx, sc)
	if err != nil {
		return nil, err
	}
	s.log.Info("recorded result scenario found on disk", "library", p.Library().Name, "sid", sc.SID, "created", created)

	if job != nil {
		if err := s.recordResult(ctx, job, sc); err != nil {
			return nil, err
		}
		if job.ModelStatus != model.ModelStatusProcessing {
			if err := s.transition(ctx, job, model.ModelStatusProcessing); err != nil {
				return nil, err
			}
		}
	}

	if err := p.ImportOutputs(ctx, sc); err != nil {
		pl.fail(ctx, job, err)
		return nil, err
	}
	if _, err := p.PublishOutputs(ctx, sc); err != nil {
		s.log.Warn("publishing outputs failed", "sid", sc.SID, "error", err)
	}
	if job != nil {
		job.Status = string(core.BatchStatusCompleted)
		if err := s.transition(ctx, job, model.ModelStatusComplete); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// pendingJob returns the newest unfinished job of library with a parent
// and no result, or nil.
func (pl *Poller) pendingJob(ctx context.Context, library string) (*model.AsyncJob, error) {
	jobs, err := pl.svc.store.ListJobs(ctx, library)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		j := &jobs[i]
		if j.ResultScenarioID == nil && j.ParentScenarioID != nil && !j.ModelStatus.IsTerminal() &&
			j.ModelStatus != model.ModelStatusWaiting {
			return j, nil
		}
	}
	return nil, nil
}

func (pl *Poller) fail(ctx context.Context, job *model.AsyncJob, err error) {
	if job == nil {
		return
	}
	job.Status = string(core.BatchStatusFailed)
	job.ErrorMessage = err.Error()
	if terr := pl.svc.transition(ctx, job, model.ModelStatusFailed); terr != nil {
		logger.Errorf("job %s: could not record failure: %v", job.UUID, terr)
	}
}

// Start polls every library each interval until ctx is done.
func (pl *Poller) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Infof("polling %d libraries every %s", len(pl.svc.pipelines), interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range pl.svc.Libraries() {
				created, err := pl.Poll(ctx, name)
				if err != nil {
					logger.Errorf("poll of %s failed: %v", name, err)
					continue
				}
				if len(created) > 0 {
					logger.Infof("poll of %s recorded %d result scenarios", name, len(created))
				}
			}
		}
	}
}
