package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
)

// MemoryStore keeps everything in maps guarded by one mutex.
type MemoryStore struct {
	mu        sync.RWMutex
	seq       int64
	libraries map[int64]model.Library
	projects  map[int64]model.Project
	scenarios map[int64]model.Scenario
	records   map[int64]model.Record
	reports   map[int64]model.Report
	jobs      map[string]model.AsyncJob
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		libraries: make(map[int64]model.Library),
		projects:  make(map[int64]model.Project),
		scenarios: make(map[int64]model.Scenario),
		records:   make(map[int64]model.Record),
		reports:   make(map[int64]model.Report),
		jobs:      make(map[string]model.AsyncJob),
	}
}

func (m *MemoryStore) nextID() int64 {
	m.seq++
	return m.seq
}

func copyRecord(r model.Record) model.Record {
	r.Fields = maps.Clone(r.Fields)
	return r
}

func (m *MemoryStore) CreateLibrary(_ context.Context, lib *model.Library) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.libraries {
		if l.Name == lib.Name {
			return exception.Newf(exception.KindValidation, module, "library %q already exists", lib.Name)
		}
	}
	lib.ID = m.nextID()
	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = time.Now()
	}
	m.libraries[lib.ID] = *lib
	return nil
}

func (m *MemoryStore) GetLibraryByName(_ context.Context, name string) (*model.Library, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.libraries {
		if l.Name == name {
			return &l, nil
		}
	}
	return nil, notFound("library " + name)
}

func (m *MemoryStore) ListLibraries(_ context.Context) ([]model.Library, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Library, 0, len(m.libraries))
	for _, l := range m.libraries {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) MarkLibraryImported(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.libraries[id]
	if !ok {
		return notFound("library")
	}
	l.Imported = true
	m.libraries[id] = l
	return nil
}

func (m *MemoryStore) CreateProject(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.projects {
		if x.LibraryID == p.LibraryID && x.PID == p.PID {
			return exception.Newf(exception.KindValidation, module, "project pid %d already exists", p.PID)
		}
	}
	p.ID = m.nextID()
	m.projects[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetProject(_ context.Context, id int64) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, notFound("project")
	}
	return &p, nil
}

func (m *MemoryStore) FindProject(_ context.Context, libraryID int64, pid int) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.LibraryID == libraryID && p.PID == pid {
			return &p, nil
		}
	}
	return nil, notFound("project")
}

func (m *MemoryStore) ListProjects(_ context.Context, libraryID int64) ([]model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Project
	for _, p := range m.projects {
		if p.LibraryID == libraryID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (m *MemoryStore) GetOrCreateScenario(_ context.Context, sc *model.Scenario) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.scenarios {
		if x.ProjectID == sc.ProjectID && x.SID == sc.SID {
			*sc = x
			return false, nil
		}
	}
	sc.ID = m.nextID()
	m.scenarios[sc.ID] = *sc
	return true, nil
}

func (m *MemoryStore) GetScenario(_ context.Context, id int64) (*model.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.scenarios[id]
	if !ok {
		return nil, notFound("scenario")
	}
	return &sc, nil
}

func (m *MemoryStore) FindScenario(_ context.Context, projectID int64, sid int) (*model.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sc := range m.scenarios {
		if sc.ProjectID == projectID && sc.SID == sid {
			return &sc, nil
		}
	}
	return nil, notFound("scenario")
}

func (m *MemoryStore) ListScenarios(_ context.Context, projectID int64) ([]model.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Scenario
	for _, sc := range m.scenarios {
		if sc.ProjectID == projectID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out, nil
}

func (m *MemoryStore) insertRecords(recs []*model.Record) {
	for _, r := range recs {
		r.ID = m.nextID()
		m.records[r.ID] = copyRecord(*r)
	}
}

func (m *MemoryStore) CreateRecords(_ context.Context, recs []*model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertRecords(recs)
	return nil
}

func (m *MemoryStore) ReplaceScenarioRecords(_ context.Context, scenarioID int64, kind model.Kind, recs []*model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.Kind == kind && r.ScenarioID != nil && *r.ScenarioID == scenarioID {
			delete(m.records, id)
		}
	}
	m.insertRecords(recs)
	return nil
}

func (m *MemoryStore) ReplaceDefinitions(_ context.Context, projectID int64, kind model.Kind, recs []*model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := make(map[string]int64)
	for id, r := range m.records {
		if r.ProjectID != projectID || r.Kind != kind || r.ScenarioID != nil {
			continue
		}
		if r.Name == "" {
			delete(m.records, id)
			continue
		}
		byName[r.Name] = id
	}
	for _, r := range recs {
		if id, ok := byName[r.Name]; ok && r.Name != "" {
			r.ID = id
		} else {
			r.ID = m.nextID()
		}
		m.records[r.ID] = copyRecord(*r)
		if r.Name != "" {
			byName[r.Name] = r.ID
		}
	}
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, id int64) (*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, notFound("record")
	}
	r = copyRecord(r)
	return &r, nil
}

func matches(r model.Record, f RecordFilter) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.ProjectID != 0 && r.ProjectID != f.ProjectID {
		return false
	}
	if f.ScenarioID != 0 && (r.ScenarioID == nil || *r.ScenarioID != f.ScenarioID) {
		return false
	}
	if f.ReportID != 0 && (r.ReportID == nil || *r.ReportID != f.ReportID) {
		return false
	}
	return true
}

func (m *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Record
	for _, r := range m.records {
		if matches(r, f) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) FindDefinitions(_ context.Context, projectID int64, kind model.Kind, name string) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Record
	for _, r := range m.records {
		if r.ProjectID == projectID && r.Kind == kind && r.Name == name && r.ScenarioID == nil {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryStore) ReplaceReportRecords(_ context.Context, scenarioID int64, kind string, recs []*model.Record) (*model.Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rp, created, err := m.getOrCreateReport(scenarioID, kind)
	if err != nil {
		return nil, false, err
	}
	for id, r := range m.records {
		if r.ReportID != nil && *r.ReportID == rp.ID {
			delete(m.records, id)
		}
	}
	for _, r := range recs {
		r.ReportID = model.Int64Ptr(rp.ID)
	}
	m.insertRecords(recs)
	return rp, created, nil
}

func (m *MemoryStore) getOrCreateReport(scenarioID int64, kind string) (*model.Report, bool, error) {
	for _, rp := range m.reports {
		if rp.ScenarioID == scenarioID && rp.Kind == kind {
			return &rp, false, nil
		}
	}
	rp := model.Report{ID: m.nextID(), ScenarioID: scenarioID, Kind: kind, CreatedAt: time.Now()}
	m.reports[rp.ID] = rp
	return &rp, true, nil
}

func (m *MemoryStore) ListReports(_ context.Context, scenarioID int64) ([]model.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Report
	for _, rp := range m.reports {
		if rp.ScenarioID == scenarioID {
			out = append(out, rp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateJob(_ context.Context, job *model.AsyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.UUID]; ok {
		return exception.Newf(exception.KindValidation, module, "job %s already exists", job.UUID)
	}
	job.ID = m.nextID()
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	m.jobs[job.UUID] = *job
	return nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, job *model.AsyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.UUID]; !ok {
		return notFound("job " + job.UUID)
	}
	job.UpdatedAt = time.Now()
	m.jobs[job.UUID] = *job
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, uuid string) (*model.AsyncJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[uuid]
	if !ok {
		return nil, notFound("job " + uuid)
	}
	return &j, nil
}

func (m *MemoryStore) ListJobs(_ context.Context, libraryName string) ([]model.AsyncJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AsyncJob
	for _, j := range m.jobs {
		if j.LibraryName == libraryName {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
