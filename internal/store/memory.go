package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/medbench/engine/internal/domain"
)

// Memory is an in-process implementation of every store contract, keyed by
// entity id. Values are stored as pointers; callers own copy semantics, which
// matches how the engine threads entities through one operation at a time.
type Memory struct {
	mu          sync.RWMutex
	experiments map[string]*domain.Experiment
	trials      map[string]*domain.Trial
	dataObjects map[string]*domain.DataObject
	dataSets    map[string]*domain.DataSet
	models      map[string]*domain.Model
	scenarios   map[string]*domain.TestScenario
	tasks       map[string]*domain.ClinicalTask
	users       map[string]*domain.User
	blobs       map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		experiments: make(map[string]*domain.Experiment),
		trials:      make(map[string]*domain.Trial),
		dataObjects: make(map[string]*domain.DataObject),
		dataSets:    make(map[string]*domain.DataSet),
		models:      make(map[string]*domain.Model),
		scenarios:   make(map[string]*domain.TestScenario),
		tasks:       make(map[string]*domain.ClinicalTask),
		users:       make(map[string]*domain.User),
		blobs:       make(map[string][]byte),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
}

// Seed helpers used by tests and local bootstrap.

func (m *Memory) PutExperiment(e *domain.Experiment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.experiments[e.ID] = e
}

func (m *Memory) PutDataObject(o *domain.DataObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataObjects[o.ID] = o
}

func (m *Memory) PutDataSet(s *domain.DataSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataSets[s.ID] = s
}

func (m *Memory) PutModel(mod *domain.Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[mod.ID] = mod
}

func (m *Memory) PutTestScenario(s *domain.TestScenario) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[s.ID] = s
}

func (m *Memory) PutClinicalTask(t *domain.ClinicalTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

func (m *Memory) PutUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// ExperimentStore.

func (m *Memory) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, notFound("experiment", id)
	}
	return e, nil
}

func (m *Memory) Update(ctx context.Context, e *domain.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.experiments[e.ID] = e
	return nil
}

// Experiments returns the experiment-store view of the memory store.
func (m *Memory) Experiments() ExperimentStore { return m }

// Trials returns the trial-store view of the memory store.
func (m *Memory) Trials() TrialStore { return (*memoryTrials)(m) }

// DataObjects returns the data-object-store view of the memory store.
func (m *Memory) DataObjects() DataObjectStore { return (*memoryDataObjects)(m) }

// DataSets returns the dataset-store view of the memory store.
func (m *Memory) DataSets() DataSetStore { return (*memoryDataSets)(m) }

// Models returns the model-store view of the memory store.
func (m *Memory) Models() ModelStore { return (*memoryModels)(m) }

// TestScenarios returns the scenario-store view of the memory store.
func (m *Memory) TestScenarios() TestScenarioStore { return (*memoryScenarios)(m) }

// ClinicalTasks returns the task-store view of the memory store.
func (m *Memory) ClinicalTasks() ClinicalTaskStore { return (*memoryTasks)(m) }

// Users returns the user-store view of the memory store.
func (m *Memory) Users() UserStore { return (*memoryUsers)(m) }

// Blobs returns the blob-store view of the memory store.
func (m *Memory) Blobs() BlobStore { return (*memoryBlobs)(m) }

// Blob returns an uploaded blob's bytes for test assertions.
func (m *Memory) Blob(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[name]
	return b, ok
}

type memoryTrials Memory

func (m *memoryTrials) Create(ctx context.Context, t *domain.Trial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials[t.ID] = t
	return nil
}

func (m *memoryTrials) Get(ctx context.Context, id string) (*domain.Trial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trials[id]
	if !ok {
		return nil, notFound("trial", id)
	}
	return t, nil
}

func (m *memoryTrials) Update(ctx context.Context, t *domain.Trial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials[t.ID] = t
	return nil
}

func (m *memoryTrials) GetByExperimentID(ctx context.Context, experimentID string) ([]*domain.Trial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trial
	for _, t := range m.trials {
		if t.ExperimentID == experimentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryTrials) GetByExperimentAndDataObject(ctx context.Context, experimentID, dataObjectID string) ([]*domain.Trial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trial
	for _, t := range m.trials {
		if t.ExperimentID == experimentID && t.DataObjectID == dataObjectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryTrials) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.trials {
		if t.ExperimentID == experimentID {
			delete(m.trials, id)
		}
	}
	return nil
}

func (m *memoryTrials) CountPendingForExperiment(ctx context.Context, experimentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.trials {
		if t.ExperimentID == experimentID && t.Status == domain.TrialPending {
			n++
		}
	}
	return n, nil
}

type memoryDataObjects Memory

func (m *memoryDataObjects) GetByDataSetID(ctx context.Context, dataSetID string) ([]*domain.DataObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.DataObject
	for _, o := range m.dataObjects {
		if o.DataSetID == dataSetID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memoryDataObjects) UpdateMany(ctx context.Context, objs []*domain.DataObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range objs {
		m.dataObjects[o.ID] = o
	}
	return nil
}

type memoryDataSets Memory

func (m *memoryDataSets) Get(ctx context.Context, id string) (*domain.DataSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.dataSets[id]
	if !ok {
		return nil, notFound("dataset", id)
	}
	return s, nil
}

func (m *memoryDataSets) Update(ctx context.Context, s *domain.DataSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataSets[s.ID] = s
	return nil
}

type memoryModels Memory

func (m *memoryModels) Get(ctx context.Context, id string) (*domain.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.models[id]
	if !ok {
		return nil, notFound("model", id)
	}
	return mod, nil
}

func (m *memoryModels) Update(ctx context.Context, mod *domain.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[mod.ID] = mod
	return nil
}

type memoryScenarios Memory

func (m *memoryScenarios) Get(ctx context.Context, id string) (*domain.TestScenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scenarios[id]
	if !ok {
		return nil, notFound("test scenario", id)
	}
	return s, nil
}

type memoryTasks Memory

func (m *memoryTasks) Get(ctx context.Context, id string) (*domain.ClinicalTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, notFound("clinical task", id)
	}
	return t, nil
}

func (m *memoryTasks) Update(ctx context.Context, t *domain.ClinicalTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

type memoryUsers Memory

func (m *memoryUsers) Get(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return u, nil
}

func (m *memoryUsers) Update(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memoryUsers) ListModelReviewers(ctx context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.User
	for _, u := range m.users {
		if u.IsModelReviewer() {
			out = append(out, u)
		}
	}
	return out, nil
}

type memoryBlobs Memory

func (m *memoryBlobs) Upload(ctx context.Context, container, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[container+"/"+name] = data
	return name, nil
}
