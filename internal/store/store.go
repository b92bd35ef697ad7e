// Package store defines the persistence contracts the engine consumes and
// in-memory implementations used by tests and local development. The engine
// never talks to a database directly; every operation receives the narrow
// interfaces it needs.
package store

import (
	"context"

	"github.com/medbench/engine/internal/domain"
)

// ExperimentStore persists experiments.
type ExperimentStore interface {
	Get(ctx context.Context, id string) (*domain.Experiment, error)
	Update(ctx context.Context, e *domain.Experiment) error
}

// TrialStore persists trials.
type TrialStore interface {
	Create(ctx context.Context, t *domain.Trial) error
	Get(ctx context.Context, id string) (*domain.Trial, error)
	Update(ctx context.Context, t *domain.Trial) error
	GetByExperimentID(ctx context.Context, experimentID string) ([]*domain.Trial, error)
	GetByExperimentAndDataObject(ctx context.Context, experimentID, dataObjectID string) ([]*domain.Trial, error)
	DeleteByExperimentID(ctx context.Context, experimentID string) error
	CountPendingForExperiment(ctx context.Context, experimentID string) (int, error)
}

// DataObjectStore reads and writes dataset instances.
type DataObjectStore interface {
	GetByDataSetID(ctx context.Context, dataSetID string) ([]*domain.DataObject, error)
	UpdateMany(ctx context.Context, objs []*domain.DataObject) error
}

// DataSetStore persists datasets.
type DataSetStore interface {
	Get(ctx context.Context, id string) (*domain.DataSet, error)
	Update(ctx context.Context, s *domain.DataSet) error
}

// ModelStore persists registered models.
type ModelStore interface {
	Get(ctx context.Context, id string) (*domain.Model, error)
	Update(ctx context.Context, m *domain.Model) error
}

// TestScenarioStore reads test scenarios.
type TestScenarioStore interface {
	Get(ctx context.Context, id string) (*domain.TestScenario, error)
}

// ClinicalTaskStore persists clinical tasks.
type ClinicalTaskStore interface {
	Get(ctx context.Context, id string) (*domain.ClinicalTask, error)
	Update(ctx context.Context, t *domain.ClinicalTask) error
}

// UserStore persists reviewers.
type UserStore interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	ListModelReviewers(ctx context.Context) ([]*domain.User, error)
}

// BlobStore uploads export documents to object storage. Upload returns the
// blob name the document is reachable under.
type BlobStore interface {
	Upload(ctx context.Context, container, name string, data []byte) (string, error)
}
