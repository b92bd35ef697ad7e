package domain

import "time"

// EloStart is the rating every model begins from before any Arena outcome.
const EloStart = 1500.0

// EloK is the fixed K-factor applied per decided Arena trial.
const EloK = 32.0

// ModelExperimentResults is the per-model statistics block maintained by the
// scoring engine. A copy lives on the model (keyed by evaluation metric) and
// on the clinical task (keyed by model id).
type ModelExperimentResults struct {
	EloScore               float64            `json:"elo_score"`
	Wins                   int                `json:"wins" validate:"min=0"`
	Losses                 int                `json:"losses" validate:"min=0"`
	CorrectScore           float64            `json:"correct_score"`
	AverageRating          float64            `json:"average_rating"`
	ValidationTime         float64            `json:"validation_time"` // mean review minutes
	SingleEvaluationScores map[string]float64 `json:"single_evaluation_scores,omitempty"`
	TrialCount             int                `json:"trial_count" validate:"min=0"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// NewModelExperimentResults returns a zero-history results block at the Elo
// starting rating.
func NewModelExperimentResults() ModelExperimentResults {
	return ModelExperimentResults{EloScore: EloStart}
}

// Model is a registered model under evaluation: identity, runner integration
// settings, per-token pricing, and the accumulated per-metric results.
type Model struct {
	ID              string            `json:"id" validate:"required"`
	Name            string            `json:"name" validate:"required"`
	Version         string            `json:"version,omitempty"`
	Description     string            `json:"description,omitempty"`
	IntegrationType string            `json:"integration_type,omitempty"`
	Integration     map[string]string `json:"integration,omitempty"`
	CostPerToken    float64           `json:"cost_per_token" validate:"min=0"`
	CostPerTokenOut float64           `json:"cost_per_token_out" validate:"min=0"`

	// ExperimentResults is the snapshot written by whole-experiment
	// collation. ExperimentResultsByMetric keys incremental results by the
	// clinical task's evaluation metric label, plus the synthetic "All"
	// aggregate.
	ExperimentResults         *ModelExperimentResults           `json:"experiment_results,omitempty"`
	ExperimentResultsByMetric map[string]ModelExperimentResults `json:"experiment_results_by_metric,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasIntegration reports whether the model declares a runner integration.
func (m *Model) HasIntegration() bool { return m.IntegrationType != "" }

// ResultsForMetric returns the model's results block for the given metric
// label, initialized at the Elo start when absent.
func (m *Model) ResultsForMetric(metric string) ModelExperimentResults {
	if r, ok := m.ExperimentResultsByMetric[metric]; ok {
		return r
	}
	return NewModelExperimentResults()
}

// SetResultsForMetric stores a results block under the given metric label.
func (m *Model) SetResultsForMetric(metric string, r ModelExperimentResults) {
	if m.ExperimentResultsByMetric == nil {
		m.ExperimentResultsByMetric = make(map[string]ModelExperimentResults)
	}
	m.ExperimentResultsByMetric[metric] = r
}

// Validate checks the model against its structural constraints.
func (m *Model) Validate() error { return validate.Struct(m) }
