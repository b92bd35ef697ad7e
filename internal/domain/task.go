package domain

import "time"

// GenerationStatus tracks bulk output generation for a clinical task.
type GenerationStatus string

const (
	GenerationIdle       GenerationStatus = "idle"
	GenerationProcessing GenerationStatus = "processing"
	GenerationComplete   GenerationStatus = "complete"
	GenerationError      GenerationStatus = "error"
)

// Evaluation metric labels declared on clinical tasks. The set is open
// (custom labels are allowed); these are the ones the metrics exporter maps
// to downstream metric types.
const (
	MetricTextBased  = "Text-based metrics"
	MetricImageBased = "Image-based metrics"
	MetricAccuracy   = "Accuracy metrics"
	MetricSafety     = "Safety metrics"
	MetricBias       = "Bias metrics"

	// MetricAll is the synthetic label under which cross-metric aggregate
	// results are stored on a model.
	MetricAll = "All"

	// MetricBinaryValidation is the reserved question-level label: "yes"
	// contributes 1, any other answer 0, to a running average.
	MetricBinaryValidation = "Binary Validation"
)

// GeneratedNone is the ModelOutputIndex sentinel meaning the pairing's
// output must be generated rather than read from an uploaded column.
const GeneratedNone = -1

// DataSetModel pairs a dataset with a model and declares where that model's
// answer comes from: an uploaded output column (ModelOutputIndex >= 0), a
// generation run (GeneratedNone), or the ground-truth reference.
type DataSetModel struct {
	DataSetID          string `json:"data_set_id" validate:"required"`
	ModelID            string `json:"model_id" validate:"required"`
	ModelOutputIndex   int    `json:"model_output_index" validate:"min=-1"`
	GeneratedOutputKey string `json:"generated_output_key"`
	IsGroundTruth      bool   `json:"is_ground_truth"`
}

// RequiresGeneration reports whether this pairing's output must be produced
// by a model runner rather than read from uploaded data.
func (dm DataSetModel) RequiresGeneration() bool {
	return !dm.IsGroundTruth && dm.ModelOutputIndex == GeneratedNone
}

// ClinicalTask declares a prompt, an evaluation-metric label, and the
// dataset-model pairings an experiment over it will expand. ModelResults is
// the experiment-agnostic per-model summary the scoring engine maintains.
type ClinicalTask struct {
	ID                      string                            `json:"id" validate:"required"`
	Name                    string                            `json:"name"`
	Prompt                  string                            `json:"prompt,omitempty"`
	EvalMetric              string                            `json:"eval_metric"`
	DataSetModels           []DataSetModel                    `json:"data_set_models" validate:"dive"`
	GenerationStatus        GenerationStatus                  `json:"generation_status"`
	MetricsGenerationStatus GenerationStatus                  `json:"metrics_generation_status"`
	TotalCost               float64                           `json:"total_cost" validate:"min=0"`
	ModelResults            map[string]ModelExperimentResults `json:"model_results,omitempty"`
	Tags                    []string                          `json:"tags,omitempty"`
	OwnerID                 string                            `json:"owner_id,omitempty"`
	CreatedAt               time.Time                         `json:"created_at"`
	UpdatedAt               time.Time                         `json:"updated_at"`
}

// GroundTruthPairing returns the pairing flagged as the reference answer,
// or nil when the task declares none.
func (t *ClinicalTask) GroundTruthPairing() *DataSetModel {
	for i := range t.DataSetModels {
		if t.DataSetModels[i].IsGroundTruth {
			return &t.DataSetModels[i]
		}
	}
	return nil
}

// Validate checks the task against its structural constraints.
func (t *ClinicalTask) Validate() error { return validate.Struct(t) }
