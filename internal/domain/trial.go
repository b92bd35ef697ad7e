package domain

import (
	"fmt"
	"time"
)

// TrialStatus tracks one trial through review.
type TrialStatus string

const (
	// TrialPending means the trial awaits a reviewer response.
	TrialPending TrialStatus = "pending"

	// TrialDone means a response (or an error marker) has been recorded.
	TrialDone TrialStatus = "done"

	// TrialBlocked means a generation-required pairing could not be
	// resolved and no runner was available. Blocked trials are excluded
	// from pending counts and from collation; re-processing the experiment
	// with a configured runner replaces them.
	TrialBlocked TrialStatus = "blocked"
)

// ModelOutput is the resolved answer for one model, attached to a trial.
type ModelOutput struct {
	ModelID string        `json:"model_id" validate:"required"`
	Output  []DataContent `json:"output"`
}

// TrialResponse records a reviewer's judgement. For Arena trials the ModelID
// field carries the comma-joined pair of model ids in preference order.
type TrialResponse struct {
	ModelID string `json:"model_id"`
	Text    string `json:"text"`
}

// BoundingBox is a spatial annotation derived from CXR-style structured
// outputs. Coordinates are 0-1 fractions of the image dimensions.
type BoundingBox struct {
	ID             string    `json:"id"`
	X              float64   `json:"x" validate:"min=0,max=1"`
	Y              float64   `json:"y" validate:"min=0,max=1"`
	Width          float64   `json:"width" validate:"min=0,max=1"`
	Height         float64   `json:"height" validate:"min=0,max=1"`
	ModelID        string    `json:"model_id"`
	Annotation     string    `json:"annotation,omitempty"`
	CoordinateType string    `json:"coordinate_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrialFlag records a reviewer flagging one model's output on a trial.
type TrialFlag struct {
	ModelID   string    `json:"model_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	FlagTags  []string  `json:"flag_tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Trial is one unit of review work shown to one reviewer: one data object
// plus one or two resolved model outputs. The experiment type is copied at
// creation time and never re-derived. Trials are created once by the trial
// generator and mutated only by the reviewer-response step.
type Trial struct {
	ID                   string          `json:"id" validate:"required"`
	UserID               string          `json:"user_id" validate:"required"`
	ExperimentID         string          `json:"experiment_id" validate:"required"`
	ExperimentType       ExperimentType  `json:"experiment_type" validate:"required"`
	Status               TrialStatus     `json:"status" validate:"required"`
	Prompt               string          `json:"prompt,omitempty"`
	ReviewerInstructions string          `json:"reviewer_instructions,omitempty"`
	DataObjectID         string          `json:"data_object_id,omitempty"`
	DataSetID            string          `json:"data_set_id,omitempty"`
	TestScenarioID       string          `json:"test_scenario_id,omitempty"`
	ModelInputs          []DataContent   `json:"model_inputs,omitempty"`
	ModelOutputs         []ModelOutput   `json:"model_outputs"`
	BoundingBoxes        []BoundingBox   `json:"bounding_boxes,omitempty"`
	Questions            []EvalQuestion  `json:"questions,omitempty"`
	AllowOutputEditing   bool            `json:"allow_output_editing"`
	Response             *TrialResponse  `json:"response,omitempty"`
	ErrorText            string          `json:"error_text,omitempty"`
	Flags                []TrialFlag     `json:"flags,omitempty"`
	TotalTime            float64         `json:"total_time" validate:"min=0"` // accumulated review time in minutes
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	StartedOn            time.Time       `json:"started_on,omitzero"`
}

// Validate checks structural constraints plus the output-cardinality
// invariant: Arena trials carry exactly two model outputs, every other type
// exactly one. Blocked trials are exempt (they record the gap explicitly).
func (t *Trial) Validate() error {
	if err := validate.Struct(t); err != nil {
		return err
	}
	if !t.ExperimentType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownExperimentType, t.ExperimentType)
	}
	if t.Status == TrialBlocked {
		return nil
	}
	if want := t.ExperimentType.OutputsPerTrial(); len(t.ModelOutputs) != want {
		return fmt.Errorf("%w: %s trial has %d outputs, want %d",
			ErrOutputCardinality, t.ExperimentType, len(t.ModelOutputs), want)
	}
	return nil
}

// IsDone reports whether the trial has a recorded outcome.
func (t *Trial) IsDone() bool { return t.Status == TrialDone }

// HasModelOutput reports whether any output on the trial belongs to modelID.
func (t *Trial) HasModelOutput(modelID string) bool {
	for _, out := range t.ModelOutputs {
		if out.ModelID == modelID {
			return true
		}
	}
	return false
}
