package domain

import "time"

// EvalQuestionOption is one selectable answer on an evaluation question.
type EvalQuestionOption struct {
	Label string  `json:"label"`
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

// EvalQuestion is one question asked during a Single Evaluation trial. The
// EvalMetric label keys the per-question score buckets produced by scoring;
// the reserved label "Binary Validation" averages yes/no answers as 1/0.
// Scenario questions are copied onto each trial at creation time, and the
// trial's copy accumulates the reviewer's Response per question.
type EvalQuestion struct {
	Text       string               `json:"question_text" validate:"required"`
	EvalMetric string               `json:"eval_metric"`
	Options    []EvalQuestionOption `json:"options,omitempty"`
	Response   string               `json:"response,omitempty"`
}

// TestScenario binds a clinical task to the review configuration an
// experiment expands: the question list, reviewer instructions, and display
// toggles copied onto each trial at creation time.
type TestScenario struct {
	ID                   string         `json:"id" validate:"required"`
	Name                 string         `json:"name"`
	ClinicalTaskID       string         `json:"clinical_task_id" validate:"required"`
	ModelIDs             []string       `json:"model_ids"`
	ReviewerInstructions string         `json:"reviewer_instructions,omitempty"`
	Questions            []EvalQuestion `json:"questions,omitempty" validate:"dive"`
	IncludeInputData     bool           `json:"include_input_data"`
	AllowOutputEditing   bool           `json:"allow_output_editing"`
	OwnerID              string         `json:"owner_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Validate checks the scenario against its structural constraints.
func (s *TestScenario) Validate() error { return validate.Struct(s) }
