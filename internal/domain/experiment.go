// Package domain provides the core types and business rules for the clinical
// experiment trial engine. It defines experiments, test scenarios, clinical
// tasks, data objects, trials, and per-model result structures used throughout
// the processing and collation pipeline. The types are designed to keep every
// invariant the engine relies on (trial output cardinality, lifecycle
// transitions, append-only generated outputs) enforceable at construction time.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ExperimentType identifies how reviewers interact with a trial and how its
// responses are later collated. Using typed constants instead of raw strings
// provides compile-time safety at the classification switch points.
type ExperimentType string

const (
	// ExperimentArena is a pairwise preference comparison between exactly
	// two model outputs per trial.
	ExperimentArena ExperimentType = "Arena"

	// ExperimentSimpleValidation asks a yes/no correctness question about a
	// single model output.
	ExperimentSimpleValidation ExperimentType = "Simple Validation"

	// ExperimentFullValidation asks the reviewer to correct the output;
	// only wall-clock time is aggregated.
	ExperimentFullValidation ExperimentType = "Full Validation"

	// ExperimentSimpleEvaluation asks for a 1-5 rating of a single output.
	ExperimentSimpleEvaluation ExperimentType = "Simple Evaluation"

	// ExperimentSingleEvaluation presents a question list; scores are keyed
	// by each question's evaluation metric rather than the experiment type.
	ExperimentSingleEvaluation ExperimentType = "Single Evaluation"
)

// Valid reports whether t is one of the known experiment types.
func (t ExperimentType) Valid() bool {
	switch t {
	case ExperimentArena, ExperimentSimpleValidation, ExperimentFullValidation,
		ExperimentSimpleEvaluation, ExperimentSingleEvaluation:
		return true
	}
	return false
}

// OutputsPerTrial returns the number of model outputs a trial of this type
// must carry: exactly 2 for Arena, exactly 1 for everything else.
func (t ExperimentType) OutputsPerTrial() int {
	if t == ExperimentArena {
		return 2
	}
	return 1
}

// ProcessingStatus tracks an experiment through the trial-generation and
// collation lifecycle. Transitions follow
// Draft -> Processing -> Processed -> Finalizing -> Final, with Error
// reachable from any in-flight step. The only way out of Error is a fresh
// ProcessExperiment call, which deletes and regenerates all trials.
type ProcessingStatus string

const (
	// StatusDraft is the initial state before any processing was triggered.
	StatusDraft ProcessingStatus = "Draft"

	// StatusProcessing is held while ProcessExperiment is generating trials.
	StatusProcessing ProcessingStatus = "Processing"

	// StatusProcessed means the full trial set exists and is awaiting review.
	StatusProcessed ProcessingStatus = "Processed"

	// StatusFinalizing is held while results collation is running.
	StatusFinalizing ProcessingStatus = "Finalizing"

	// StatusFinal means per-model results have been collated and persisted.
	StatusFinal ProcessingStatus = "Final"

	// StatusError records a failed processing or collation attempt.
	StatusError ProcessingStatus = "Error"
)

// ErrInvalidTransition indicates a lifecycle transition the state machine
// does not permit.
var ErrInvalidTransition = errors.New("invalid processing status transition")

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Error is reachable from any in-flight state, and a fresh processing
// run may restart from any state (re-processing deletes prior trials).
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	if next == StatusError {
		return true
	}
	// Re-processing is always allowed; it is the designated recovery path.
	if next == StatusProcessing {
		return true
	}
	switch s {
	case StatusProcessing:
		return next == StatusProcessed
	case StatusProcessed:
		return next == StatusFinalizing
	case StatusFinalizing:
		return next == StatusFinal
	case StatusFinal:
		return next == StatusFinalizing // results may be re-collated
	}
	return false
}

// Experiment binds a test scenario to a set of reviewers and records the
// processing lifecycle plus trial counters. It is owned by the admin layer;
// the engine mutates it only during processing and collation.
type Experiment struct {
	ID               string           `json:"id" validate:"required"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	TestScenarioID   string           `json:"test_scenario_id" validate:"required"`
	ExperimentType   ExperimentType   `json:"experiment_type" validate:"required"`
	ReviewerIDs      []string         `json:"reviewer_ids" validate:"required,min=1"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	TotalTrials      int              `json:"total_trials" validate:"min=0"`
	PendingTrials    int              `json:"pending_trials" validate:"min=0"`
	TotalCost        float64          `json:"total_cost" validate:"min=0"`
	OwnerID          string           `json:"owner_id,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Validate checks the experiment against its structural constraints.
func (e *Experiment) Validate() error {
	if err := validate.Struct(e); err != nil {
		return err
	}
	if !e.ExperimentType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownExperimentType, e.ExperimentType)
	}
	return nil
}

// SetStatus transitions the experiment's lifecycle state, enforcing the
// state machine. The timestamp is injected for deterministic tests.
func (e *Experiment) SetStatus(next ProcessingStatus, now time.Time) error {
	if !e.ProcessingStatus.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.ProcessingStatus, next)
	}
	e.ProcessingStatus = next
	e.UpdatedAt = now
	return nil
}
