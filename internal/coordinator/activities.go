package coordinator

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/runner"
	"github.com/medbench/engine/internal/trialgen"
	"github.com/medbench/engine/pkg/activity"
)

// ProcessExperimentInput identifies the experiment to expand into trials.
type ProcessExperimentInput struct {
	ExperimentID string `json:"experiment_id"`
}

// ProcessExperimentOutput reports the state after a processing run.
type ProcessExperimentOutput struct {
	Status        domain.ProcessingStatus `json:"status"`
	TotalTrials   int                     `json:"total_trials"`
	PendingTrials int                     `json:"pending_trials"`
}

// CollateResultsInput identifies the experiment to collate.
type CollateResultsInput struct {
	ExperimentID string `json:"experiment_id"`
}

// CollateResultsOutput reports the lifecycle state after collation.
type CollateResultsOutput struct {
	Status domain.ProcessingStatus `json:"status"`
}

// ProcessModelReviewersInput identifies the experiment whose model-reviewer
// trials should be drained.
type ProcessModelReviewersInput struct {
	ExperimentID string `json:"experiment_id"`
}

// ProcessModelReviewersOutput reports the pending count after the loop.
type ProcessModelReviewersOutput struct {
	PendingTrials int `json:"pending_trials"`
}

// GenerateTaskOutputsInput identifies the clinical task to pre-generate.
type GenerateTaskOutputsInput struct {
	ClinicalTaskID string `json:"clinical_task_id"`
}

// GenerateTaskOutputsOutput reports generation state and accumulated cost.
type GenerateTaskOutputsOutput struct {
	GenerationStatus domain.GenerationStatus `json:"generation_status"`
	TotalCost        float64                 `json:"total_cost"`
}

// Activities exposes the coordinator's operations as Temporal activities,
// mapping engine errors onto retryable/non-retryable application errors and
// emitting milestone events.
type Activities struct {
	activity.BaseActivities
	coord  *Coordinator
	events *EventEmitter
}

// NewActivities wraps a coordinator for registration with a Temporal worker.
func NewActivities(base activity.BaseActivities, coord *Coordinator) *Activities {
	return &Activities{
		BaseActivities: base,
		coord:          coord,
		events:         NewEventEmitter(base),
	}
}

// ProcessExperiment runs trial generation for one experiment.
func (a *Activities) ProcessExperiment(
	ctx context.Context,
	input ProcessExperimentInput,
) (*ProcessExperimentOutput, error) {
	if input.ExperimentID == "" {
		return nil, nonRetryable("ProcessExperiment", nil, "experiment id is required")
	}

	wfCtx := a.GetWorkflowContext(ctx)
	activity.SafeLog(ctx, "Starting ProcessExperiment activity",
		"experiment_id", input.ExperimentID,
		"workflow_id", wfCtx.WorkflowID)
	a.RecordHeartbeat(ctx, "processing "+input.ExperimentID)

	if err := a.coord.ProcessExperiment(ctx, input.ExperimentID); err != nil {
		return nil, classify("ProcessExperiment", err)
	}

	exp, err := a.coord.experiments.Get(ctx, input.ExperimentID)
	if err != nil {
		return nil, classify("ProcessExperiment", err)
	}

	a.events.EmitExperimentProcessed(ctx, exp.ID, exp.TotalTrials, exp.PendingTrials, wfCtx)
	return &ProcessExperimentOutput{
		Status:        exp.ProcessingStatus,
		TotalTrials:   exp.TotalTrials,
		PendingTrials: exp.PendingTrials,
	}, nil
}

// CollateExperimentResults finalizes one experiment's results.
func (a *Activities) CollateExperimentResults(
	ctx context.Context,
	input CollateResultsInput,
) (*CollateResultsOutput, error) {
	if input.ExperimentID == "" {
		return nil, nonRetryable("CollateExperimentResults", nil, "experiment id is required")
	}

	wfCtx := a.GetWorkflowContext(ctx)
	a.RecordHeartbeat(ctx, "collating "+input.ExperimentID)

	if err := a.coord.CollateExperimentResults(ctx, input.ExperimentID); err != nil {
		return nil, classify("CollateExperimentResults", err)
	}

	exp, err := a.coord.experiments.Get(ctx, input.ExperimentID)
	if err != nil {
		return nil, classify("CollateExperimentResults", err)
	}

	a.events.EmitResultsCollated(ctx, exp.ID, wfCtx)
	return &CollateResultsOutput{Status: exp.ProcessingStatus}, nil
}

// ProcessModelReviewers drains pending model-reviewer trials.
func (a *Activities) ProcessModelReviewers(
	ctx context.Context,
	input ProcessModelReviewersInput,
) (*ProcessModelReviewersOutput, error) {
	if input.ExperimentID == "" {
		return nil, nonRetryable("ProcessModelReviewers", nil, "experiment id is required")
	}
	a.RecordHeartbeat(ctx, "reviewing "+input.ExperimentID)

	if err := a.coord.ProcessModelReviewers(ctx, input.ExperimentID); err != nil {
		return nil, classify("ProcessModelReviewers", err)
	}

	exp, err := a.coord.experiments.Get(ctx, input.ExperimentID)
	if err != nil {
		return nil, classify("ProcessModelReviewers", err)
	}
	return &ProcessModelReviewersOutput{PendingTrials: exp.PendingTrials}, nil
}

// GenerateClinicalTaskOutputs pre-generates model outputs for a task.
func (a *Activities) GenerateClinicalTaskOutputs(
	ctx context.Context,
	input GenerateTaskOutputsInput,
) (*GenerateTaskOutputsOutput, error) {
	if input.ClinicalTaskID == "" {
		return nil, nonRetryable("GenerateClinicalTaskOutputs", nil, "clinical task id is required")
	}
	a.RecordHeartbeat(ctx, "generating "+input.ClinicalTaskID)

	if err := a.coord.GenerateClinicalTaskOutputs(ctx, input.ClinicalTaskID); err != nil {
		return nil, classify("GenerateClinicalTaskOutputs", err)
	}

	task, err := a.coord.tasks.Get(ctx, input.ClinicalTaskID)
	if err != nil {
		return nil, classify("GenerateClinicalTaskOutputs", err)
	}
	return &GenerateTaskOutputsOutput{
		GenerationStatus: task.GenerationStatus,
		TotalCost:        task.TotalCost,
	}, nil
}

// classify maps an engine error onto Temporal retry semantics. Transient
// provider failures retry; structural problems (missing entities, illegal
// transitions, unparsable configuration) do not.
func classify(tag string, err error) error {
	var batchErr *trialgen.BatchError
	if errors.As(err, &batchErr) {
		if batchErr.Retryable() {
			return retryable(tag, err, "transient generation failure")
		}
		return nonRetryable(tag, err, "generation failed")
	}
	if runner.IsRetryable(err) {
		return retryable(tag, err, "transient provider failure")
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoQualifyingPairings),
		errors.Is(err, domain.ErrUnknownExperimentType):
		return nonRetryable(tag, err, err.Error())
	}
	return retryable(tag, err, err.Error())
}

// nonRetryable wraps an error so Temporal will not retry the activity.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps a transient failure for retry with backoff.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationError(msg, tag, cause)
}
