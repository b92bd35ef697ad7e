package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medbench/engine/pkg/activity"
	"github.com/medbench/engine/pkg/events"
)

// experimentProcessedEvent marks a completed trial-generation run.
type experimentProcessedEvent struct {
	ExperimentID  string    `json:"experiment_id"`
	TotalTrials   int       `json:"total_trials"`
	PendingTrials int       `json:"pending_trials"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// resultsCollatedEvent marks a completed collation run.
type resultsCollatedEvent struct {
	ExperimentID string    `json:"experiment_id"`
	CollatedAt   time.Time `json:"collated_at"`
}

// EventEmitter publishes coordinator milestones as domain events.
type EventEmitter struct {
	base activity.BaseActivities
}

// NewEventEmitter returns an emitter publishing through base's sink.
func NewEventEmitter(base activity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// EmitExperimentProcessed publishes the outcome of a processing run. The
// idempotency key folds in the workflow run so Temporal retries deduplicate.
func (e *EventEmitter) EmitExperimentProcessed(
	ctx context.Context,
	experimentID string,
	totalTrials, pendingTrials int,
	wfCtx activity.WorkflowContext,
) {
	payload, err := json.Marshal(experimentProcessedEvent{
		ExperimentID:  experimentID,
		TotalTrials:   totalTrials,
		PendingTrials: pendingTrials,
		ProcessedAt:   time.Now(),
	})
	if err != nil {
		activity.SafeLogError(ctx, "Failed to marshal processed event",
			"experiment_id", experimentID, "error", err)
		return
	}

	e.base.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.NewString(),
		Type:           "experiment.processed",
		Source:         "experiment-activity",
		Version:        "1.0.0",
		Timestamp:      time.Now(),
		IdempotencyKey: fmt.Sprintf("processed-%s-%s", experimentID, wfCtx.RunID),
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        payload,
	}, fmt.Sprintf("ExperimentProcessed[%s]", experimentID))
}

// EmitResultsCollated publishes the completion of a collation run.
func (e *EventEmitter) EmitResultsCollated(
	ctx context.Context,
	experimentID string,
	wfCtx activity.WorkflowContext,
) {
	payload, err := json.Marshal(resultsCollatedEvent{
		ExperimentID: experimentID,
		CollatedAt:   time.Now(),
	})
	if err != nil {
		activity.SafeLogError(ctx, "Failed to marshal collated event",
			"experiment_id", experimentID, "error", err)
		return
	}

	e.base.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.NewString(),
		Type:           "experiment.results_collated",
		Source:         "experiment-activity",
		Version:        "1.0.0",
		Timestamp:      time.Now(),
		IdempotencyKey: fmt.Sprintf("collated-%s-%s", experimentID, wfCtx.RunID),
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        payload,
	}, fmt.Sprintf("ResultsCollated[%s]", experimentID))
}
