package trialgen

import (
	"fmt"

	"github.com/medbench/engine/internal/runner"
)

// BatchError marks a whole generation batch failed. A single generation
// failure aborts the entire ProcessExperiment call rather than leaving a
// partial trial set behind. The wrapped cause keeps the runner's
// retryability classification so the coordinator can tell transient failures
// from ones needing operator attention.
type BatchError struct {
	ExperimentID string
	DataObjectID string
	ModelID      string
	Err          error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("generation failed for experiment %s (data object %s, model %s): %v",
		e.ExperimentID, e.DataObjectID, e.ModelID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Retryable reports whether the underlying runner failure was transient.
func (e *BatchError) Retryable() bool { return runner.IsRetryable(e.Err) }
