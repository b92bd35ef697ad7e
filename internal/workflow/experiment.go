package workflow

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/medbench/engine/internal/coordinator"
	"github.com/medbench/engine/internal/domain"
)

// Activity names as registered by the worker. Struct activities register
// under their method names, so these must match coordinator.Activities.
const (
	processExperimentActivity     = "ProcessExperiment"
	processModelReviewersActivity = "ProcessModelReviewers"
	collateResultsActivity        = "CollateExperimentResults"
)

// defaultActivityTimeout bounds a single activity attempt when the request
// does not specify one. Trial generation calls out to model providers, so
// this is deliberately generous.
const defaultActivityTimeout = 10 * time.Minute

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ExperimentRequest is the workflow input identifying the experiment to run
// and how far to take it.
type ExperimentRequest struct {
	// ExperimentID selects the experiment to process.
	ExperimentID string `json:"experiment_id" validate:"required"`

	// RunModelReviewers drains model-reviewer trials between generation and
	// collation. Experiments reviewed only by humans leave this false and
	// collate whatever trials have been completed out of band.
	RunModelReviewers bool `json:"run_model_reviewers"`

	// ActivityTimeout overrides the per-attempt activity timeout. Zero means
	// the default.
	ActivityTimeout time.Duration `json:"activity_timeout,omitempty"`
}

// Validate checks the request before any activity is scheduled.
func (r *ExperimentRequest) Validate() error {
	return validate.Struct(r)
}

// ExperimentResult summarizes the run for the workflow caller.
type ExperimentResult struct {
	ExperimentID  string                  `json:"experiment_id"`
	Status        domain.ProcessingStatus `json:"status"`
	TotalTrials   int                     `json:"total_trials"`
	PendingTrials int                     `json:"pending_trials"`
}

// ExperimentWorkflow orchestrates one experiment end to end: generate trials,
// optionally drain model reviewers, then collate results. All workflow code
// must use workflow-safe APIs only.
func ExperimentWorkflow(
	ctx workflow.Context,
	req ExperimentRequest,
) (*ExperimentResult, error) {
	// Version gate enables safe evolution and backward compatibility.
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "experiment.v", workflow.DefaultVersion, currentVersion)

	// Validate request early to fail fast on invalid input.
	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid experiment request",
			"Validation",
			err,
		)
	}

	timeout := req.ActivityTimeout
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}

	// Configure standard timeouts and retry policy for all activities.
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting experiment workflow", "experiment_id", req.ExperimentID)

	var processed coordinator.ProcessExperimentOutput
	err := workflow.ExecuteActivity(ctx, processExperimentActivity,
		coordinator.ProcessExperimentInput{ExperimentID: req.ExperimentID},
	).Get(ctx, &processed)
	if err != nil {
		return nil, err
	}
	logger.Info("Experiment processed",
		"experiment_id", req.ExperimentID,
		"total_trials", processed.TotalTrials,
		"pending_trials", processed.PendingTrials)

	pending := processed.PendingTrials
	if req.RunModelReviewers {
		var reviewed coordinator.ProcessModelReviewersOutput
		err := workflow.ExecuteActivity(ctx, processModelReviewersActivity,
			coordinator.ProcessModelReviewersInput{ExperimentID: req.ExperimentID},
		).Get(ctx, &reviewed)
		if err != nil {
			return nil, err
		}
		pending = reviewed.PendingTrials
		logger.Info("Model reviewers drained",
			"experiment_id", req.ExperimentID,
			"pending_trials", pending)
	}

	var collated coordinator.CollateResultsOutput
	err = workflow.ExecuteActivity(ctx, collateResultsActivity,
		coordinator.CollateResultsInput{ExperimentID: req.ExperimentID},
	).Get(ctx, &collated)
	if err != nil {
		return nil, err
	}
	logger.Info("Experiment results collated",
		"experiment_id", req.ExperimentID,
		"status", collated.Status)

	return &ExperimentResult{
		ExperimentID:  req.ExperimentID,
		Status:        collated.Status,
		TotalTrials:   processed.TotalTrials,
		PendingTrials: pending,
	}, nil
}
