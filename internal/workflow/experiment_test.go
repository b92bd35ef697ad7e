package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/medbench/engine/internal/coordinator"
	"github.com/medbench/engine/internal/domain"
)

// activityCalls records which coordinator activities the workflow invoked,
// in order.
type activityCalls struct {
	names []string
}

func registerStubActivities(
	env *testsuite.TestWorkflowEnvironment,
	calls *activityCalls,
	processErr, reviewErr, collateErr error,
) {
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in coordinator.ProcessExperimentInput) (*coordinator.ProcessExperimentOutput, error) {
			calls.names = append(calls.names, processExperimentActivity)
			if processErr != nil {
				return nil, processErr
			}
			return &coordinator.ProcessExperimentOutput{
				Status:        domain.StatusProcessed,
				TotalTrials:   6,
				PendingTrials: 6,
			}, nil
		},
		activity.RegisterOptions{Name: processExperimentActivity},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in coordinator.ProcessModelReviewersInput) (*coordinator.ProcessModelReviewersOutput, error) {
			calls.names = append(calls.names, processModelReviewersActivity)
			if reviewErr != nil {
				return nil, reviewErr
			}
			return &coordinator.ProcessModelReviewersOutput{PendingTrials: 0}, nil
		},
		activity.RegisterOptions{Name: processModelReviewersActivity},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in coordinator.CollateResultsInput) (*coordinator.CollateResultsOutput, error) {
			calls.names = append(calls.names, collateResultsActivity)
			if collateErr != nil {
				return nil, collateErr
			}
			return &coordinator.CollateResultsOutput{Status: domain.StatusFinal}, nil
		},
		activity.RegisterOptions{Name: collateResultsActivity},
	)
}

func TestExperimentWorkflow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}

	t.Run("processes and collates without model reviewers", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var calls activityCalls
		registerStubActivities(env, &calls, nil, nil, nil)

		env.ExecuteWorkflow(ExperimentWorkflow, ExperimentRequest{ExperimentID: "exp-1"})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ExperimentResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, "exp-1", result.ExperimentID)
		assert.Equal(t, domain.StatusFinal, result.Status)
		assert.Equal(t, 6, result.TotalTrials)
		assert.Equal(t, 6, result.PendingTrials)

		assert.Equal(t, []string{processExperimentActivity, collateResultsActivity}, calls.names)
	})

	t.Run("drains model reviewers when requested", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var calls activityCalls
		registerStubActivities(env, &calls, nil, nil, nil)

		env.ExecuteWorkflow(ExperimentWorkflow, ExperimentRequest{
			ExperimentID:      "exp-1",
			RunModelReviewers: true,
		})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ExperimentResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, 0, result.PendingTrials, "pending count should come from the reviewer drain")

		assert.Equal(t, []string{
			processExperimentActivity,
			processModelReviewersActivity,
			collateResultsActivity,
		}, calls.names)
	})

	t.Run("empty experiment id fails validation", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var calls activityCalls
		registerStubActivities(env, &calls, nil, nil, nil)

		env.ExecuteWorkflow(ExperimentWorkflow, ExperimentRequest{})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Validation", appErr.Type())
		assert.True(t, appErr.NonRetryable())
		assert.Empty(t, calls.names, "no activity should run for an invalid request")
	})

	t.Run("processing failure stops the run before collation", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var calls activityCalls
		processErr := temporal.NewNonRetryableApplicationError(
			"experiment not found", "ProcessExperiment", nil)
		registerStubActivities(env, &calls, processErr, nil, nil)

		env.ExecuteWorkflow(ExperimentWorkflow, ExperimentRequest{ExperimentID: "exp-missing"})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "experiment not found")

		assert.Equal(t, []string{processExperimentActivity}, calls.names)
	})

	t.Run("collation failure surfaces to the caller", func(t *testing.T) {
		env := testSuite.NewTestWorkflowEnvironment()
		defer env.AssertExpectations(t)

		var calls activityCalls
		collateErr := temporal.NewNonRetryableApplicationError(
			"collation failed", "CollateExperimentResults", nil)
		registerStubActivities(env, &calls, nil, nil, collateErr)

		env.ExecuteWorkflow(ExperimentWorkflow, ExperimentRequest{ExperimentID: "exp-1"})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collation failed")

		assert.Equal(t, []string{processExperimentActivity, collateResultsActivity}, calls.names)
	})
}

// TestExperimentWorkflowDeterminism replays the workflow several times and
// checks the outcomes line up, as required for Temporal history replay.
func TestExperimentWorkflowDeterminism(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}

	var results []*ExperimentResult
	for i := 0; i < 3; i++ {
		env := testSuite.NewTestWorkflowEnvironment()

		var calls activityCalls
		registerStubActivities(env, &calls, nil, nil, nil)

		env.ExecuteWorkflow(ExperimentWorkflow, ExperimentRequest{
			ExperimentID:      "exp-1",
			RunModelReviewers: true,
		})
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ExperimentResult
		require.NoError(t, env.GetWorkflowResult(&result))
		results = append(results, &result)
		env.AssertExpectations(t)
	}

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i], "execution %d should match the first", i)
	}
}
