package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/lock"
	"github.com/medbench/engine/internal/runner"
	"github.com/medbench/engine/internal/store"
	"github.com/medbench/engine/internal/trialgen"
)

// seedProcessingFixture wires a Simple Validation experiment over one
// uploaded-output pairing: 2 data objects x 2 reviewers = 4 trials.
func seedProcessingFixture(mem *store.Memory) {
	mem.PutExperiment(&domain.Experiment{
		ID:               "exp-1",
		TestScenarioID:   "ts-1",
		ExperimentType:   domain.ExperimentSimpleValidation,
		ReviewerIDs:      []string{"rev-1", "rev-2"},
		ProcessingStatus: domain.StatusDraft,
	})
	mem.PutTestScenario(&domain.TestScenario{
		ID:             "ts-1",
		ClinicalTaskID: "task-1",
		ModelIDs:       []string{"m1"},
	})
	mem.PutClinicalTask(&domain.ClinicalTask{
		ID:     "task-1",
		Prompt: "Summarize the record.",
		DataSetModels: []domain.DataSetModel{
			{DataSetID: "ds-1", ModelID: "m1", ModelOutputIndex: 0},
		},
	})
	mem.PutDataSet(&domain.DataSet{ID: "ds-1"})
	mem.PutModel(&domain.Model{ID: "m1", Name: "gpt-4o"})
	for _, id := range []string{"obj-1", "obj-2"} {
		mem.PutDataObject(&domain.DataObject{
			ID:        id,
			DataSetID: "ds-1",
			Input:     []domain.DataContent{{Type: domain.ContentText, Content: "record"}},
			OutputData: []domain.DataContent{
				{Type: domain.ContentText, Content: "uploaded summary"},
			},
		})
	}
}

func TestProcessExperiment(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	coord := newTestCoordinator(mem, runner.NewRegistry(), &scoreRecorder{})
	require.NoError(t, coord.ProcessExperiment(ctx, "exp-1"))

	exp, err := mem.Experiments().Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, exp.ProcessingStatus)
	assert.Equal(t, 4, exp.TotalTrials)
	assert.Equal(t, 4, exp.PendingTrials)

	trials, err := mem.Trials().GetByExperimentID(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, trials, 4)
	for _, trial := range trials {
		assert.Equal(t, domain.TrialPending, trial.Status)
		require.Len(t, trial.ModelOutputs, 1)
		assert.Equal(t, "uploaded summary", trial.ModelOutputs[0].Output[0].Content)
	}
}

func TestProcessExperiment_ReplacesPriorTrials(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	require.NoError(t, mem.Trials().Create(ctx, &domain.Trial{
		ID:             "stale",
		UserID:         "rev-1",
		ExperimentID:   "exp-1",
		ExperimentType: domain.ExperimentSimpleValidation,
		Status:         domain.TrialDone,
		ModelOutputs:   []domain.ModelOutput{{ModelID: "m1"}},
	}))

	coord := newTestCoordinator(mem, runner.NewRegistry(), &scoreRecorder{})
	require.NoError(t, coord.ProcessExperiment(ctx, "exp-1"))

	trials, err := mem.Trials().GetByExperimentID(ctx, "exp-1")
	require.NoError(t, err)
	assert.Len(t, trials, 4, "stale trials are deleted before regeneration")
	_, err = mem.Trials().Get(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessExperiment_GuardedCallIsNoop(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	guard := lock.NewLocalGuard()
	held, err := guard.TryAcquire(ctx, "exp-1")
	require.NoError(t, err)
	require.True(t, held)

	cfg := newTestConfig(mem, runner.NewRegistry(), &scoreRecorder{})
	cfg.Guard = guard
	coord := New(cfg)

	require.NoError(t, coord.ProcessExperiment(ctx, "exp-1"))

	exp, _ := mem.Experiments().Get(ctx, "exp-1")
	assert.Equal(t, domain.StatusDraft, exp.ProcessingStatus, "held guard skips the run")
	trials, _ := mem.Trials().GetByExperimentID(ctx, "exp-1")
	assert.Empty(t, trials)

	// The skipped call must not have released the other holder's guard.
	held, err = guard.TryAcquire(ctx, "exp-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestProcessExperiment_GuardReleasedAfterRun(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	guard := lock.NewLocalGuard()
	cfg := newTestConfig(mem, runner.NewRegistry(), &scoreRecorder{})
	cfg.Guard = guard
	coord := New(cfg)

	require.NoError(t, coord.ProcessExperiment(ctx, "exp-1"))

	held, err := guard.TryAcquire(ctx, "exp-1")
	require.NoError(t, err)
	assert.True(t, held, "guard is released when the run finishes")
}

func TestProcessExperiment_FailureSetsErrorStatus(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	// Point the scenario at a task that does not exist.
	mem.PutTestScenario(&domain.TestScenario{
		ID:             "ts-1",
		ClinicalTaskID: "missing-task",
		ModelIDs:       []string{"m1"},
	})
	exp, _ := mem.Experiments().Get(ctx, "exp-1")
	exp.TotalTrials = 7

	coord := newTestCoordinator(mem, runner.NewRegistry(), &scoreRecorder{})
	err := coord.ProcessExperiment(ctx, "exp-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	exp, _ = mem.Experiments().Get(ctx, "exp-1")
	assert.Equal(t, domain.StatusError, exp.ProcessingStatus)
	assert.Zero(t, exp.TotalTrials, "no trials were created before the failure")
	assert.Zero(t, exp.PendingTrials)
}

// flakyTrialStore accepts a fixed number of Create calls, then rejects.
type flakyTrialStore struct {
	store.TrialStore
	remaining int
}

func (s *flakyTrialStore) Create(ctx context.Context, trial *domain.Trial) error {
	if s.remaining <= 0 {
		return errors.New("trial write rejected")
	}
	s.remaining--
	return s.TrialStore.Create(ctx, trial)
}

func TestProcessExperiment_PartialTotalRecordedOnFailure(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	exp, _ := mem.Experiments().Get(ctx, "exp-1")
	exp.TotalTrials = 99

	reg := runner.NewRegistry()
	flaky := &flakyTrialStore{TrialStore: mem.Trials(), remaining: 2}
	cfg := newTestConfig(mem, reg, &scoreRecorder{})
	cfg.Trials = flaky
	cfg.Generator = trialgen.New(trialgen.Config{
		Trials:      flaky,
		DataObjects: mem.DataObjects(),
		DataSets:    mem.DataSets(),
		Models:      mem.Models(),
		Registry:    reg,
		Now:         fixedNow,
	})
	coord := New(cfg)

	err := coord.ProcessExperiment(ctx, "exp-1")
	require.Error(t, err)

	exp, _ = mem.Experiments().Get(ctx, "exp-1")
	assert.Equal(t, domain.StatusError, exp.ProcessingStatus)
	assert.Equal(t, 2, exp.TotalTrials, "total reflects the trials created before the failure")
	assert.Zero(t, exp.PendingTrials)
}

func TestCollateExperimentResults(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	exp, _ := mem.Experiments().Get(ctx, "exp-1")
	exp.ProcessingStatus = domain.StatusProcessed
	exp.ExperimentType = domain.ExperimentArena
	mem.PutModel(&domain.Model{ID: "m2", Name: "claude"})

	mk := func(id, winner, loser string) *domain.Trial {
		return &domain.Trial{
			ID:             id,
			UserID:         "rev-1",
			ExperimentID:   "exp-1",
			ExperimentType: domain.ExperimentArena,
			Status:         domain.TrialDone,
			ModelOutputs: []domain.ModelOutput{
				{ModelID: winner},
				{ModelID: loser},
			},
			Response: &domain.TrialResponse{ModelID: winner + "," + loser, Text: "A"},
		}
	}
	require.NoError(t, mem.Trials().Create(ctx, mk("t-1", "m1", "m2")))
	require.NoError(t, mem.Trials().Create(ctx, mk("t-2", "m1", "m2")))

	coord := newTestCoordinator(mem, runner.NewRegistry(), &scoreRecorder{})
	require.NoError(t, coord.CollateExperimentResults(ctx, "exp-1"))

	exp, _ = mem.Experiments().Get(ctx, "exp-1")
	assert.Equal(t, domain.StatusFinal, exp.ProcessingStatus)

	winner, err := mem.Models().Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, winner.ExperimentResults)
	assert.Equal(t, 2, winner.ExperimentResults.Wins)
	assert.InDelta(t, 1500+2*32, winner.ExperimentResults.EloScore, 1e-9)
	assert.Equal(t, fixedNow(), winner.ExperimentResults.UpdatedAt)

	loser, err := mem.Models().Get(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, loser.ExperimentResults)
	assert.Equal(t, 2, loser.ExperimentResults.Losses)
	assert.InDelta(t, 1500-2*32, loser.ExperimentResults.EloScore, 1e-9)
}

func TestCollateExperimentResults_SkipsUnfinishedTrials(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	exp, _ := mem.Experiments().Get(ctx, "exp-1")
	exp.ProcessingStatus = domain.StatusProcessed
	require.NoError(t, mem.Trials().Create(ctx, &domain.Trial{
		ID:             "t-1",
		UserID:         "rev-1",
		ExperimentID:   "exp-1",
		ExperimentType: domain.ExperimentSimpleValidation,
		Status:         domain.TrialPending,
		ModelOutputs:   []domain.ModelOutput{{ModelID: "m1"}},
	}))

	coord := newTestCoordinator(mem, runner.NewRegistry(), &scoreRecorder{})
	require.NoError(t, coord.CollateExperimentResults(ctx, "exp-1"))

	model, _ := mem.Models().Get(ctx, "m1")
	assert.Nil(t, model.ExperimentResults, "pending trials contribute nothing")
	exp, _ = mem.Experiments().Get(ctx, "exp-1")
	assert.Equal(t, domain.StatusFinal, exp.ProcessingStatus)
}

func TestCollateExperimentResults_FailureSetsErrorAndResurfaces(t *testing.T) {
	mem := store.NewMemory()
	seedProcessingFixture(mem)
	ctx := context.Background()

	exp, _ := mem.Experiments().Get(ctx, "exp-1")
	exp.ProcessingStatus = domain.StatusProcessed
	require.NoError(t, mem.Trials().Create(ctx, &domain.Trial{
		ID:             "t-1",
		UserID:         "rev-1",
		ExperimentID:   "exp-1",
		ExperimentType: domain.ExperimentSimpleValidation,
		Status:         domain.TrialDone,
		ModelOutputs:   []domain.ModelOutput{{ModelID: "ghost-model"}},
		Response:       &domain.TrialResponse{Text: "true"},
	}))

	coord := newTestCoordinator(mem, runner.NewRegistry(), &scoreRecorder{})
	err := coord.CollateExperimentResults(ctx, "exp-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	exp, _ = mem.Experiments().Get(ctx, "exp-1")
	assert.Equal(t, domain.StatusError, exp.ProcessingStatus)
}
