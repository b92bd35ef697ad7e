package trialgen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/runner"
	"github.com/medbench/engine/internal/store"
)

type stubRunner struct {
	modelID string
	output  string
	err     error
	calls   int
}

func (s *stubRunner) ModelID() string { return s.modelID }

func (s *stubRunner) GenerateOutput(ctx context.Context, req runner.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

func (s *stubRunner) Close() error { return nil }

type fixture struct {
	mem      *store.Memory
	registry *runner.Registry
	gen      *Generator
}

func newFixture(t *testing.T, coin func() bool) *fixture {
	t.Helper()
	mem := store.NewMemory()
	reg := runner.NewRegistry()
	gen := New(Config{
		Trials:      mem.Trials(),
		DataObjects: mem.DataObjects(),
		DataSets:    mem.DataSets(),
		Models:      mem.Models(),
		Registry:    reg,
		Coin:        coin,
		Now:         func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	return &fixture{mem: mem, registry: reg, gen: gen}
}

func seedUploaded(f *fixture, pairings int, objects int) (*domain.Experiment, *domain.TestScenario, *domain.ClinicalTask) {
	task := &domain.ClinicalTask{ID: "task-1", Prompt: "Summarize the findings."}
	scenario := &domain.TestScenario{ID: "ts-1", ClinicalTaskID: "task-1", ReviewerInstructions: "Check accuracy."}
	for i := 0; i < pairings; i++ {
		modelID := "model-" + string(rune('a'+i))
		scenario.ModelIDs = append(scenario.ModelIDs, modelID)
		task.DataSetModels = append(task.DataSetModels, domain.DataSetModel{
			DataSetID:        "ds-1",
			ModelID:          modelID,
			ModelOutputIndex: i,
		})
		f.mem.PutModel(&domain.Model{ID: modelID, Name: modelID})
	}
	f.mem.PutDataSet(&domain.DataSet{ID: "ds-1", Name: "set"})
	for i := 0; i < objects; i++ {
		obj := &domain.DataObject{
			ID:        "obj-" + string(rune('1'+i)),
			DataSetID: "ds-1",
			Input:     []domain.DataContent{{Type: domain.ContentText, Content: "input"}},
		}
		for p := 0; p < pairings; p++ {
			obj.OutputData = append(obj.OutputData, domain.DataContent{
				Type:    domain.ContentText,
				Content: "out-" + string(rune('a'+p)),
			})
		}
		f.mem.PutDataObject(obj)
	}
	exp := &domain.Experiment{
		ID:             "exp-1",
		TestScenarioID: "ts-1",
		ExperimentType: domain.ExperimentSimpleValidation,
		ReviewerIDs:    []string{"rev-1", "rev-2"},
	}
	f.mem.PutTestScenario(scenario)
	f.mem.PutClinicalTask(task)
	f.mem.PutExperiment(exp)
	return exp, scenario, task
}

func TestGenerate_StandardCounts(t *testing.T) {
	f := newFixture(t, nil)
	exp, scenario, task := seedUploaded(f, 2, 3)

	total, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.NoError(t, err)
	assert.Equal(t, 2*3*2, total, "pairings x objects x reviewers")

	trials, err := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
	require.NoError(t, err)
	require.Len(t, trials, 12)
	for _, trial := range trials {
		assert.Equal(t, domain.TrialPending, trial.Status)
		require.Len(t, trial.ModelOutputs, 1)
		assert.NoError(t, trial.Validate())
	}
}

func TestGenerate_StandardUsesUploadedColumn(t *testing.T) {
	f := newFixture(t, nil)
	exp, scenario, task := seedUploaded(f, 2, 1)

	_, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.NoError(t, err)

	trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
	byModel := map[string]string{}
	for _, trial := range trials {
		out := trial.ModelOutputs[0]
		byModel[out.ModelID] = out.Output[0].Content
	}
	assert.Equal(t, "out-a", byModel["model-a"])
	assert.Equal(t, "out-b", byModel["model-b"])
}

func TestGenerate_SkipsModelsOutsideScenario(t *testing.T) {
	f := newFixture(t, nil)
	exp, scenario, task := seedUploaded(f, 2, 1)
	task.DataSetModels = append(task.DataSetModels, domain.DataSetModel{
		DataSetID: "ds-1", ModelID: "model-z", ModelOutputIndex: 0,
	})

	total, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.NoError(t, err)
	assert.Equal(t, 2*1*2, total, "pairing outside the scenario contributes nothing")
}

func TestGenerate_ArenaCounts(t *testing.T) {
	f := newFixture(t, func() bool { return true })
	exp, scenario, task := seedUploaded(f, 3, 2)
	exp.ExperimentType = domain.ExperimentArena

	total, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.NoError(t, err)
	// C(3,2) pairs x 2 objects x 2 reviewers.
	assert.Equal(t, 3*2*2, total)

	trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
	for _, trial := range trials {
		require.Len(t, trial.ModelOutputs, 2)
		assert.NoError(t, trial.Validate())
	}
}

func TestGenerate_ArenaCoinFlipOrder(t *testing.T) {
	t.Run("heads keeps declaration order", func(t *testing.T) {
		f := newFixture(t, func() bool { return true })
		exp, scenario, task := seedUploaded(f, 2, 1)
		exp.ExperimentType = domain.ExperimentArena

		_, err := f.gen.Generate(context.Background(), exp, scenario, task)
		require.NoError(t, err)

		trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
		require.NotEmpty(t, trials)
		assert.Equal(t, "model-a", trials[0].ModelOutputs[0].ModelID)
		assert.Equal(t, "model-b", trials[0].ModelOutputs[1].ModelID)
	})

	t.Run("tails swaps sides", func(t *testing.T) {
		f := newFixture(t, func() bool { return false })
		exp, scenario, task := seedUploaded(f, 2, 1)
		exp.ExperimentType = domain.ExperimentArena

		_, err := f.gen.Generate(context.Background(), exp, scenario, task)
		require.NoError(t, err)

		trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
		require.NotEmpty(t, trials)
		assert.Equal(t, "model-b", trials[0].ModelOutputs[0].ModelID)
		assert.Equal(t, "model-a", trials[0].ModelOutputs[1].ModelID)
	})
}

func TestDefaultCoinProducesBothOutcomes(t *testing.T) {
	g := New(Config{})

	seen := map[bool]bool{}
	for i := 0; i < 256 && len(seen) < 2; i++ {
		seen[g.coin()] = true
	}
	assert.Len(t, seen, 2, "the default coin must land on both sides")
}

func TestGenerate_ArenaTooFewPairings(t *testing.T) {
	f := newFixture(t, nil)
	exp, scenario, task := seedUploaded(f, 1, 1)
	exp.ExperimentType = domain.ExperimentArena

	_, err := f.gen.Generate(context.Background(), exp, scenario, task)
	assert.ErrorIs(t, err, domain.ErrNoQualifyingPairings)
}

func seedGeneration(f *fixture, stub *stubRunner) (*domain.Experiment, *domain.TestScenario, *domain.ClinicalTask) {
	f.registry.Register("stub", func(m *domain.Model) (runner.Runner, error) {
		return stub, nil
	})

	f.mem.PutModel(&domain.Model{
		ID:              "gen-model",
		Name:            "cxr-gen",
		IntegrationType: "stub",
	})
	f.mem.PutDataSet(&domain.DataSet{ID: "ds-1", Name: "set"})
	f.mem.PutDataObject(&domain.DataObject{
		ID:        "obj-1",
		DataSetID: "ds-1",
		Input:     []domain.DataContent{{Type: domain.ContentText, Content: "scan"}},
	})

	task := &domain.ClinicalTask{
		ID:     "task-1",
		Prompt: "Report the findings.",
		DataSetModels: []domain.DataSetModel{
			{DataSetID: "ds-1", ModelID: "gen-model", ModelOutputIndex: -1, GeneratedOutputKey: "cxr-gen"},
		},
	}
	scenario := &domain.TestScenario{ID: "ts-1", ClinicalTaskID: "task-1", ModelIDs: []string{"gen-model"}}
	exp := &domain.Experiment{
		ID:             "exp-1",
		TestScenarioID: "ts-1",
		ExperimentType: domain.ExperimentSimpleValidation,
		ReviewerIDs:    []string{"rev-1"},
	}
	return exp, scenario, task
}

func TestGenerate_SynchronousGeneration(t *testing.T) {
	f := newFixture(t, nil)
	stub := &stubRunner{modelID: "gen-model", output: `[["Normal heart",[[0.1,0.2,0.5,0.6]]]]`}
	exp, scenario, task := seedGeneration(f, stub)

	total, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, stub.calls)

	objs, _ := f.mem.DataObjects().GetByDataSetID(context.Background(), "ds-1")
	require.Len(t, objs, 1)
	require.Len(t, objs[0].GeneratedOutputData, 1)
	entry := objs[0].GeneratedOutputData[0]
	assert.Equal(t, "cxr-gen2025-03-01_09-00-00", entry.GeneratedForTask,
		"run key is the pairing key plus the UTC run timestamp")

	ds, _ := f.mem.DataSets().Get(context.Background(), "ds-1")
	assert.Contains(t, ds.GeneratedDataList, "cxr-gen2025-03-01_09-00-00")

	trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
	require.Len(t, trials, 1)
	trial := trials[0]
	assert.Equal(t, domain.TrialPending, trial.Status)
	require.Len(t, trial.ModelOutputs, 1)
	assert.Equal(t, "Normal heart", trial.ModelOutputs[0].Output[0].Content,
		"findings grammar is flattened to display text")
	require.Len(t, trial.BoundingBoxes, 1)
	assert.InDelta(t, 0.4, trial.BoundingBoxes[0].Width, 1e-9)
}

func TestGenerate_GenerationFailureAbortsBatch(t *testing.T) {
	f := newFixture(t, nil)
	stub := &stubRunner{
		modelID: "gen-model",
		err:     &runner.Error{Type: runner.ErrorTypeRateLimit, Message: "throttled"},
	}
	exp, scenario, task := seedGeneration(f, stub)

	_, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "exp-1", batchErr.ExperimentID)
	assert.Equal(t, "obj-1", batchErr.DataObjectID)
	assert.True(t, batchErr.Retryable())

	trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
	assert.Empty(t, trials, "no trials are created after a generation failure")
}

func TestGenerate_BlockedWhenNoRunnerAvailable(t *testing.T) {
	f := newFixture(t, nil)
	stub := &stubRunner{modelID: "gen-model", output: "x"}
	exp, scenario, task := seedGeneration(f, stub)

	m, _ := f.mem.Models().Get(context.Background(), "gen-model")
	m.IntegrationType = "unregistered"

	total, err := f.gen.Generate(context.Background(), exp, scenario, task)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, stub.calls)

	trials, _ := f.mem.Trials().GetByExperimentID(context.Background(), "exp-1")
	require.Len(t, trials, 1)
	assert.Equal(t, domain.TrialBlocked, trials[0].Status)

	pending, _ := f.mem.Trials().CountPendingForExperiment(context.Background(), "exp-1")
	assert.Zero(t, pending, "blocked trials are not pending")
}

func TestBatchError_NonRetryableCause(t *testing.T) {
	be := &BatchError{ExperimentID: "e", DataObjectID: "d", ModelID: "m", Err: errors.New("boom")}
	assert.False(t, be.Retryable())
	assert.Contains(t, be.Error(), "experiment e")
}

func TestApproxCounter(t *testing.T) {
	c := ApproxCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 3, c.Count("one two three"))
	assert.Equal(t, 5, c.Count("Heart is enlarged. Lungs clear!"))
}
