package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTrial(typ ExperimentType, outputs int) *Trial {
	t := &Trial{
		ID:             "trial-1",
		UserID:         "user-1",
		ExperimentID:   "exp-1",
		ExperimentType: typ,
		Status:         TrialPending,
	}
	for i := 0; i < outputs; i++ {
		t.ModelOutputs = append(t.ModelOutputs, ModelOutput{
			ModelID: "model-" + string(rune('a'+i)),
			Output:  []DataContent{{Type: ContentText, Content: "out"}},
		})
	}
	return t
}

func TestTrial_Validate_OutputCardinality(t *testing.T) {
	tests := []struct {
		name    string
		typ     ExperimentType
		outputs int
		wantErr bool
	}{
		{"arena with two", ExperimentArena, 2, false},
		{"arena with one", ExperimentArena, 1, true},
		{"arena with three", ExperimentArena, 3, true},
		{"simple validation with one", ExperimentSimpleValidation, 1, false},
		{"simple validation with two", ExperimentSimpleValidation, 2, true},
		{"single evaluation with none", ExperimentSingleEvaluation, 0, true},
		{"full validation with one", ExperimentFullValidation, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := makeTrial(tt.typ, tt.outputs).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutputCardinality)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrial_Validate_BlockedSkipsCardinality(t *testing.T) {
	trial := makeTrial(ExperimentSimpleValidation, 0)
	trial.Status = TrialBlocked
	assert.NoError(t, trial.Validate())
}

func TestTrial_Validate_UnknownType(t *testing.T) {
	trial := makeTrial(ExperimentSimpleValidation, 1)
	trial.ExperimentType = "Mystery"
	assert.ErrorIs(t, trial.Validate(), ErrUnknownExperimentType)
}

func TestTrial_HasModelOutput(t *testing.T) {
	trial := makeTrial(ExperimentArena, 2)
	assert.True(t, trial.HasModelOutput("model-a"))
	assert.True(t, trial.HasModelOutput("model-b"))
	assert.False(t, trial.HasModelOutput("model-c"))
}

func TestTrial_IsDone(t *testing.T) {
	trial := makeTrial(ExperimentSimpleEvaluation, 1)
	assert.False(t, trial.IsDone())
	trial.Status = TrialDone
	assert.True(t, trial.IsDone())
}

func TestDataObject_AppendGeneratedOutput(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	obj := &DataObject{ID: "do-1", DataSetID: "ds-1"}

	obj.AppendGeneratedOutput("gpt4_2025-03-01_09-30-00", "first", 12, now)
	obj.AppendGeneratedOutput("gpt4_2025-03-01_09-30-00", "retry", 9, now.Add(time.Minute))

	require.Len(t, obj.GeneratedOutputData, 2, "same-tag entries append, never replace")
	assert.Equal(t, "first", obj.GeneratedOutputData[0].Content)
	assert.Equal(t, "retry", obj.GeneratedOutputData[1].Content)
	assert.True(t, obj.HasGeneratedOutput("gpt4_2025-03-01_09-30-00"))
	assert.False(t, obj.HasGeneratedOutput("other"))
	assert.Equal(t, now.Add(time.Minute), obj.UpdatedAt)
}

func TestModel_ResultsForMetric(t *testing.T) {
	m := &Model{ID: "m1", Name: "gpt-4"}

	r := m.ResultsForMetric("Accuracy metrics")
	assert.Equal(t, EloStart, r.EloScore, "absent metric starts at the Elo baseline")
	assert.Zero(t, r.Wins)

	r.Wins = 3
	r.EloScore = 1532
	m.SetResultsForMetric("Accuracy metrics", r)

	got := m.ResultsForMetric("Accuracy metrics")
	assert.Equal(t, 3, got.Wins)
	assert.InDelta(t, 1532.0, got.EloScore, 1e-9)
}

func TestUser_IsModelReviewer(t *testing.T) {
	human := &User{ID: "u1", Name: "Dr. Chen"}
	assert.False(t, human.IsModelReviewer())

	bot := &User{ID: "u2", Name: "gpt-4 reviewer", ModelID: "m1"}
	assert.True(t, bot.IsModelReviewer())
}
