package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbench/engine/internal/domain"
)

func promptScenario() *domain.TestScenario {
	return &domain.TestScenario{
		ID:                   "ts-1",
		ClinicalTaskID:       "task-1",
		ReviewerInstructions: "Check clinical accuracy.",
	}
}

func promptTask() *domain.ClinicalTask {
	return &domain.ClinicalTask{ID: "task-1", Prompt: "Summarize the patient record."}
}

func TestBuildBasePromptForExperimentType(t *testing.T) {
	trial := &domain.Trial{
		ExperimentType: domain.ExperimentSimpleValidation,
		ModelInputs: []domain.DataContent{
			{Type: domain.ContentText, Content: "Patient presents with chest pain."},
		},
		ModelOutputs: []domain.ModelOutput{
			{ModelID: "m1", Output: []domain.DataContent{{Content: "Likely angina."}}},
		},
	}

	prompt := BuildBasePromptForExperimentType(promptScenario(), promptTask(), trial, true)

	assert.Contains(t, prompt, "You are a model evaluator reviewing AI model outputs.")
	assert.Contains(t, prompt, "    Check clinical accuracy.")
	assert.Contains(t, prompt, "Original prompt from scenario:\n    Summarize the patient record.")
	assert.Contains(t, prompt, "Input Data:\nType: text\nContent: Patient presents with chest pain.")
	assert.Contains(t, prompt, "Model Output(s):\nModel A:\nLikely angina.")
}

func TestBuildBasePromptForExperimentType_ExcludesInputData(t *testing.T) {
	trial := &domain.Trial{
		ExperimentType: domain.ExperimentSimpleValidation,
		ModelInputs:    []domain.DataContent{{Type: domain.ContentText, Content: "secret input"}},
	}

	prompt := BuildBasePromptForExperimentType(promptScenario(), promptTask(), trial, false)
	assert.NotContains(t, prompt, "Input Data:")
	assert.NotContains(t, prompt, "secret input")
}

func TestBuildBasePromptForExperimentType_SingleEvaluationQuestions(t *testing.T) {
	trial := &domain.Trial{
		ExperimentType: domain.ExperimentSingleEvaluation,
		Questions: []domain.EvalQuestion{
			{
				Text: "Is the summary faithful?",
				Options: []domain.EvalQuestionOption{
					{Value: "yes"},
					{Value: "no"},
				},
			},
			{Text: "Describe any omissions."},
		},
	}

	prompt := BuildBasePromptForExperimentType(promptScenario(), promptTask(), trial, false)

	assert.Contains(t, prompt, "return your answers in a json object")
	assert.Contains(t, prompt, `{"1": "response for question 1","2": "response for question 2"}`)
	assert.Contains(t, prompt, "Question 1   - Is the summary faithful?")
	assert.Contains(t, prompt, "Options for Question 1:\n    - yes\n    - no\n")
	assert.Contains(t, prompt, "Question 2 is a free response question.")
	assert.NotContains(t, prompt, "corrected_output")
}

func TestBuildBasePromptForExperimentType_OutputEditing(t *testing.T) {
	withQuestions := &domain.Trial{
		ExperimentType:     domain.ExperimentSingleEvaluation,
		AllowOutputEditing: true,
		Questions:          []domain.EvalQuestion{{Text: "q1"}},
	}
	prompt := BuildBasePromptForExperimentType(promptScenario(), promptTask(), withQuestions, false)
	assert.Contains(t, prompt, "Put the corrected output in key 'corrected_output'")
	assert.Contains(t, prompt, `"corrected_output": "your corrected output here"}`)
	assert.Contains(t, prompt, "This will be in addition to the answer keys")

	withoutQuestions := &domain.Trial{
		ExperimentType:     domain.ExperimentSingleEvaluation,
		AllowOutputEditing: true,
	}
	prompt = BuildBasePromptForExperimentType(promptScenario(), promptTask(), withoutQuestions, false)
	assert.Contains(t, prompt, "example output: \n{\"corrected_output\": \"your corrected output here\"}")
	assert.NotContains(t, prompt, "This will be in addition to the answer keys")
}

func TestBuildOutputInstructionsForExperimentType(t *testing.T) {
	tests := []struct {
		experimentType domain.ExperimentType
		contains       string
	}{
		{domain.ExperimentArena, "'both-bad' if neither output is acceptable"},
		{domain.ExperimentSimpleEvaluation, "Respond with only the number."},
		{domain.ExperimentSimpleValidation, "Respond with exactly 'yes' or 'no'."},
		{domain.ExperimentFullValidation, "Provide the corrected version maintaining the same format."},
	}
	for _, tt := range tests {
		t.Run(string(tt.experimentType), func(t *testing.T) {
			got, err := BuildOutputInstructionsForExperimentType(tt.experimentType)
			require.NoError(t, err)
			assert.Contains(t, got, tt.contains)
		})
	}

	got, err := BuildOutputInstructionsForExperimentType(domain.ExperimentSingleEvaluation)
	require.NoError(t, err)
	assert.Empty(t, got, "single evaluation formats answers via its question section")

	_, err = BuildOutputInstructionsForExperimentType("Tournament")
	assert.ErrorIs(t, err, domain.ErrUnknownExperimentType)
}

func TestBuildPromptForExperimentType(t *testing.T) {
	trial := &domain.Trial{ExperimentType: domain.ExperimentSimpleValidation}
	prompt, err := BuildPromptForExperimentType(
		domain.ExperimentSimpleValidation, promptScenario(), promptTask(), trial, false)
	require.NoError(t, err)
	assert.Contains(t, prompt, "You are a model evaluator")
	assert.True(t, len(prompt) > 0 && prompt[len(prompt)-1] == '.',
		"output instructions are appended last")
	assert.Contains(t, prompt, "Is the model output correct and appropriate?")
}

func TestFormatModelOutputs_LettersOutputs(t *testing.T) {
	outputs := []domain.ModelOutput{
		{ModelID: "m1", Output: []domain.DataContent{{Content: "first"}, {Content: "more"}}},
		{ModelID: "m2", Output: []domain.DataContent{{Content: "second"}}},
	}
	got := formatModelOutputs(outputs)
	assert.Equal(t, "Model A:\nfirst\nmore\n\nModel B:\nsecond", got)
}
