package coordinator

import (
	"fmt"
	"strings"

	"github.com/medbench/engine/internal/domain"
)

// BuildPromptForExperimentType returns the full reviewer prompt: the base
// prompt for the trial followed by the experiment type's output instructions.
func BuildPromptForExperimentType(
	experimentType domain.ExperimentType,
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
	trial *domain.Trial,
	includeInputData bool,
) (string, error) {
	instructions, err := BuildOutputInstructionsForExperimentType(experimentType)
	if err != nil {
		return "", err
	}
	return BuildBasePromptForExperimentType(scenario, task, trial, includeInputData) + instructions, nil
}

// BuildBasePromptForExperimentType renders the evaluator framing, the
// scenario's reviewer instructions, and the original task prompt. Single
// Evaluation trials additionally get the question list with answer-format
// rules, and a corrected_output request when output editing is allowed.
func BuildBasePromptForExperimentType(
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
	trial *domain.Trial,
	includeInputData bool,
) string {
	var b strings.Builder
	b.WriteString("You are a model evaluator reviewing AI model outputs.\n")
	b.WriteString("Review the following input and output according to these instructions:\n")
	fmt.Fprintf(&b, "    %s\n\n", scenario.ReviewerInstructions)
	b.WriteString("Original prompt from scenario:\n")
	fmt.Fprintf(&b, "    %s\n\n", task.Prompt)

	if trial.ExperimentType == domain.ExperimentSingleEvaluation {
		if len(trial.Questions) > 0 {
			b.WriteString("Please answer each of the following questions,")
			b.WriteString("return your answers in a json object where the key is the index of the question and the value is your response.\n")
			b.WriteString("each question may have a list of possible answers to chose from, if there is no list it is a free response question.\n")
			b.WriteString("Your response must follow the acceptable response format and your answers must be restricted to the provided options when provided.\n")
			b.WriteString("example acceptable response format:\n")
			b.WriteString(`{"1": "response for question 1","2": "response for question 2"}`)
			for i, q := range trial.Questions {
				fmt.Fprintf(&b, "Question %d   - %s\n", i+1, q.Text)
				if len(q.Options) > 0 {
					fmt.Fprintf(&b, "Options for Question %d:\n", i+1)
					for _, opt := range q.Options {
						fmt.Fprintf(&b, "    - %s\n", opt.Value)
					}
				} else {
					fmt.Fprintf(&b, "Question %d is a free response question.\n", i+1)
				}
			}
		}
		if trial.AllowOutputEditing {
			b.WriteString("Please attempt to follow the original prompt and fully correct the output provided maintaining the same format. Put the corrected output in key 'corrected_output' of the json object.\n")
			if len(trial.Questions) > 0 {
				b.WriteString("This will be in addition to the answer keys that you'll provide in the json response example:")
				b.WriteString(`{"1": "response for question 1","2": "response for question 2", "corrected_output": "your corrected output here"}`)
			} else {
				b.WriteString("example output: \n")
				b.WriteString(`{"corrected_output": "your corrected output here"}`)
			}
		}
	}

	if includeInputData {
		b.WriteString("Input Data:\n")
		b.WriteString(formatDataContent(trial.ModelInputs))
		b.WriteString("\nModel Output(s):\n")
		b.WriteString(formatModelOutputs(trial.ModelOutputs))
		b.WriteString("\n")
	}
	return b.String()
}

// BuildOutputInstructionsForExperimentType returns the response-format block
// appended after the base prompt. Single Evaluation returns an empty string
// since its format rules live in the question section of the base prompt.
func BuildOutputInstructionsForExperimentType(t domain.ExperimentType) (string, error) {
	switch t {
	case domain.ExperimentArena:
		return "Compare Model A and Model B outputs.\n" +
			"Respond with exactly one of these options:\n" +
			"    - 'A' if Model A's output is better\n" +
			"    - 'B' if Model B's output is better\n" +
			"    - 'both-good' if both outputs are good\n" +
			"    - 'both-bad' if neither output is acceptable", nil

	case domain.ExperimentSimpleEvaluation:
		return "Rate the model output on a scale of 1-5:\n" +
			"    1: Unusable\n" +
			"    2: Poor\n" +
			"    3: Good\n" +
			"    4: Excellent\n" +
			"    5: Perfect\n" +
			"Respond with only the number.", nil

	case domain.ExperimentSimpleValidation:
		return "Is the model output correct and appropriate?\n" +
			"Respond with exactly 'yes' or 'no'.", nil

	case domain.ExperimentFullValidation:
		return "Review and correct the model output.\n" +
			"Provide the corrected version maintaining the same format.", nil

	case domain.ExperimentSingleEvaluation:
		return "", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownExperimentType, t)
}

// formatDataContent renders input items as "Type:/Content:" blocks. Image
// items are passed by reference; the runner layer is responsible for fetching
// image bytes when an integration needs them inline.
func formatDataContent(contents []domain.DataContent) string {
	formatted := make([]string, 0, len(contents))
	for _, content := range contents {
		formatted = append(formatted,
			fmt.Sprintf("Type: %s\nContent: %s\n", content.Type, content.Content))
	}
	return strings.Join(formatted, "\n")
}

// formatModelOutputs labels each output with a letter so reviewers and
// response grammars can refer to "Model A" and "Model B".
func formatModelOutputs(outputs []domain.ModelOutput) string {
	blocks := make([]string, 0, len(outputs))
	for i, out := range outputs {
		lines := make([]string, 0, len(out.Output))
		for _, c := range out.Output {
			lines = append(lines, c.Content)
		}
		blocks = append(blocks, fmt.Sprintf("Model %c:\n%s", 'A'+i, strings.Join(lines, "\n")))
	}
	return strings.Join(blocks, "\n\n")
}
