package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/runner"
)

// ProcessModelReviewers answers every pending trial assigned to a model
// reviewer: a registered model standing in for a human. Each reply is parsed
// against the experiment type's response grammar; an unparsable reply marks
// the trial done with the raw text as its error marker so a human can triage
// it, and a failed generation records a sentinel "Error" response. After each
// trial the involved models' incremental results are recalculated, and the
// experiment's pending count is persisted at the end.
func (c *Coordinator) ProcessModelReviewers(ctx context.Context, experimentID string) error {
	exp, err := c.experiments.Get(ctx, experimentID)
	if err != nil {
		return err
	}
	scenario, err := c.scenarios.Get(ctx, exp.TestScenarioID)
	if err != nil {
		return err
	}
	task, err := c.tasks.Get(ctx, scenario.ClinicalTaskID)
	if err != nil {
		return err
	}
	reviewers, err := c.users.ListModelReviewers(ctx)
	if err != nil {
		return err
	}

	for _, reviewer := range reviewers {
		if !reviewer.IsModelReviewer() {
			continue
		}
		model, err := c.models.Get(ctx, reviewer.ModelID)
		if err != nil {
			return err
		}
		r, err := c.registry.Create(model)
		if err != nil {
			return fmt.Errorf("creating runner for model reviewer %s: %w", reviewer.ID, err)
		}

		trials, err := c.trials.GetByExperimentID(ctx, experimentID)
		if err != nil {
			r.Close()
			return err
		}
		for _, trial := range trials {
			if trial.UserID != reviewer.ID || trial.Status != domain.TrialPending {
				continue
			}
			c.logger.Info("processing trial with model reviewer",
				"trial_id", trial.ID, "reviewer_id", reviewer.ID)
			if err := c.reviewTrial(ctx, r, exp, scenario, task, trial); err != nil {
				r.Close()
				return err
			}

			for _, out := range trial.ModelOutputs {
				if err := c.scores.CalculateModelResults(ctx, out.ModelID, experimentID); err != nil {
					c.logger.Error("model results recalculation failed",
						"model_id", out.ModelID,
						"experiment_id", experimentID,
						"error", err)
				}
			}
		}
		r.Close()
	}

	remaining, err := c.trials.CountPendingForExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	exp.PendingTrials = remaining
	exp.UpdatedAt = c.now()
	return c.experiments.Update(ctx, exp)
}

// reviewTrial runs one generation call and records the outcome on the trial.
// Only persistence failures propagate; model and parse failures are recorded
// on the trial itself so the loop keeps draining.
func (c *Coordinator) reviewTrial(
	ctx context.Context,
	r runner.Runner,
	exp *domain.Experiment,
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
	trial *domain.Trial,
) error {
	instructions, err := BuildOutputInstructionsForExperimentType(exp.ExperimentType)
	if err != nil {
		return err
	}
	basePrompt := BuildBasePromptForExperimentType(scenario, task, trial, false)

	response, err := r.GenerateOutput(ctx, runner.Request{
		BasePrompt:         basePrompt,
		OutputInstructions: instructions,
		Inputs:             trial.ModelInputs,
		PriorOutputs:       trial.ModelOutputs,
	})
	if err != nil {
		c.logger.Error("model reviewer generation failed",
			"trial_id", trial.ID, "error", err)
		trial.Status = domain.TrialDone
		trial.Response = &domain.TrialResponse{
			ModelID: firstOutputModelID(trial),
			Text:    "Error",
		}
		trial.UpdatedAt = c.now()
		return c.trials.Update(ctx, trial)
	}

	if parseErr := c.recordResponse(trial, response); parseErr != nil {
		c.logger.Error("unparsable model reviewer response",
			"trial_id", trial.ID,
			"response", response,
			"error", parseErr)
		trial.ErrorText = response
	}
	trial.Status = domain.TrialDone
	trial.UpdatedAt = c.now()
	return c.trials.Update(ctx, trial)
}

// recordResponse applies the parsed reply to the trial. Single Evaluation
// replies are JSON objects keyed by 1-based question index, optionally with a
// corrected_output entry; every other type is a single token or free text.
func (c *Coordinator) recordResponse(trial *domain.Trial, response string) error {
	if trial.ExperimentType != domain.ExperimentSingleEvaluation {
		parsed, err := parseModelResponse(response, trial.ExperimentType)
		if err != nil {
			return err
		}
		trial.Response = &domain.TrialResponse{
			ModelID: firstOutputModelID(trial),
			Text:    parsed,
		}
		return nil
	}

	var answers map[string]any
	if err := json.Unmarshal([]byte(extractJSON(response)), &answers); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}

	if corrected, ok := answers["corrected_output"]; ok && trial.AllowOutputEditing {
		trial.Response = &domain.TrialResponse{
			ModelID: firstOutputModelID(trial),
			Text:    stringifyAnswer(corrected),
		}
	}
	for i := range trial.Questions {
		if answer, ok := answers[strconv.Itoa(i+1)]; ok {
			trial.Questions[i].Response = stringifyAnswer(answer)
		}
	}
	return nil
}

// parseModelResponse normalizes and validates a reply against the experiment
// type's grammar, returning the canonical lowercase form.
func parseModelResponse(response string, t domain.ExperimentType) (string, error) {
	response = strings.ToLower(strings.TrimSpace(response))

	switch t {
	case domain.ExperimentArena:
		switch response {
		case "a", "b", "both-good", "both-bad":
			return response, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnparsableResponse, response)

	case domain.ExperimentSimpleEvaluation:
		rating, err := strconv.Atoi(response)
		if err != nil || rating < 1 || rating > 5 {
			return "", fmt.Errorf("%w: %q", ErrUnparsableResponse, response)
		}
		return strconv.Itoa(rating), nil

	case domain.ExperimentSimpleValidation:
		if response == "yes" || response == "no" {
			return response, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnparsableResponse, response)

	case domain.ExperimentFullValidation:
		return response, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownExperimentType, t)
}

// extractJSON cuts the first-{ to last-} span from a reply, tolerating
// markdown code fences and chatter around the JSON object.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	end := strings.LastIndex(response, "}")
	if end <= start {
		return response
	}
	return strings.TrimSpace(response[start : end+1])
}

// stringifyAnswer renders a decoded JSON value the way a reviewer would have
// typed it: strings pass through, numbers drop the float formatting noise.
func stringifyAnswer(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func firstOutputModelID(trial *domain.Trial) string {
	if len(trial.ModelOutputs) == 0 {
		return ""
	}
	return trial.ModelOutputs[0].ModelID
}
