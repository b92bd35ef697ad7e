// Package collate folds completed trials into per-model accumulators, one
// classification rule per experiment type. The accumulators feed the
// whole-experiment results snapshot written at finalization.
package collate

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/medbench/engine/internal/domain"
)

// Accumulator gathers one model's raw counts across an experiment's trials.
type Accumulator struct {
	Wins                int
	Losses              int
	TotalValidations    int
	CorrectValidations  int
	TotalValidationTime float64
	ValidationCount     int
	TotalRating         float64
	RatingCount         int
}

// EloScore derives a rating from the win/loss ledger at K=32.
func (a *Accumulator) EloScore() float64 {
	return domain.EloStart + float64(a.Wins-a.Losses)*domain.EloK
}

// CorrectScore is the fraction of validations judged correct.
func (a *Accumulator) CorrectScore() float64 {
	if a.TotalValidations == 0 {
		return 0
	}
	return float64(a.CorrectValidations) / float64(a.TotalValidations)
}

// AverageValidationTime is the mean review time in minutes.
func (a *Accumulator) AverageValidationTime() float64 {
	if a.ValidationCount == 0 {
		return 0
	}
	return a.TotalValidationTime / float64(a.ValidationCount)
}

// AverageRating is the mean of accumulated ratings.
func (a *Accumulator) AverageRating() float64 {
	if a.RatingCount == 0 {
		return 0
	}
	return a.TotalRating / float64(a.RatingCount)
}

// Snapshot renders the accumulator as a results block.
func (a *Accumulator) Snapshot() domain.ModelExperimentResults {
	return domain.ModelExperimentResults{
		EloScore:       a.EloScore(),
		Wins:           a.Wins,
		Losses:         a.Losses,
		CorrectScore:   a.CorrectScore(),
		AverageRating:  a.AverageRating(),
		ValidationTime: a.AverageValidationTime(),
	}
}

// Collator classifies trials into per-model accumulators.
type Collator struct {
	logger *slog.Logger
}

// New returns a Collator logging through logger (nil for the default).
func New(logger *slog.Logger) *Collator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collator{logger: logger}
}

// Collate walks every completed trial and routes each of its model outputs
// through the experiment-type classifier. Single Evaluation trials carry no
// per-trial classification here; their per-question scores are keyed by
// question-level metric and computed by the scoring engine.
func (c *Collator) Collate(trials []*domain.Trial) map[string]*Accumulator {
	results := make(map[string]*Accumulator)

	for _, trial := range trials {
		if !trial.IsDone() {
			continue
		}
		for _, out := range trial.ModelOutputs {
			acc, ok := results[out.ModelID]
			if !ok {
				acc = &Accumulator{}
				results[out.ModelID] = acc
			}

			switch trial.ExperimentType {
			case domain.ExperimentArena:
				c.arena(trial, out, acc)
			case domain.ExperimentSimpleValidation:
				c.validation(trial, acc)
			case domain.ExperimentFullValidation, domain.ExperimentSimpleEvaluation:
				acc.TotalValidationTime += trial.TotalTime
				acc.ValidationCount++
			case domain.ExperimentSingleEvaluation:
			}
		}
	}
	return results
}

// arena reads the comma-joined preference pair recorded on the response:
// first id preferred, second rejected. A tie token or malformed pair
// contributes neither a win nor a loss.
func (c *Collator) arena(trial *domain.Trial, out domain.ModelOutput, acc *Accumulator) {
	if trial.Response == nil || trial.Response.Text == "" {
		c.logger.Warn("skipping arena trial without response", "trial_id", trial.ID)
		return
	}
	preferred := strings.Split(trial.Response.ModelID, ",")
	if len(preferred) != 2 {
		c.logger.Warn("invalid model preference format", "trial_id", trial.ID)
		return
	}
	switch out.ModelID {
	case preferred[0]:
		acc.Wins++
	case preferred[1]:
		acc.Losses++
	}
}

func (c *Collator) validation(trial *domain.Trial, acc *Accumulator) {
	if trial.Response == nil {
		return
	}
	acc.TotalValidations++
	if correct, err := strconv.ParseBool(trial.Response.Text); err == nil && correct {
		acc.CorrectValidations++
	}
}
