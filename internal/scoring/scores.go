// Package scoring computes per-model statistics from completed trials: Elo
// from Arena preferences, correctness rates, ratings, validation latency,
// per-question evaluation scores, and the synthetic cross-metric aggregate.
// Results are dual-written to the model and the owning clinical task.
package scoring

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/medbench/engine/internal/domain"
)

// eloFromTrials walks Arena trials in order. A response of "A" or "B"
// matching this model's side adds K; a draw token leaves the score alone;
// anything else subtracts K.
func eloFromTrials(trials []*domain.Trial, modelID string) float64 {
	score := domain.EloStart
	for _, trial := range trials {
		if trial.Response == nil || trial.Response.Text == "" {
			continue
		}
		response := strings.ToUpper(trial.Response.Text)
		isWin := (response == "A" && len(trial.ModelOutputs) > 0 && trial.ModelOutputs[0].ModelID == modelID) ||
			(response == "B" && len(trial.ModelOutputs) > 1 && trial.ModelOutputs[1].ModelID == modelID)
		isDraw := response == "BOTH-GOOD" || response == "BOTH-BAD"

		switch {
		case isWin:
			score += domain.EloK
		case !isDraw:
			score -= domain.EloK
		}
	}
	return score
}

// averageRating is the mean of integer ratings parsed from responses.
// Non-numeric responses are excluded, not treated as zero.
func averageRating(trials []*domain.Trial) float64 {
	sum, n := 0, 0
	for _, trial := range trials {
		if trial.Response == nil {
			continue
		}
		rating, err := strconv.Atoi(trial.Response.Text)
		if err != nil {
			continue
		}
		sum += rating
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// correctScore is the percentage of validation responses answering "yes".
func correctScore(trials []*domain.Trial) float64 {
	correct, total := 0, 0
	for _, trial := range trials {
		if trial.Response == nil {
			continue
		}
		total++
		if strings.EqualFold(trial.Response.Text, "yes") {
			correct++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// validationTime is the mean review time in minutes.
func validationTime(trials []*domain.Trial) float64 {
	if len(trials) == 0 {
		return 0
	}
	sum := 0.0
	for _, trial := range trials {
		sum += trial.TotalTime
	}
	return sum / float64(len(trials))
}

// singleEvaluationScores averages per-question responses, keyed by each
// question's evaluation metric. The reserved "Binary Validation" label maps
// "yes" to 1 and anything else to 0; every other label parses the response
// as a float and skips (with a log line) answers that do not parse.
func singleEvaluationScores(trials []*domain.Trial, logger *slog.Logger) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, trial := range trials {
		for _, q := range trial.Questions {
			if q.Response == "" || q.EvalMetric == "" {
				continue
			}
			if q.EvalMetric == domain.MetricBinaryValidation {
				if q.Response == "yes" {
					sums[q.EvalMetric]++
				}
				counts[q.EvalMetric]++
				continue
			}
			v, err := strconv.ParseFloat(q.Response, 64)
			if err != nil {
				logger.Warn("unparseable question response",
					"question", q.Text,
					"response", q.Response)
				continue
			}
			sums[q.EvalMetric] += v
			counts[q.EvalMetric]++
		}
	}

	scores := make(map[string]float64, len(sums))
	for metric, sum := range sums {
		scores[metric] = sum / float64(counts[metric])
	}
	return scores
}

// aggregateResults derives the synthetic "All" block by averaging each
// numeric field across every metric-specific result and merging the
// per-question maps with the same averaging rule. A previously stored "All"
// entry is excluded from its own recomputation.
func aggregateResults(byMetric map[string]domain.ModelExperimentResults) domain.ModelExperimentResults {
	var blocks []domain.ModelExperimentResults
	for metric, r := range byMetric {
		if metric == domain.MetricAll {
			continue
		}
		blocks = append(blocks, r)
	}
	if len(blocks) == 0 {
		return domain.NewModelExperimentResults()
	}

	agg := domain.ModelExperimentResults{}
	n := float64(len(blocks))
	for _, b := range blocks {
		agg.EloScore += b.EloScore
		agg.AverageRating += b.AverageRating
		agg.CorrectScore += b.CorrectScore
		agg.ValidationTime += b.ValidationTime
	}
	agg.EloScore /= n
	agg.AverageRating /= n
	agg.CorrectScore /= n
	agg.ValidationTime /= n

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, b := range blocks {
		for metric, v := range b.SingleEvaluationScores {
			sums[metric] += v
			counts[metric]++
		}
	}
	if len(sums) > 0 {
		agg.SingleEvaluationScores = make(map[string]float64, len(sums))
		for metric, sum := range sums {
			agg.SingleEvaluationScores[metric] = sum / float64(counts[metric])
		}
	}
	return agg
}
