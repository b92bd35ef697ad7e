package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/store"
)

// Engine recalculates per-model results and reviewer concordance. It is
// invoked incrementally from the model reviewer loop and at collation time.
type Engine struct {
	experiments store.ExperimentStore
	scenarios   store.TestScenarioStore
	tasks       store.ClinicalTaskStore
	trials      store.TrialStore
	models      store.ModelStore
	users       store.UserStore
	logger      *slog.Logger
	now         func() time.Time
}

// Config wires an Engine's collaborators.
type Config struct {
	Experiments store.ExperimentStore
	Scenarios   store.TestScenarioStore
	Tasks       store.ClinicalTaskStore
	Trials      store.TrialStore
	Models      store.ModelStore
	Users       store.UserStore
	Logger      *slog.Logger
	Now         func() time.Time
}

// New builds an Engine from cfg, applying defaults for optional fields.
func New(cfg Config) *Engine {
	e := &Engine{
		experiments: cfg.Experiments,
		scenarios:   cfg.Scenarios,
		tasks:       cfg.Tasks,
		trials:      cfg.Trials,
		models:      cfg.Models,
		users:       cfg.Users,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// CalculateModelResults recomputes one model's results from the experiment's
// completed trials and dual-writes them: the clinical task's modelResults
// entry and the model's experimentResultsByMetric entry (plus the "All"
// aggregate). The task is written first; a model-side failure after the task
// write is surfaced, not rolled back, since the next recalculation heals it.
func (e *Engine) CalculateModelResults(ctx context.Context, modelID, experimentID string) error {
	experiment, err := e.experiments.Get(ctx, experimentID)
	if err != nil {
		return err
	}
	scenario, err := e.scenarios.Get(ctx, experiment.TestScenarioID)
	if err != nil {
		return err
	}
	task, err := e.tasks.Get(ctx, scenario.ClinicalTaskID)
	if err != nil {
		return err
	}
	trials, err := e.trials.GetByExperimentID(ctx, experimentID)
	if err != nil {
		return err
	}

	var completed []*domain.Trial
	for _, t := range trials {
		if t.IsDone() && t.HasModelOutput(modelID) {
			completed = append(completed, t)
		}
	}
	if len(completed) == 0 {
		return nil
	}

	model, err := e.models.Get(ctx, modelID)
	if err != nil {
		return err
	}

	results := domain.NewModelExperimentResults()
	if existing, ok := task.ModelResults[modelID]; ok {
		results = existing
	}

	byType := make(map[domain.ExperimentType][]*domain.Trial)
	for _, t := range completed {
		byType[t.ExperimentType] = append(byType[t.ExperimentType], t)
	}
	validation := append([]*domain.Trial{}, byType[domain.ExperimentSimpleValidation]...)
	validation = append(validation, byType[domain.ExperimentFullValidation]...)

	if arena := byType[domain.ExperimentArena]; len(arena) > 0 {
		results.EloScore = eloFromTrials(arena, modelID)
	}
	if eval := byType[domain.ExperimentSimpleEvaluation]; len(eval) > 0 {
		results.AverageRating = averageRating(eval)
	}
	if simple := byType[domain.ExperimentSimpleValidation]; len(simple) > 0 {
		results.CorrectScore = correctScore(simple)
	}
	if len(validation) > 0 {
		results.ValidationTime = validationTime(validation)
	}
	if single := byType[domain.ExperimentSingleEvaluation]; len(single) > 0 {
		results.SingleEvaluationScores = singleEvaluationScores(single, e.logger)
	}
	results.TrialCount = len(completed)
	results.UpdatedAt = e.now()

	if task.ModelResults == nil {
		task.ModelResults = make(map[string]domain.ModelExperimentResults)
	}
	task.ModelResults[modelID] = results
	if err := e.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("updating clinical task results for model %s: %w", modelID, err)
	}

	model.SetResultsForMetric(task.EvalMetric, results)
	model.SetResultsForMetric(domain.MetricAll, aggregateResults(model.ExperimentResultsByMetric))
	if err := e.models.Update(ctx, model); err != nil {
		e.logger.Error("model results write failed after task write succeeded",
			"model_id", modelID,
			"clinical_task_id", task.ID,
			"eval_metric", task.EvalMetric,
			"error", err)
		return fmt.Errorf("updating model results for %s: %w", modelID, err)
	}
	return nil
}

// CalculateConcordance measures how often the user's completed trial on one
// data object agrees with the other reviewers' completed trials, and folds
// the rate into the user's running average. Ratings within one point count
// as agreement for Simple Evaluation trials.
func (e *Engine) CalculateConcordance(ctx context.Context, userID, experimentID, dataObjectID string) error {
	trials, err := e.trials.GetByExperimentAndDataObject(ctx, experimentID, dataObjectID)
	if err != nil {
		return err
	}

	var completed []*domain.Trial
	for _, t := range trials {
		if t.IsDone() {
			completed = append(completed, t)
		}
	}
	if len(completed) < 2 {
		return nil
	}

	var userTrial *domain.Trial
	var others []*domain.Trial
	for _, t := range completed {
		if t.UserID == userID {
			if userTrial == nil {
				userTrial = t
			}
		} else {
			others = append(others, t)
		}
	}
	if userTrial == nil || len(others) == 0 {
		return nil
	}

	agreements := 0
	for _, other := range others {
		if trialsAgree(userTrial, other) {
			agreements++
		}
	}
	sample := float64(agreements) / float64(len(others))

	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	user.Stats.RecordConcordance(sample)
	return e.users.Update(ctx, user)
}

// trialsAgree compares two reviewers' responses to the same data object.
func trialsAgree(a, b *domain.Trial) bool {
	if a.Response == nil || b.Response == nil {
		return false
	}
	switch a.ExperimentType {
	case domain.ExperimentSimpleValidation, domain.ExperimentFullValidation, domain.ExperimentArena:
		return a.Response.Text == b.Response.Text
	case domain.ExperimentSimpleEvaluation:
		r1, err1 := strconv.Atoi(a.Response.Text)
		r2, err2 := strconv.Atoi(b.Response.Text)
		if err1 != nil || err2 != nil {
			return false
		}
		return math.Abs(float64(r1-r2)) <= 1
	}
	return false
}
