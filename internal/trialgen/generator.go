// Package trialgen expands an experiment definition into its full trial set:
// one trial per reviewer per data object per qualifying pairing, or per
// pairing pair for Arena experiments. Generation-required pairings are filled
// synchronously through the runner registry before trials are created.
package trialgen

import (
	"context"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/resolver"
	"github.com/medbench/engine/internal/runner"
	"github.com/medbench/engine/internal/store"
)

// runTimestampFormat tags generated outputs with the UTC run time so repeat
// runs never collide.
const runTimestampFormat = "2006-01-02_15-04-05"

// Config wires a Generator's collaborators. Coin and Now default to the
// shared RNG and wall clock; tests inject deterministic versions.
type Config struct {
	Trials      store.TrialStore
	DataObjects store.DataObjectStore
	DataSets    store.DataSetStore
	Models      store.ModelStore
	Registry    *runner.Registry
	Counter     TokenCounter
	Coin        func() bool
	Now         func() time.Time
	Logger      *slog.Logger
}

// Generator creates the trial set for one experiment.
type Generator struct {
	trials      store.TrialStore
	dataObjects store.DataObjectStore
	dataSets    store.DataSetStore
	models      store.ModelStore
	registry    *runner.Registry
	counter     TokenCounter
	coin        func() bool
	now         func() time.Time
	logger      *slog.Logger
}

// New builds a Generator from cfg, applying defaults for optional fields.
func New(cfg Config) *Generator {
	g := &Generator{
		trials:      cfg.Trials,
		dataObjects: cfg.DataObjects,
		dataSets:    cfg.DataSets,
		models:      cfg.Models,
		registry:    cfg.Registry,
		counter:     cfg.Counter,
		coin:        cfg.Coin,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if g.counter == nil {
		g.counter = ApproxCounter{}
	}
	if g.coin == nil {
		g.coin = func() bool { return rand.Intn(2) == 0 }
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate expands the experiment into trials and returns how many were
// created. Any runner failure aborts the whole batch with a BatchError.
func (g *Generator) Generate(
	ctx context.Context,
	exp *domain.Experiment,
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
) (int, error) {
	if exp.ExperimentType == domain.ExperimentArena {
		return g.generateArena(ctx, exp, scenario, task)
	}
	return g.generateStandard(ctx, exp, scenario, task)
}

// qualifyingPairings keeps the task pairings whose model the scenario covers.
func qualifyingPairings(scenario *domain.TestScenario, task *domain.ClinicalTask) []domain.DataSetModel {
	var out []domain.DataSetModel
	for _, dm := range task.DataSetModels {
		if slices.Contains(scenario.ModelIDs, dm.ModelID) {
			out = append(out, dm)
		}
	}
	return out
}

func (g *Generator) generateStandard(
	ctx context.Context,
	exp *domain.Experiment,
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
) (int, error) {
	runTime := g.now().UTC().Format(runTimestampFormat)
	total := 0

	for _, pairing := range qualifyingPairings(scenario, task) {
		dataSet, err := g.dataSets.Get(ctx, pairing.DataSetID)
		if err != nil {
			return total, err
		}
		model, err := g.models.Get(ctx, pairing.ModelID)
		if err != nil {
			return total, err
		}
		objects, err := g.dataObjects.GetByDataSetID(ctx, pairing.DataSetID)
		if err != nil {
			return total, err
		}

		runKey := pairing.GeneratedOutputKey + runTime

		for _, obj := range objects {
			generated, err := g.generateIfNeeded(ctx, exp, task, pairing, model, obj, runKey)
			if err != nil {
				return total, err
			}

			for _, reviewerID := range exp.ReviewerIDs {
				trial := g.newTrial(exp, scenario, task, reviewerID, pairing.DataSetID, obj)
				g.attachOutput(trial, obj, pairing, model.ID)
				if err := g.trials.Create(ctx, trial); err != nil {
					return total, err
				}
				total++
			}

			if generated {
				dataSet.GeneratedDataList = append(dataSet.GeneratedDataList, runKey)
				if err := g.dataSets.Update(ctx, dataSet); err != nil {
					return total, err
				}
			}
		}
	}
	return total, nil
}

func (g *Generator) generateArena(
	ctx context.Context,
	exp *domain.Experiment,
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
) (int, error) {
	runTime := g.now().UTC().Format(runTimestampFormat)
	pairings := qualifyingPairings(scenario, task)
	if len(pairings) < 2 {
		return 0, domain.ErrNoQualifyingPairings
	}

	total := 0
	for i := 0; i < len(pairings); i++ {
		for j := i + 1; j < len(pairings); j++ {
			first, second := pairings[i], pairings[j]

			dataSet, err := g.dataSets.Get(ctx, first.DataSetID)
			if err != nil {
				return total, err
			}
			model1, err := g.models.Get(ctx, first.ModelID)
			if err != nil {
				return total, err
			}
			model2, err := g.models.Get(ctx, second.ModelID)
			if err != nil {
				return total, err
			}
			objects, err := g.dataObjects.GetByDataSetID(ctx, first.DataSetID)
			if err != nil {
				return total, err
			}

			runKey1 := first.GeneratedOutputKey + runTime
			runKey2 := second.GeneratedOutputKey + runTime

			for _, obj := range objects {
				gen1, err := g.generateIfNeeded(ctx, exp, task, first, model1, obj, runKey1)
				if err != nil {
					return total, err
				}
				gen2, err := g.generateIfNeeded(ctx, exp, task, second, model2, obj, runKey2)
				if err != nil {
					return total, err
				}

				if gen1 {
					dataSet.GeneratedDataList = append(dataSet.GeneratedDataList, runKey1)
				}
				if gen2 {
					dataSet.GeneratedDataList = append(dataSet.GeneratedDataList, runKey2)
				}
				if gen1 || gen2 {
					if err := g.dataSets.Update(ctx, dataSet); err != nil {
						return total, err
					}
				}

				for _, reviewerID := range exp.ReviewerIDs {
					trial := g.newTrial(exp, scenario, task, reviewerID, first.DataSetID, obj)
					g.attachArenaOutputs(trial, obj, first, second)
					if err := g.trials.Create(ctx, trial); err != nil {
						return total, err
					}
					total++
				}
			}
		}
	}
	return total, nil
}

// generateIfNeeded invokes the pairing's model to produce a fresh output
// when the pairing requires generation and the model has a registered
// integration. The output is filed on the data object under runKey.
func (g *Generator) generateIfNeeded(
	ctx context.Context,
	exp *domain.Experiment,
	task *domain.ClinicalTask,
	pairing domain.DataSetModel,
	model *domain.Model,
	obj *domain.DataObject,
	runKey string,
) (bool, error) {
	needed := pairing.RequiresGeneration() &&
		pairing.GeneratedOutputKey == model.Name &&
		model.HasIntegration() &&
		g.registry.Supports(model.IntegrationType)
	if !needed {
		return false, nil
	}

	r, err := g.registry.Create(model)
	if err != nil {
		return false, &BatchError{ExperimentID: exp.ID, DataObjectID: obj.ID, ModelID: model.ID, Err: err}
	}
	defer r.Close()

	out, err := r.GenerateOutput(ctx, runner.Request{
		BasePrompt: task.Prompt,
		Inputs:     obj.Input,
	})
	if err != nil {
		g.logger.Error("output generation failed",
			"experiment_id", exp.ID,
			"data_object_id", obj.ID,
			"model_id", model.ID,
			"error", err)
		return false, &BatchError{ExperimentID: exp.ID, DataObjectID: obj.ID, ModelID: model.ID, Err: err}
	}

	obj.AppendGeneratedOutput(runKey, out, g.counter.Count(out), g.now())
	if err := g.dataObjects.UpdateMany(ctx, []*domain.DataObject{obj}); err != nil {
		return false, err
	}
	return true, nil
}

func (g *Generator) newTrial(
	exp *domain.Experiment,
	scenario *domain.TestScenario,
	task *domain.ClinicalTask,
	reviewerID, dataSetID string,
	obj *domain.DataObject,
) *domain.Trial {
	now := g.now()
	return &domain.Trial{
		ID:                   uuid.NewString(),
		UserID:               reviewerID,
		ExperimentID:         exp.ID,
		ExperimentType:       exp.ExperimentType,
		Status:               domain.TrialPending,
		Prompt:               task.Prompt,
		ReviewerInstructions: scenario.ReviewerInstructions,
		DataObjectID:         obj.ID,
		DataSetID:            dataSetID,
		TestScenarioID:       scenario.ID,
		ModelInputs:          obj.Input,
		Questions:            slices.Clone(scenario.Questions),
		AllowOutputEditing:   scenario.AllowOutputEditing,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// attachOutput resolves and attaches the single model output of a standard
// trial. An unresolvable generation-required pairing blocks the trial
// instead of fabricating an answer.
func (g *Generator) attachOutput(trial *domain.Trial, obj *domain.DataObject, pairing domain.DataSetModel, modelID string) {
	content, source := resolver.Resolve(obj, pairing)
	if source == resolver.SourceNone && pairing.RequiresGeneration() {
		trial.Status = domain.TrialBlocked
	}
	if source.Generated() {
		text, boxes := resolver.ParseCXROutput(content.Content, modelID, g.now())
		content = domain.DataContent{Type: domain.ContentText, Content: text}
		trial.BoundingBoxes = append(trial.BoundingBoxes, boxes...)
	}
	trial.ModelOutputs = append(trial.ModelOutputs, domain.ModelOutput{
		ModelID: modelID,
		Output:  []domain.DataContent{content},
	})
}

// attachArenaOutputs resolves both sides of an Arena trial and randomizes
// their left/right order with the injected coin flip.
func (g *Generator) attachArenaOutputs(trial *domain.Trial, obj *domain.DataObject, first, second domain.DataSetModel) {
	left := g.resolveSide(trial, obj, first)
	right := g.resolveSide(trial, obj, second)

	if g.coin() {
		trial.ModelOutputs = append(trial.ModelOutputs, left, right)
	} else {
		trial.ModelOutputs = append(trial.ModelOutputs, right, left)
	}
}

func (g *Generator) resolveSide(trial *domain.Trial, obj *domain.DataObject, pairing domain.DataSetModel) domain.ModelOutput {
	content, source := resolver.Resolve(obj, pairing)
	if source == resolver.SourceNone && pairing.RequiresGeneration() {
		trial.Status = domain.TrialBlocked
	}
	if source.Generated() {
		text, boxes := resolver.ParseCXROutput(content.Content, pairing.ModelID, g.now())
		content = domain.DataContent{Type: domain.ContentText, Content: text}
		trial.BoundingBoxes = append(trial.BoundingBoxes, boxes...)
	}
	return domain.ModelOutput{
		ModelID: pairing.ModelID,
		Output:  []domain.DataContent{content},
	}
}
