package coordinator

import (
	"context"
	"fmt"

	"github.com/medbench/engine/internal/domain"
	"github.com/medbench/engine/internal/runner"
)

// generationKeyFormat timestamps a pre-generation run so its outputs never
// collide with earlier runs against the same dataset.
const generationKeyFormat = "2006-01-02_15-04-05"

// GenerateClinicalTaskOutputs pre-generates model outputs for every
// generation-required pairing on the task, accumulating per-token cost as it
// goes. Each pairing's run is filed under a fresh "{model name}_{timestamp}"
// key, which is recorded on the dataset and written back to the pairing so
// later trial generation resolves these outputs. Any failure aborts the run
// and leaves the task in generation status error.
func (c *Coordinator) GenerateClinicalTaskOutputs(ctx context.Context, clinicalTaskID string) error {
	task, err := c.tasks.Get(ctx, clinicalTaskID)
	if err != nil {
		return err
	}
	task.GenerationStatus = domain.GenerationProcessing
	task.UpdatedAt = c.now()
	if err := c.tasks.Update(ctx, task); err != nil {
		return err
	}

	if err := c.generateTaskOutputs(ctx, task); err != nil {
		task.GenerationStatus = domain.GenerationError
		task.UpdatedAt = c.now()
		if updateErr := c.tasks.Update(ctx, task); updateErr != nil {
			c.logger.Error("failed to record generation error status",
				"clinical_task_id", clinicalTaskID, "error", updateErr)
		}
		return err
	}

	task.GenerationStatus = domain.GenerationComplete
	task.MetricsGenerationStatus = domain.GenerationIdle
	task.UpdatedAt = c.now()
	return c.tasks.Update(ctx, task)
}

func (c *Coordinator) generateTaskOutputs(ctx context.Context, task *domain.ClinicalTask) error {
	totalCost := 0.0

	for i := range task.DataSetModels {
		pairing := &task.DataSetModels[i]
		if !pairing.RequiresGeneration() {
			continue
		}

		model, err := c.models.Get(ctx, pairing.ModelID)
		if err != nil {
			return err
		}
		if !model.HasIntegration() {
			continue
		}
		dataSet, err := c.dataSets.Get(ctx, pairing.DataSetID)
		if err != nil {
			return err
		}
		objects, err := c.dataObjects.GetByDataSetID(ctx, pairing.DataSetID)
		if err != nil {
			return err
		}

		r, err := c.registry.Create(model)
		if err != nil {
			return fmt.Errorf("creating runner for model %s: %w", model.ID, err)
		}

		key := fmt.Sprintf("%s_%s", model.Name, c.now().UTC().Format(generationKeyFormat))
		for _, obj := range objects {
			out, err := r.GenerateOutput(ctx, runner.Request{
				BasePrompt: task.Prompt,
				Inputs:     obj.Input,
			})
			if err != nil {
				r.Close()
				c.logger.Error("output generation failed",
					"clinical_task_id", task.ID,
					"model_id", model.ID,
					"data_object_id", obj.ID,
					"error", err)
				return err
			}

			obj.AppendGeneratedOutput(key, out, c.counter.Count(out), c.now())
			if err := c.dataObjects.UpdateMany(ctx, []*domain.DataObject{obj}); err != nil {
				r.Close()
				return err
			}

			totalCost += float64(obj.TotalInputTokens)*model.CostPerToken +
				float64(obj.TotalOutputTokens)*model.CostPerTokenOut
		}
		r.Close()

		dataSet.GeneratedDataList = append(dataSet.GeneratedDataList, key)
		dataSet.UpdatedAt = c.now()
		if err := c.dataSets.Update(ctx, dataSet); err != nil {
			return err
		}
		pairing.GeneratedOutputKey = key
	}

	task.TotalCost = totalCost
	return nil
}
