package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/medbench/engine/internal/domain"
)

// metricsContainer is the object-storage container metric jobs are read from.
const metricsContainer = "metricjobs"

// Metrics document schema consumed by the downstream metric-calculation
// pipeline. The field set and shape are a contract; nullable fields are
// pointers so they serialize as explicit nulls.
type metricsDocument struct {
	MetricsType string          `json:"metrics_type"`
	ModelRun    metricsModelRun `json:"model_run"`
}

type metricsModelRun struct {
	ID      string          `json:"id"`
	Model   metricsModel    `json:"model"`
	Dataset metricsDataset  `json:"dataset"`
	Results []metricsResult `json:"results"`
}

type metricsModel struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type metricsDataset struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Instances   []metricsInstance `json:"instances"`
}

type metricsInstance struct {
	ID           int                `json:"id"`
	Input        metricsContent     `json:"input"`
	References   []metricsReference `json:"references"`
	Split        string             `json:"split"`
	SubSplit     *string            `json:"sub_split"`
	Perturbation *string            `json:"perturbation"`
}

type metricsContent struct {
	Content []metricsContentItem `json:"content"`
}

type metricsContentItem struct {
	Type                string  `json:"type"`
	Data                string  `json:"data"`
	Location            *string `json:"location"`
	Metadata            any     `json:"metadata"`
	HighlightedSegments []any   `json:"highlighted_segments"`
}

type metricsImageMetadata struct {
	Name  string `json:"name"`
	Organ string `json:"organ"`
}

type metricsReference struct {
	Output metricsContent `json:"output"`
	Tags   []string       `json:"tags"`
}

type metricsResult struct {
	InputID      int            `json:"input_id"`
	Completions  metricsContent `json:"completions"`
	FinishReason string         `json:"finish_reason"`
	Error        *string        `json:"error"`
}

// GenerateMetricsJSONFile renders one model's outputs over the task's data
// objects as a metric-calculation input document and uploads it. The blob
// name the document landed under is returned. When modelOutputIndex is the
// generation sentinel, outputs are read from each object's generated entries
// under generatedOutputKey; otherwise from the uploaded output column.
func (c *Coordinator) GenerateMetricsJSONFile(
	ctx context.Context,
	task *domain.ClinicalTask,
	model *domain.Model,
	dataObjects []*domain.DataObject,
	generatedOutputKey string,
	modelOutputIndex int,
) (string, error) {
	c.logger.Info("generating metrics document",
		"clinical_task_id", task.ID, "model", model.Name)

	groundTruth := task.GroundTruthPairing()

	doc := metricsDocument{
		MetricsType: mapEvalMetricToMetricsType(task.EvalMetric),
		ModelRun: metricsModelRun{
			ID: fmt.Sprintf("%s_%s", task.ID, model.ID),
			Model: metricsModel{
				Name:    model.Name,
				Version: c.modelVersion(model),
			},
			Dataset: metricsDataset{
				Name:        fmt.Sprintf("clinical_task_%s", task.ID),
				Description: fmt.Sprintf("Dataset for clinical task %s", task.Name),
			},
		},
	}

	for i, obj := range dataObjects {
		doc.ModelRun.Dataset.Instances = append(doc.ModelRun.Dataset.Instances,
			buildInstance(obj, task.Prompt, groundTruth, i))
		doc.ModelRun.Results = append(doc.ModelRun.Results,
			buildResult(obj, generatedOutputKey, modelOutputIndex, i))
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding metrics document: %w", err)
	}

	blobName := fmt.Sprintf("metric_calculation_input/%s/%s_%s.json",
		model.Name, task.ID, c.now().UTC().Format("20060102_150405"))
	name, err := c.blobs.Upload(ctx, metricsContainer, blobName, payload)
	if err != nil {
		return "", fmt.Errorf("uploading metrics document %s: %w", blobName, err)
	}
	c.logger.Info("uploaded metrics document", "blob", name)
	return name, nil
}

func (c *Coordinator) modelVersion(model *domain.Model) string {
	if v := model.Integration["VERSION"]; v != "" {
		return v
	}
	return c.now().UTC().Format("2006-01-02")
}

// mapEvalMetricToMetricsType maps a clinical task's evaluation metric label
// to the downstream metrics_type, defaulting to summarization.
func mapEvalMetricToMetricsType(evalMetric string) string {
	switch evalMetric {
	case domain.MetricTextBased:
		return "summarization"
	case domain.MetricImageBased:
		return "image_quality"
	case domain.MetricAccuracy:
		return "accuracy"
	case domain.MetricSafety:
		return "safety"
	case domain.MetricBias:
		return "bias"
	}
	return "summarization"
}

// buildInstance renders one data object as a dataset instance: the task
// prompt, every input item, and the ground-truth reference when the task
// declares one.
func buildInstance(obj *domain.DataObject, prompt string, groundTruth *domain.DataSetModel, id int) metricsInstance {
	var content []metricsContentItem
	if prompt != "" {
		content = append(content, textItem(prompt))
	}
	for _, input := range obj.Input {
		if input.Type == domain.ContentImageURL {
			content = append(content, metricsContentItem{
				Type: "Image",
				Data: input.Content,
				Metadata: metricsImageMetadata{
					Name:  path.Base(input.Content),
					Organ: organFromImagePath(input.Content),
				},
				HighlightedSegments: []any{},
			})
			continue
		}
		content = append(content, textItem(input.Content))
	}

	references := []metricsReference{}
	if groundTruth != nil &&
		groundTruth.ModelOutputIndex >= 0 &&
		groundTruth.ModelOutputIndex < len(obj.OutputData) {
		references = append(references, metricsReference{
			Output: metricsContent{
				Content: []metricsContentItem{textItem(obj.OutputData[groundTruth.ModelOutputIndex].Content)},
			},
			Tags: []string{"Correct"},
		})
	}

	return metricsInstance{
		ID:         id,
		Input:      metricsContent{Content: content},
		References: references,
		Split:      "Train",
	}
}

// buildResult renders the model's output for one data object.
func buildResult(obj *domain.DataObject, generatedOutputKey string, modelOutputIndex, id int) metricsResult {
	data := "No generated output found"
	if modelOutputIndex == domain.GeneratedNone {
		for _, g := range obj.GeneratedOutputData {
			if g.GeneratedForTask == generatedOutputKey {
				data = g.Content
				break
			}
		}
	} else if modelOutputIndex >= 0 && modelOutputIndex < len(obj.OutputData) {
		data = obj.OutputData[modelOutputIndex].Content
	}

	return metricsResult{
		InputID:      id,
		Completions:  metricsContent{Content: []metricsContentItem{textItem(data)}},
		FinishReason: "stop",
	}
}

func textItem(data string) metricsContentItem {
	return metricsContentItem{
		Type:                "Text",
		Data:                data,
		HighlightedSegments: []any{},
	}
}

// organFromImagePath guesses the imaged organ from the image path so the
// downstream viewer can group instances. Unknown paths map to UNKNOWN.
func organFromImagePath(imagePath string) string {
	lower := strings.ToLower(imagePath)
	switch {
	case strings.Contains(lower, "chest"):
		return "CHEST"
	case strings.Contains(lower, "head"):
		return "HEAD"
	case strings.Contains(lower, "brain"):
		return "BRAIN"
	case strings.Contains(lower, "abdomen"):
		return "ABDOMEN"
	}
	return "UNKNOWN"
}
