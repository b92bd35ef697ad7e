package domain

import "time"

// ContentType distinguishes how a DataContent item is rendered.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImageURL ContentType = "imageurl"
)

// DataContent is one displayable item: inline text or an image reference.
// Immutable once created; the generation step only appends new entries.
// GeneratedForTask is set only on generated entries and carries the
// clinical-task-run key that produced the content.
type DataContent struct {
	Type             ContentType `json:"type"`
	Content          string      `json:"content"`
	TotalTokens      int         `json:"total_tokens,omitempty" validate:"min=0"`
	GeneratedForTask string      `json:"generated_for_clinical_task,omitempty"`
}

// DataObject is one evaluable unit of a dataset: the ordered model input,
// zero or more uploaded output columns, and the append-only generated
// outputs accumulated across generation runs.
type DataObject struct {
	ID                  string         `json:"id" validate:"required"`
	DataSetID           string         `json:"data_set_id" validate:"required"`
	Input               []DataContent  `json:"input_data"`
	OutputData          []DataContent  `json:"output_data,omitempty"`
	GeneratedOutputData []DataContent  `json:"generated_output_data,omitempty"`
	TotalInputTokens    int            `json:"total_input_tokens" validate:"min=0"`
	TotalOutputTokens   int            `json:"total_output_tokens" validate:"min=0"`
	OutputTokensPerKey  map[string]int `json:"output_tokens_per_key,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// AppendGeneratedOutput files a new generated answer under the given run tag
// and rolls the token count into the object's output totals. Existing entries
// are never replaced, including same-tag retries.
func (d *DataObject) AppendGeneratedOutput(tag, content string, totalTokens int, now time.Time) {
	d.GeneratedOutputData = append(d.GeneratedOutputData, DataContent{
		Type:             ContentText,
		Content:          content,
		TotalTokens:      totalTokens,
		GeneratedForTask: tag,
	})
	d.TotalOutputTokens += totalTokens
	if d.OutputTokensPerKey == nil {
		d.OutputTokensPerKey = make(map[string]int)
	}
	d.OutputTokensPerKey[tag] = totalTokens
	d.UpdatedAt = now
}

// HasGeneratedOutput reports whether any generated entry carries the tag.
func (d *DataObject) HasGeneratedOutput(tag string) bool {
	for _, g := range d.GeneratedOutputData {
		if g.GeneratedForTask == tag {
			return true
		}
	}
	return false
}

// Validate checks the data object against its structural constraints.
func (d *DataObject) Validate() error { return validate.Struct(d) }

// DataSet groups data objects under a name and records which generation keys
// have already been run against it.
type DataSet struct {
	ID                string    `json:"id" validate:"required"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	GeneratedDataList []string  `json:"generated_data_list,omitempty"`
	OwnerID           string    `json:"owner_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasGeneratedKey reports whether the key was already recorded for this set.
func (s *DataSet) HasGeneratedKey(key string) bool {
	for _, k := range s.GeneratedDataList {
		if k == key {
			return true
		}
	}
	return false
}
