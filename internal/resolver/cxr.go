package resolver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medbench/engine/internal/domain"
)

// ParseCXROutput interprets raw model output against the findings grammar: a
// JSON array of [text, coordinates] pairs, where coordinates is an array
// whose first element is [xMin, yMin, xMax, yMax] as 0-1 fractions of the
// image dimensions. It returns the finding texts joined with single spaces
// plus one bounding box per well-formed coordinate set.
//
// The parser never fails: input that is not valid findings JSON is returned
// verbatim with no boxes, and malformed coordinate sets are skipped while
// their text is kept.
func ParseCXROutput(raw, modelID string, now time.Time) (string, []domain.BoundingBox) {
	var findings [][]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		return raw, nil
	}

	var parts []string
	var boxes []domain.BoundingBox
	for _, finding := range findings {
		if len(finding) != 2 {
			continue
		}

		var text string
		if err := json.Unmarshal(finding[0], &text); err != nil || text == "" {
			continue
		}
		parts = append(parts, text)

		var coordSets [][]float64
		if err := json.Unmarshal(finding[1], &coordSets); err != nil {
			continue
		}
		if len(coordSets) == 0 || len(coordSets[0]) != 4 {
			continue
		}

		xMin, yMin, xMax, yMax := coordSets[0][0], coordSets[0][1], coordSets[0][2], coordSets[0][3]
		boxes = append(boxes, domain.BoundingBox{
			ID:             uuid.NewString(),
			X:              xMin,
			Y:              yMin,
			Width:          xMax - xMin,
			Height:         yMax - yMin,
			ModelID:        modelID,
			Annotation:     text,
			CoordinateType: "percentage",
			CreatedAt:      now,
		})
	}

	return strings.Join(parts, " "), boxes
}
