package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/temcen/crowdlens/pkg/models"
)

// startingPointSchema type-checks the recognized experiment knobs. Unknown
// keys stay allowed: genuinely optional knobs are ignored by stages that do
// not recognize them.
const startingPointSchema = `{
	"type": "object",
	"properties": {
		"twoTower":      {"type": "boolean"},
		"collabFilter":  {"type": "boolean"},
		"yourChoice":    {"type": "boolean"},
		"inverseFilter": {"type": "boolean"},
		"content_id":    {"type": "string", "format": "uuid"},
		"content_ids": {
			"type": "array",
			"items": {"type": "string", "format": "uuid"}
		}
	},
	"additionalProperties": true
}`

var startingPointLoader = gojsonschema.NewStringLoader(startingPointSchema)

// ParseStartingPoint validates and decodes the raw starting-point flag bag.
// An empty input yields an empty StartingPoint.
func ParseStartingPoint(raw string) (*models.StartingPoint, error) {
	if strings.TrimSpace(raw) == "" {
		return &models.StartingPoint{}, nil
	}

	result, err := gojsonschema.Validate(startingPointLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("starting_point is not valid JSON: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("starting_point validation failed: %s", strings.Join(details, "; "))
	}

	var sp models.StartingPoint
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return nil, fmt.Errorf("failed to decode starting_point: %w", err)
	}
	return &sp, nil
}
