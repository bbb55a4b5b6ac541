package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lamim/quizforge/internal/util"
	"github.com/lamim/quizforge/pkg/models"
)

// wrapper keys some models use around the item list
var listKeys = []string{"questions", "items", "challenges"}

// ParseItems extracts raw items from a model response. It accepts a bare
// array, an object wrapping the array, or a single item object.
func ParseItems(raw string) ([]models.RawItem, error) {
	text := util.ExtractJSON(util.StripReasoning(raw))
	if !strings.HasPrefix(text, "[") && !strings.HasPrefix(text, "{") {
		if pattern, ok := refusalReason(text); ok {
			return nil, fmt.Errorf("%w: model refused (%q)", ErrMalformedOutput, pattern)
		}
		return nil, fmt.Errorf("%w: no JSON found in response", ErrMalformedOutput)
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		if err2 := json.Unmarshal([]byte(util.RepairJSON(text)), &decoded); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	}

	switch v := decoded.(type) {
	case []any:
		return collect(v), nil
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := v[key].([]any); ok {
				return collect(list), nil
			}
		}
		return []models.RawItem{v}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected JSON type %T", ErrMalformedOutput, decoded)
	}
}

// collect keeps object elements; anything else cannot be an item
func collect(list []any) []models.RawItem {
	items := make([]models.RawItem, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}
