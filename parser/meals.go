package parser

import (
	"encoding/json"
	"strings"
)

// MealItem is one meal segmented out of a free-text description by the model.
type MealItem struct {
	Name        string
	Description string
	Calories    int
	ProteinG    float64
	CarbsG      float64
	FatG        float64
}

type wireMeal struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Calories    float64 `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
}

// ParseMeals decodes a JSON array of meals, or an object wrapping one under "meals".
// It reports false when nothing usable was found.
func ParseMeals(raw string) ([]MealItem, bool) {
	var wire []wireMeal

	arr, arrOK := ExtractArray(raw)
	obj, objOK := ExtractObject(raw)

	switch {
	case arrOK && (!objOK || strings.Index(raw, arr) < strings.Index(raw, obj)):
		if err := json.Unmarshal([]byte(arr), &wire); err != nil {
			return nil, false
		}
	case objOK:
		var wrapped struct {
			Meals []wireMeal `json:"meals"`
		}
		if err := json.Unmarshal([]byte(obj), &wrapped); err != nil {
			return nil, false
		}
		wire = wrapped.Meals
	default:
		return nil, false
	}

	meals := make([]MealItem, 0, len(wire))
	for _, w := range wire {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			continue
		}
		meals = append(meals, MealItem{
			Name:        name,
			Description: strings.TrimSpace(w.Description),
			Calories:    Calories(w.Calories),
			ProteinG:    nonNegative(w.ProteinG),
			CarbsG:      nonNegative(w.CarbsG),
			FatG:        nonNegative(w.FatG),
		})
	}

	return meals, len(meals) > 0
}
