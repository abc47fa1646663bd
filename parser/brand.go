package parser

import (
	"encoding/json"
	"strings"

	"mealagent"
)

// BrandMatch is the decoded answer of a brand search stage.
type BrandMatch struct {
	Found      bool
	Brand      string
	MealName   string
	Nutrition  mealagent.Nutrition
	Confidence float64
	Source     string
}

type wireBrand struct {
	Found      bool    `json:"found"`
	Brand      string  `json:"brand"`
	MealName   string  `json:"meal_name"`
	Calories   float64 `json:"calories"`
	ProteinG   float64 `json:"protein_g"`
	CarbsG     float64 `json:"carbs_g"`
	FatG       float64 `json:"fat_g"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ParseBrand decodes a brand search answer. A match that claims found but names no
// item is treated as undecodable.
func ParseBrand(raw string) (BrandMatch, bool) {
	body, ok := ExtractObject(raw)
	if !ok {
		return BrandMatch{}, false
	}

	var w wireBrand
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return BrandMatch{}, false
	}

	m := BrandMatch{
		Found:      w.Found,
		Brand:      strings.TrimSpace(w.Brand),
		MealName:   strings.TrimSpace(w.MealName),
		Confidence: ClampConfidence(w.Confidence),
		Source:     strings.TrimSpace(w.Source),
		Nutrition: mealagent.Nutrition{
			Calories: Calories(w.Calories),
			ProteinG: nonNegative(w.ProteinG),
			CarbsG:   nonNegative(w.CarbsG),
			FatG:     nonNegative(w.FatG),
		},
	}
	if m.Found && m.MealName == "" {
		return BrandMatch{}, false
	}

	return m, true
}
