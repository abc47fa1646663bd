// Package parser turns raw model text into validated nutrition estimates.
//
// Models often wrap their JSON in prose or code fences. The parser locates the
// outermost JSON value, decodes it strictly and normalizes the result. A response
// that cannot be decoded never becomes an error: it becomes a Fallback result.
package parser

import (
	"encoding/json"
	"math"
	"strings"

	"mealagent"
)

const (
	// FallbackConfidence is the fixed confidence of the placeholder estimate.
	FallbackConfidence = 0.3
	// MaxCalories caps model-reported calorie totals.
	MaxCalories = 20000

	fallbackMealName = "Unidentified meal"
)

// Result is a parsed estimate tagged with whether it came from the model or is the placeholder.
type Result struct {
	Estimate mealagent.NutritionEstimate
	Fallback bool
}

// Trusted reports whether the estimate was decoded from model output.
func (r Result) Trusted() bool { return !r.Fallback }

// FallbackEstimate returns the deterministic placeholder used whenever model output is unusable.
func FallbackEstimate() mealagent.NutritionEstimate {
	return mealagent.NutritionEstimate{
		MealName:   fallbackMealName,
		Confidence: FallbackConfidence,
		Ingredients: []mealagent.Ingredient{
			{Name: "Unidentified food", Amount: 1, Unit: "serving", FoodGroup: "mixed"},
		},
		Nutrition: mealagent.Nutrition{
			Calories: 400,
			ProteinG: 20,
			CarbsG:   45,
			FatG:     15,
		},
		OpenClarifications: []string{"We couldn't identify this meal. What did you eat?"},
	}
}

type wireIngredient struct {
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Unit      string  `json:"unit"`
	FoodGroup string  `json:"food_group"`
}

type wireNutrition struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type wireMicronutrient struct {
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Unit       string  `json:"unit"`
	PercentRDA float64 `json:"percent_rda"`
}

type wireEstimate struct {
	MealName           string              `json:"meal_name"`
	Confidence         float64             `json:"confidence"`
	Ingredients        []wireIngredient    `json:"ingredients"`
	Nutrition          *wireNutrition      `json:"nutrition"`
	Micronutrients     []wireMicronutrient `json:"micronutrients"`
	OpenClarifications []string            `json:"open_clarifications"`

	// Some models flatten the totals onto the top level.
	Calories *float64 `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	CarbsG   *float64 `json:"carbs_g"`
	FatG     *float64 `json:"fat_g"`
}

// Parse decodes a nutrition estimate from raw model text. It never fails; unusable
// text yields FallbackEstimate with Fallback set.
func Parse(raw string) Result {
	est, ok := Decode(raw)
	if !ok {
		return Result{Estimate: FallbackEstimate(), Fallback: true}
	}
	return Result{Estimate: est}
}

// Decode is the strict half of Parse: it reports false instead of substituting the placeholder.
func Decode(raw string) (mealagent.NutritionEstimate, bool) {
	body, ok := ExtractObject(raw)
	if !ok {
		return mealagent.NutritionEstimate{}, false
	}

	var w wireEstimate
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return mealagent.NutritionEstimate{}, false
	}
	if strings.TrimSpace(w.MealName) == "" {
		return mealagent.NutritionEstimate{}, false
	}

	return normalize(w), true
}

func normalize(w wireEstimate) mealagent.NutritionEstimate {
	est := mealagent.NutritionEstimate{
		MealName:   strings.TrimSpace(w.MealName),
		Confidence: ClampConfidence(w.Confidence),
	}

	for _, ing := range w.Ingredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			continue
		}
		est.Ingredients = append(est.Ingredients, mealagent.Ingredient{
			Name:      name,
			Amount:    nonNegative(ing.Amount),
			Unit:      strings.TrimSpace(ing.Unit),
			FoodGroup: strings.TrimSpace(ing.FoodGroup),
		})
	}

	n := wireNutrition{}
	if w.Nutrition != nil {
		n = *w.Nutrition
	}
	overlay(&n.Calories, w.Calories)
	overlay(&n.ProteinG, w.ProteinG)
	overlay(&n.CarbsG, w.CarbsG)
	overlay(&n.FatG, w.FatG)
	est.Nutrition = mealagent.Nutrition{
		Calories: Calories(n.Calories),
		ProteinG: nonNegative(n.ProteinG),
		CarbsG:   nonNegative(n.CarbsG),
		FatG:     nonNegative(n.FatG),
	}

	for _, m := range w.Micronutrients {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		est.Micronutrients = append(est.Micronutrients, mealagent.Micronutrient{
			Name:       name,
			Amount:     nonNegative(m.Amount),
			Unit:       strings.TrimSpace(m.Unit),
			PercentRDA: nonNegative(m.PercentRDA),
		})
	}

	for _, q := range w.OpenClarifications {
		if q = strings.TrimSpace(q); q != "" {
			est.OpenClarifications = append(est.OpenClarifications, q)
		}
	}

	// an estimate with nothing identified must say so
	if len(est.Ingredients) == 0 && len(est.OpenClarifications) == 0 {
		est.OpenClarifications = []string{"Which foods are in this meal?"}
	}

	return est
}

// ClampConfidence forces a confidence into [0,1]. Values in [2,100] are read as percentages,
// anything just above 1 is clamped.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c <= 1:
		return c
	case c < 2:
		return 1
	case c <= 100:
		return c / 100
	default:
		return 1
	}
}

// Calories rounds a reported calorie total into [0, MaxCalories].
func Calories(v float64) int {
	return int(math.Round(math.Min(nonNegative(v), MaxCalories)))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func overlay(dst *float64, v *float64) {
	if v != nil && *dst == 0 {
		*dst = *v
	}
}
