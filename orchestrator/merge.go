package orchestrator

import (
	"mealagent"
	"mealagent/parser"
)

// mergeBrand applies an official brand match. Name, totals and confidence are replaced;
// the ingredient list identified so far is kept.
func mergeBrand(current mealagent.NutritionEstimate, m parser.BrandMatch) mealagent.NutritionEstimate {
	out := current.Clone()
	out.MealName = m.MealName
	out.Nutrition = m.Nutrition
	out.Confidence = parser.ClampConfidence(m.Confidence)
	return out
}

// mergeStructured applies a deep analysis or nutrition lookup answer. A decodable answer
// replaces the estimate outright. Otherwise the estimate is kept and its confidence bumped,
// never above bumpCap and never lowered.
func mergeStructured(current mealagent.NutritionEstimate, raw string, bump, bumpCap float64) (mealagent.NutritionEstimate, bool) {
	if est, ok := parser.Decode(raw); ok {
		return est, true
	}

	out := current.Clone()
	bumped := min(bumpCap, current.Confidence+bump)
	if bumped > out.Confidence {
		out.Confidence = bumped
	}
	out.Confidence = parser.ClampConfidence(out.Confidence)
	return out, false
}
