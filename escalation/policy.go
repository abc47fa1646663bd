// Package escalation decides whether an estimate needs a more expensive analysis stage
// and which stage runs next. Everything here is pure: no I/O, no clocks.
package escalation

import (
	"slices"

	"mealagent"
)

// Thresholds are the product-tuned cut-offs of the policy.
type Thresholds struct {
	EscalateBelowConfidence     float64
	DeepAnalysisBelowConfidence float64
	LookupBelowConfidence       float64
	HighCalorieThreshold        int
	HighCalorieConfidence       float64
	ComplexIngredientCount      int
	LookupMaxIngredients        int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EscalateBelowConfidence:     0.75,
		DeepAnalysisBelowConfidence: 0.85,
		LookupBelowConfidence:       0.9,
		HighCalorieThreshold:        800,
		HighCalorieConfidence:       0.85,
		ComplexIngredientCount:      5,
		LookupMaxIngredients:        3,
	}
}

func ThresholdsFromConfig(cfg mealagent.EscalationConfig) Thresholds {
	return Thresholds{
		EscalateBelowConfidence:     cfg.EscalateBelowConfidence,
		DeepAnalysisBelowConfidence: cfg.DeepAnalysisBelowConfidence,
		LookupBelowConfidence:       cfg.LookupBelowConfidence,
		HighCalorieThreshold:        cfg.HighCalorieThreshold,
		HighCalorieConfidence:       cfg.HighCalorieConfidence,
		ComplexIngredientCount:      cfg.ComplexIngredientCount,
		LookupMaxIngredients:        cfg.LookupMaxIngredients,
	}
}

// Signals is everything the policy observed about one estimate.
type Signals struct {
	Brand            string
	PortionIndicator string
	CompositeDish    string
	LowConfidence    bool
	ManyIngredients  bool
	HighCalorie      bool
}

// Any reports whether at least one escalation trigger fired.
func (s Signals) Any() bool {
	return s.LowConfidence ||
		s.Brand != "" ||
		s.PortionIndicator != "" ||
		s.ManyIngredients ||
		s.CompositeDish != "" ||
		s.HighCalorie
}

type Policy struct {
	thresholds Thresholds
	vocab      Vocabulary
}

func NewPolicy(t Thresholds, v Vocabulary) *Policy {
	return &Policy{thresholds: t, vocab: v}
}

func (p *Policy) Thresholds() Thresholds { return p.thresholds }

// Inspect evaluates every trigger against the estimate and the request transcript.
func (p *Policy) Inspect(est mealagent.NutritionEstimate, req mealagent.AnalysisRequest) Signals {
	var s Signals
	s.Brand, _ = firstMatch(p.vocab.Brands, est.MealName, req.Transcript)
	s.PortionIndicator, _ = firstMatch(p.vocab.PortionIndicators, est.MealName, req.Transcript)
	s.CompositeDish, _ = firstMatch(p.vocab.CompositeDishes, est.MealName)
	s.LowConfidence = est.Confidence < p.thresholds.EscalateBelowConfidence
	s.ManyIngredients = len(est.Ingredients) > p.thresholds.ComplexIngredientCount
	s.HighCalorie = est.Nutrition.Calories > p.thresholds.HighCalorieThreshold &&
		est.Confidence < p.thresholds.HighCalorieConfidence
	return s
}

func (p *Policy) ShouldEscalate(est mealagent.NutritionEstimate, req mealagent.AnalysisRequest) bool {
	return p.Inspect(est, req).Any()
}

// DetectBrand returns the first brand named in the meal name or transcript.
func (p *Policy) DetectBrand(est mealagent.NutritionEstimate, req mealagent.AnalysisRequest) (string, bool) {
	return firstMatch(p.vocab.Brands, est.MealName, req.Transcript)
}

// NextTool picks the next stage in fixed order: brand search, deep analysis,
// nutrition lookup. Each stage runs at most once. ToolNone means stop.
func (p *Policy) NextTool(est mealagent.NutritionEstimate, req mealagent.AnalysisRequest, used []mealagent.Tool) mealagent.Tool {
	if !slices.Contains(used, mealagent.ToolBrandSearch) {
		if _, ok := p.DetectBrand(est, req); ok {
			return mealagent.ToolBrandSearch
		}
	}

	if !slices.Contains(used, mealagent.ToolDeepAnalysis) &&
		est.Confidence < p.thresholds.DeepAnalysisBelowConfidence {
		return mealagent.ToolDeepAnalysis
	}

	if !slices.Contains(used, mealagent.ToolNutritionLookup) &&
		len(est.Ingredients) <= p.thresholds.LookupMaxIngredients &&
		est.Confidence < p.thresholds.LookupBelowConfidence {
		return mealagent.ToolNutritionLookup
	}

	return mealagent.ToolNone
}

// Complexity rates how hard the meal was to analyze.
func (p *Policy) Complexity(est mealagent.NutritionEstimate, req mealagent.AnalysisRequest) mealagent.ComplexityRating {
	s := p.Inspect(est, req)
	switch {
	case s.Brand != "" || s.PortionIndicator != "":
		return mealagent.ComplexityRestaurant
	case s.ManyIngredients || s.CompositeDish != "":
		return mealagent.ComplexityComplex
	case len(est.Ingredients) >= 3:
		return mealagent.ComplexityModerate
	default:
		return mealagent.ComplexitySimple
	}
}
