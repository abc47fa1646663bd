package stages

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealagent"
)

type NutritionLookup struct{}

func NewNutritionLookup() *NutritionLookup { return &NutritionLookup{} }

func (s *NutritionLookup) Tool() mealagent.Tool { return mealagent.ToolNutritionLookup }
func (s *NutritionLookup) Title() string        { return "Nutrition database lookup" }
func (s *NutritionLookup) Progress() string     { return "Checking nutrition databases..." }
func (s *NutritionLookup) UsesImage() bool      { return false }

func (s *NutritionLookup) Params() mealagent.GenerationParams {
	return mealagent.GenerationParams{Temperature: 0.2, TopP: 0.9, MaxTokens: 1024}
}

func (s *NutritionLookup) OutputSchema() *jsonschema.Schema { return estimateSchema() }

func (s *NutritionLookup) SystemPrompt() string {
	return systemWithSchema(lookupInstructions, s.OutputSchema())
}

func (s *NutritionLookup) Prompt(in Input) (string, error) {
	var b strings.Builder
	b.WriteString("Recompute the nutrition of this meal from standard reference values for each ingredient.\n")
	if err := writeEstimate(&b, in.Current); err != nil {
		return "", err
	}
	writeTranscript(&b, in.Request)
	return b.String(), nil
}

const lookupInstructions = `You are a nutrition database. You compute nutrition from reference values (USDA FoodData Central or equivalent) for the listed ingredients and amounts.

RULES:
- Keep the ingredient list as given unless an entry is clearly a duplicate.
- Sum per-ingredient values into the nutrition totals.
- Set confidence to reflect how well the ingredients map to reference foods.`
