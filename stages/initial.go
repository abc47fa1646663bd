package stages

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealagent"
)

type InitialAnalysis struct{}

func NewInitialAnalysis() *InitialAnalysis { return &InitialAnalysis{} }

func (s *InitialAnalysis) Tool() mealagent.Tool { return mealagent.ToolInitialAnalysis }
func (s *InitialAnalysis) Title() string        { return "Initial meal analysis" }
func (s *InitialAnalysis) Progress() string     { return "Analyzing your meal..." }
func (s *InitialAnalysis) UsesImage() bool      { return true }

func (s *InitialAnalysis) Params() mealagent.GenerationParams {
	return mealagent.GenerationParams{Temperature: 0.4, TopP: 0.9, MaxTokens: 1024}
}

func (s *InitialAnalysis) OutputSchema() *jsonschema.Schema { return estimateSchema() }

func (s *InitialAnalysis) SystemPrompt() string {
	return systemWithSchema(initialInstructions, s.OutputSchema())
}

func (s *InitialAnalysis) Prompt(in Input) (string, error) {
	var b strings.Builder
	b.WriteString("Identify the meal in the photo and estimate its nutrition.\n")
	writeTranscript(&b, in.Request)
	writeUserContext(&b, in.Request)
	return b.String(), nil
}

const initialInstructions = `You are a nutrition analyst looking at a photo of a meal.

Identify every visible food, estimate portion sizes in common units, and estimate total calories and macronutrients for the whole plate.

RULES:
- confidence is your honest reliability estimate between 0 and 1.
- If the meal comes from a restaurant or a packaged brand, include the brand in meal_name.
- Use the user's description to resolve what the photo cannot show (sauces, cooking oil, hidden fillings).
- When you cannot determine something important, add a short question to open_clarifications instead of guessing wildly.
- Never adjust the estimate to fit the user's targets; they are context only.`
