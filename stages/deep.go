package stages

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealagent"
)

type DeepAnalysis struct{}

func NewDeepAnalysis() *DeepAnalysis { return &DeepAnalysis{} }

func (s *DeepAnalysis) Tool() mealagent.Tool { return mealagent.ToolDeepAnalysis }
func (s *DeepAnalysis) Title() string        { return "Deep ingredient analysis" }
func (s *DeepAnalysis) Progress() string     { return "Taking a closer look at the ingredients..." }
func (s *DeepAnalysis) UsesImage() bool      { return true }

func (s *DeepAnalysis) Params() mealagent.GenerationParams {
	return mealagent.GenerationParams{Temperature: 0.7, TopP: 0.95, MaxTokens: 2048}
}

func (s *DeepAnalysis) OutputSchema() *jsonschema.Schema { return estimateSchema() }

func (s *DeepAnalysis) SystemPrompt() string {
	return systemWithSchema(deepInstructions, s.OutputSchema())
}

func (s *DeepAnalysis) Prompt(in Input) (string, error) {
	var b strings.Builder
	b.WriteString("Re-examine the photo ingredient by ingredient and produce a complete, corrected estimate.\n")
	if err := writeEstimate(&b, in.Current); err != nil {
		return "", err
	}
	writeTranscript(&b, in.Request)
	writeUserContext(&b, in.Request)
	return b.String(), nil
}

const deepInstructions = `You are a meticulous nutrition analyst reviewing a first-pass meal estimate.

Break the meal down into individual components, including hidden ones: cooking fats, dressings, sauces, breading, toppings. Re-estimate each portion from visual cues such as plate size, utensils and packaging.

RULES:
- Return a complete replacement estimate, not a diff.
- Include micronutrients you can estimate with reasonable confidence.
- Raise confidence only where the closer look actually resolved uncertainty.
- Keep questions you still cannot answer in open_clarifications.`
