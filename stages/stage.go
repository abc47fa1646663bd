// Package stages holds the prompt strategy of every inference tool: what the model is
// told, which JSON shape it must answer with, and how it should sample.
package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealagent"
)

// Input is everything a stage may draw on when building its prompt.
type Input struct {
	Request mealagent.AnalysisRequest
	// Current is the running best estimate. Zero for the initial stage.
	Current mealagent.NutritionEstimate
	// Brand is the brand matched by the escalation policy, for brand search.
	Brand string

	// Retrospective input.
	Description string
	Windows     []mealagent.MealWindow
}

type Stage interface {
	Tool() mealagent.Tool
	Title() string
	// Progress is the human-readable message shown while the stage runs.
	Progress() string
	SystemPrompt() string
	Prompt(in Input) (string, error)
	OutputSchema() *jsonschema.Schema
	Params() mealagent.GenerationParams
	UsesImage() bool
}

// systemWithSchema appends the stage's output schema to its instructions.
func systemWithSchema(instructions string, schema *jsonschema.Schema) string {
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// schemas are static; a failure here is a programming error
		panic(fmt.Sprintf("marshal output schema: %v", err))
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nOUTPUT JSON SCHEMA:\n")
	b.Write(raw)
	b.WriteString("\n\nReturn ONLY the JSON value. No explanations, no markdown, no code fences.\n")
	return b.String()
}

// writeUserContext renders the user's goal, daily targets and active meal window.
func writeUserContext(b *strings.Builder, req mealagent.AnalysisRequest) {
	if req.User.Goal != "" {
		fmt.Fprintf(b, "User goal: %s\n", req.User.Goal)
	}
	if t := req.User.DailyTargets; t.Calories > 0 {
		fmt.Fprintf(b, "Daily targets: %d kcal, %.0fg protein, %.0fg carbs, %.0fg fat\n",
			t.Calories, t.ProteinG, t.CarbsG, t.FatG)
	}
	if w := req.Window; w != nil {
		fmt.Fprintf(b, "Current meal window: %s (%s-%s), remaining %d kcal, %.0fg protein, %.0fg carbs, %.0fg fat\n",
			w.Name, w.Start.Format("15:04"), w.End.Format("15:04"),
			w.Targets.Calories, w.Targets.ProteinG, w.Targets.CarbsG, w.Targets.FatG)
	}
}

func writeTranscript(b *strings.Builder, req mealagent.AnalysisRequest) {
	if t := strings.TrimSpace(req.Transcript); t != "" {
		fmt.Fprintf(b, "The user described the meal as: %q\n", t)
	}
}

// writeEstimate renders the running estimate so a later stage can refine it.
func writeEstimate(b *strings.Builder, est mealagent.NutritionEstimate) error {
	raw, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("failed to encode current estimate: %w", err)
	}
	b.WriteString("Current estimate:\n")
	b.Write(raw)
	b.WriteString("\n")
	return nil
}
