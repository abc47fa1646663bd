package stages

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealagent"
)

type Retrospective struct{}

func NewRetrospective() *Retrospective { return &Retrospective{} }

func (s *Retrospective) Tool() mealagent.Tool { return mealagent.ToolRetrospective }
func (s *Retrospective) Title() string        { return "Retrospective meal parsing" }
func (s *Retrospective) Progress() string     { return "Sorting out what you ate..." }
func (s *Retrospective) UsesImage() bool      { return false }

func (s *Retrospective) Params() mealagent.GenerationParams {
	return mealagent.GenerationParams{Temperature: 0.3, TopP: 0.9, MaxTokens: 1536}
}

func (s *Retrospective) OutputSchema() *jsonschema.Schema { return mealsSchema() }

func (s *Retrospective) SystemPrompt() string {
	return systemWithSchema(retrospectiveInstructions, s.OutputSchema())
}

func (s *Retrospective) Prompt(in Input) (string, error) {
	if strings.TrimSpace(in.Description) == "" {
		return "", errors.New("retrospective parsing requires a description")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Description: %q\n", in.Description)
	if len(in.Windows) > 0 {
		b.WriteString("Meal windows in order:\n")
		for i, w := range in.Windows {
			fmt.Fprintf(&b, "%d. %s (%s-%s)\n", i+1, w.Name, w.Start.Format("15:04"), w.End.Format("15:04"))
		}
	}
	return b.String(), nil
}

const retrospectiveInstructions = `You turn a free-text description of several past meals into a list of discrete meals.

RULES:
- Return one array element per distinct meal, in the order they were eaten.
- Foods eaten together belong to the same meal ("eggs and toast" is one breakfast).
- Estimate calories and macronutrients for a typical portion of each meal.
- Do not invent meals that were not described.`
