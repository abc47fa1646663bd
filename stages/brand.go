package stages

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealagent"
)

type BrandSearch struct{}

func NewBrandSearch() *BrandSearch { return &BrandSearch{} }

func (s *BrandSearch) Tool() mealagent.Tool { return mealagent.ToolBrandSearch }
func (s *BrandSearch) Title() string        { return "Brand nutrition search" }
func (s *BrandSearch) Progress() string     { return "Looking up official brand nutrition..." }
func (s *BrandSearch) UsesImage() bool      { return false }

// Params keeps temperature at zero so repeated lookups of the same item agree.
func (s *BrandSearch) Params() mealagent.GenerationParams {
	return mealagent.GenerationParams{Temperature: 0, TopP: 1, MaxTokens: 512}
}

func (s *BrandSearch) OutputSchema() *jsonschema.Schema { return brandSchema() }

func (s *BrandSearch) SystemPrompt() string {
	return systemWithSchema(brandInstructions, s.OutputSchema())
}

func (s *BrandSearch) Prompt(in Input) (string, error) {
	if in.Brand == "" {
		return "", errors.New("brand search requires a brand")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s\n", in.Brand)
	fmt.Fprintf(&b, "Item as identified: %s\n", in.Current.MealName)
	writeTranscript(&b, in.Request)
	return b.String(), nil
}

const brandInstructions = `You look up official published nutrition for restaurant and packaged-food items.

Given a brand and an item description, find the closest item on that brand's published menu or label.

RULES:
- Set found to true only if you know the brand's official figures for that item.
- If found is false, leave every other field empty or zero.
- Report figures for one standard serving of the item as sold.
- Use the official item name for meal_name.`
