package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mealagent"
	"mealagent/parser"
)

func sampleEstimate(conf float64) mealagent.NutritionEstimate {
	return mealagent.NutritionEstimate{
		MealName:   "Burger and fries",
		Confidence: conf,
		Ingredients: []mealagent.Ingredient{
			{Name: "Beef patty", Amount: 1, Unit: "each", FoodGroup: "protein"},
			{Name: "Fries", Amount: 1, Unit: "medium", FoodGroup: "grains"},
		},
		Nutrition: mealagent.Nutrition{Calories: 850, ProteinG: 30, CarbsG: 90, FatG: 40},
	}
}

func TestMergeBrand(t *testing.T) {
	current := sampleEstimate(0.7)
	m := parser.BrandMatch{
		Found:      true,
		Brand:      "Five Guys",
		MealName:   "Cheeseburger with regular fries",
		Nutrition:  mealagent.Nutrition{Calories: 1793, ProteinG: 64, CarbsG: 171, FatG: 99},
		Confidence: 0.93,
	}

	got := mergeBrand(current, m)

	assert.Equal(t, "Cheeseburger with regular fries", got.MealName)
	assert.Equal(t, m.Nutrition, got.Nutrition)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.Equal(t, current.Ingredients, got.Ingredients)

	got.Ingredients[0].Name = "changed"
	assert.Equal(t, "Beef patty", current.Ingredients[0].Name, "merge must not share slices with its input")
}

func TestMergeStructured(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float64
		raw         string
		wantConf    float64
		wantDecoded bool
		wantName    string
	}{
		{name: "bump", confidence: 0.6, raw: "no json here", wantConf: 0.75, wantName: "Burger and fries"},
		{name: "bump capped", confidence: 0.8, raw: "no json here", wantConf: 0.9, wantName: "Burger and fries"},
		{name: "never lowered above cap", confidence: 0.95, raw: "{}", wantConf: 0.95, wantName: "Burger and fries"},
		{
			name:        "decoded output replaces",
			confidence:  0.6,
			raw:         `{"meal_name":"Smash burger","confidence":0.82,"ingredients":[{"name":"Beef","amount":2,"unit":"patty","food_group":"protein"}],"nutrition":{"calories":700}}`,
			wantConf:    0.82,
			wantDecoded: true,
			wantName:    "Smash burger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := sampleEstimate(tt.confidence)
			got, decoded := mergeStructured(current, tt.raw, 0.15, 0.9)

			assert.Equal(t, tt.wantDecoded, decoded)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
			assert.Equal(t, tt.wantName, got.MealName)
			if !decoded {
				assert.Equal(t, current.Ingredients, got.Ingredients)
				assert.Equal(t, current.Nutrition, got.Nutrition)
			}
		})
	}
}
