package stages

import "github.com/modelcontextprotocol/go-sdk/jsonschema"

func estimateSchema() *jsonschema.Schema {
	zero := 0.0
	one := 1.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meal_name":  {Type: "string", Description: "short name of the whole meal"},
			"confidence": {Type: "number", Minimum: &zero, Maximum: &one},
			"ingredients": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":       {Type: "string"},
						"amount":     {Type: "number", Minimum: &zero},
						"unit":       {Type: "string"},
						"food_group": {Type: "string"},
					},
					Required: []string{"name", "amount", "unit", "food_group"},
				},
			},
			"nutrition": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"calories":  {Type: "integer", Minimum: &zero},
					"protein_g": {Type: "number", Minimum: &zero},
					"carbs_g":   {Type: "number", Minimum: &zero},
					"fat_g":     {Type: "number", Minimum: &zero},
				},
				Required: []string{"calories", "protein_g", "carbs_g", "fat_g"},
			},
			"micronutrients": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":        {Type: "string"},
						"amount":      {Type: "number", Minimum: &zero},
						"unit":        {Type: "string"},
						"percent_rda": {Type: "number", Minimum: &zero},
					},
					Required: []string{"name", "amount", "unit"},
				},
			},
			"open_clarifications": {
				Type:        "array",
				Items:       &jsonschema.Schema{Type: "string"},
				Description: "questions for the user about anything you could not determine",
			},
		},
		Required: []string{"meal_name", "confidence", "ingredients", "nutrition"},
	}
}

func brandSchema() *jsonschema.Schema {
	zero := 0.0
	one := 1.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"found":      {Type: "boolean"},
			"brand":      {Type: "string"},
			"meal_name":  {Type: "string", Description: "official menu item name"},
			"calories":   {Type: "integer", Minimum: &zero},
			"protein_g":  {Type: "number", Minimum: &zero},
			"carbs_g":    {Type: "number", Minimum: &zero},
			"fat_g":      {Type: "number", Minimum: &zero},
			"confidence": {Type: "number", Minimum: &zero, Maximum: &one},
			"source":     {Type: "string", Description: "where the official figures come from"},
		},
		Required: []string{"found"},
	}
}

func mealsSchema() *jsonschema.Schema {
	zero := 0.0
	return &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name":        {Type: "string"},
				"description": {Type: "string"},
				"calories":    {Type: "integer", Minimum: &zero},
				"protein_g":   {Type: "number", Minimum: &zero},
				"carbs_g":     {Type: "number", Minimum: &zero},
				"fat_g":       {Type: "number", Minimum: &zero},
			},
			Required: []string{"name", "calories", "protein_g", "carbs_g", "fat_g"},
		},
	}
}
