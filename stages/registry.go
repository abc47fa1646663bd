package stages

import (
	"fmt"
	"slices"
	"strings"

	"mealagent"
)

// Registry maps tools to their stage implementations
type Registry map[mealagent.Tool]Stage

// NewRegistry creates a registry holding every analysis stage.
func NewRegistry() *Registry {
	stages := map[mealagent.Tool]Stage{
		mealagent.ToolInitialAnalysis: NewInitialAnalysis(),
		mealagent.ToolBrandSearch:     NewBrandSearch(),
		mealagent.ToolDeepAnalysis:    NewDeepAnalysis(),
		mealagent.ToolNutritionLookup: NewNutritionLookup(),
		mealagent.ToolRetrospective:   NewRetrospective(),
	}

	registry := Registry(stages)
	return &registry
}

// GetStages returns all stages ordered by tool name
func (r *Registry) GetStages() []Stage {
	stages := make([]Stage, 0, len(*r))
	for _, s := range *r {
		stages = append(stages, s)
	}
	slices.SortFunc(stages, func(a, b Stage) int {
		return strings.Compare(string(a.Tool()), string(b.Tool()))
	})
	return stages
}

// GetStage retrieves a stage by tool from the registry
func (r Registry) GetStage(tool mealagent.Tool) (Stage, error) {
	s, exists := r[tool]
	if !exists {
		return nil, fmt.Errorf("stage %q not found in registry", tool)
	}
	return s, nil
}

// OverrideParams replaces the generation parameters of one stage.
func (r Registry) OverrideParams(tool mealagent.Tool, params mealagent.GenerationParams) error {
	s, err := r.GetStage(tool)
	if err != nil {
		return err
	}
	if o, ok := s.(*overridden); ok {
		s = o.Stage
	}
	r[tool] = &overridden{Stage: s, params: params}
	return nil
}

type overridden struct {
	Stage
	params mealagent.GenerationParams
}

func (o *overridden) Params() mealagent.GenerationParams { return o.params }

// Request builds the provider-neutral inference request for one stage.
func (r Registry) Request(tool mealagent.Tool, in Input) (mealagent.InferenceRequest, error) {
	s, err := r.GetStage(tool)
	if err != nil {
		return mealagent.InferenceRequest{}, err
	}

	prompt, err := s.Prompt(in)
	if err != nil {
		return mealagent.InferenceRequest{}, fmt.Errorf("failed to build %s prompt: %w", tool, err)
	}

	req := mealagent.InferenceRequest{
		Tool:   tool,
		System: s.SystemPrompt(),
		Prompt: prompt,
		Params: s.Params(),
	}
	if s.UsesImage() {
		req.Image = in.Request.Image
		req.ImageMIME = in.Request.ImageMIME
	}
	return req, nil
}
