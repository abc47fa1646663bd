package mealagent

import (
	"context"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// InferenceClient issues a single request to a vision-language model and returns its raw text.
// Implementations wrap provider failures with ErrNetwork, ErrQuotaExceeded or ErrMalformedRequest.
type InferenceClient interface {
	Infer(ctx context.Context, req InferenceRequest) (string, error)
}

type ResultPublisher interface {
	PublishResult(ctx context.Context, result AnalysisResult) error
}

// Tool identifies one inference stage.
type Tool string

const (
	ToolNone            Tool = ""
	ToolInitialAnalysis Tool = "initial_analysis"
	ToolBrandSearch     Tool = "brand_search"
	ToolDeepAnalysis    Tool = "deep_analysis"
	ToolNutritionLookup Tool = "nutrition_lookup"
	ToolRetrospective   Tool = "retrospective"
)

// GenerationParams control sampling for a single inference call.
type GenerationParams struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p,omitempty"`
	MaxTokens   int32   `json:"max_tokens"`
}

// InferenceRequest is the provider-neutral shape of one model call.
type InferenceRequest struct {
	Tool      Tool
	System    string
	Prompt    string
	Image     []byte
	ImageMIME string
	Params    GenerationParams
}

// MacroTargets holds calorie and macro goals, either daily or for a single meal window.
type MacroTargets struct {
	Calories int     `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// UserContext is the nutrition context of the person logging the meal.
type UserContext struct {
	Goal         string       `json:"goal,omitempty"`
	DailyTargets MacroTargets `json:"daily_targets"`
}

// MealWindow is an externally defined time range with remaining targets.
type MealWindow struct {
	Name    string       `json:"name"`
	Start   time.Time    `json:"start"`
	End     time.Time    `json:"end"`
	Targets MacroTargets `json:"targets"`
}

// AnalysisRequest is created once per capture event and never mutated by the pipeline.
type AnalysisRequest struct {
	Image      []byte      `json:"image"`
	ImageMIME  string      `json:"image_mime,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	User       UserContext `json:"user"`
	Window     *MealWindow `json:"window,omitempty"`
}

type Ingredient struct {
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Unit      string  `json:"unit"`
	FoodGroup string  `json:"food_group"`
}

type Nutrition struct {
	Calories int     `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type Micronutrient struct {
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Unit       string  `json:"unit"`
	PercentRDA float64 `json:"percent_rda"`
}

// NutritionEstimate is the output of one inference stage. Stages produce new values;
// an estimate is superseded by a merge, never edited in place.
type NutritionEstimate struct {
	MealName           string          `json:"meal_name"`
	Confidence         float64         `json:"confidence"`
	Ingredients        []Ingredient    `json:"ingredients"`
	Nutrition          Nutrition       `json:"nutrition"`
	Micronutrients     []Micronutrient `json:"micronutrients,omitempty"`
	OpenClarifications []string        `json:"open_clarifications,omitempty"`
}

// Clone returns a deep copy so callers can hold the value without sharing slices.
func (e NutritionEstimate) Clone() NutritionEstimate {
	out := e
	out.Ingredients = append([]Ingredient(nil), e.Ingredients...)
	out.Micronutrients = append([]Micronutrient(nil), e.Micronutrients...)
	out.OpenClarifications = append([]string(nil), e.OpenClarifications...)
	return out
}

type ComplexityRating string

const (
	ComplexitySimple     ComplexityRating = "simple"
	ComplexityModerate   ComplexityRating = "moderate"
	ComplexityComplex    ComplexityRating = "complex"
	ComplexityRestaurant ComplexityRating = "restaurant"
)

// AnalysisMetadata is derived once at pipeline completion.
type AnalysisMetadata struct {
	RequestID       string           `json:"request_id"`
	ToolsUsed       []Tool           `json:"tools_used"`
	StagesFailed    []Tool           `json:"stages_failed,omitempty"`
	Complexity      ComplexityRating `json:"complexity"`
	Elapsed         time.Duration    `json:"elapsed"`
	FinalConfidence float64          `json:"final_confidence"`
	DetectedBrand   string           `json:"detected_brand,omitempty"`
	IngredientCount int              `json:"ingredient_count"`
	CacheHit        bool             `json:"cache_hit"`
	Fallback        bool             `json:"fallback"`
}

type AnalysisResult struct {
	Estimate NutritionEstimate `json:"estimate"`
	Metadata AnalysisMetadata  `json:"metadata"`
}

// Phase is the orchestrator's state machine position.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseInitialAnalysis Phase = "initial_analysis"
	PhaseEscalating      Phase = "escalating"
	PhaseComplete        Phase = "complete"
	PhaseFailed          Phase = "failed"
)

// PipelineState is what a capture UI renders while an analysis runs.
type PipelineState struct {
	RequestID       string `json:"request_id,omitempty"`
	Phase           Phase  `json:"phase"`
	CurrentTool     Tool   `json:"current_tool,omitempty"`
	ProgressMessage string `json:"progress_message"`
	IsActive        bool   `json:"is_active"`
}

type RecordSource string

const (
	SourceInference       RecordSource = "ai_parsed"
	SourceKeywordFallback RecordSource = "keyword_fallback"
)

// MealRecord is one meal recovered from a retrospective description.
type MealRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Calories    int          `json:"calories"`
	ProteinG    float64      `json:"protein_g"`
	CarbsG      float64      `json:"carbs_g"`
	FatG        float64      `json:"fat_g"`
	Timestamp   time.Time    `json:"timestamp"`
	Window      string       `json:"window"`
	Source      RecordSource `json:"source"`
}
