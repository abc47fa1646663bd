package mealagent

import "time"

type ModelConfig struct {
	Provider    string  `env:"MODEL_PROVIDER,default=bedrock"`
	ModelID     string  `env:"MODEL_ID,default=us.anthropic.claude-3-7-sonnet-20250219-v1:0"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type AgentConfig struct {
	OllamaEndpoint       string        `env:"OLLAMA_ENDPOINT,default=http://localhost:11434"`
	OllamaModel          string        `env:"OLLAMA_MODEL,default=llama3.2-vision"`
	ImageBucket          string        `env:"IMAGE_BUCKET"`
	ImagePrefix          string        `env:"IMAGE_PREFIX,default=captures/"`
	ImageTTL             time.Duration `env:"IMAGE_TTL,default=24h"`
	BrandCacheTTL        time.Duration `env:"BRAND_CACHE_TTL,default=168h"`
	BrandCachePath       string        `env:"BRAND_CACHE_PATH"`
	RetroTimeout         time.Duration `env:"RETRO_TIMEOUT,default=20s"`
	RetroWindowOffset    time.Duration `env:"RETRO_WINDOW_OFFSET,default=30m"`
	ResultWebhookURL     string        `env:"RESULT_WEBHOOK_URL"`
	StageLogDir          string        `env:"STAGE_LOG_DIR"`
	VocabularyPath       string        `env:"VOCABULARY_PATH"`
	InferenceTimeout     time.Duration `env:"INFERENCE_TIMEOUT,default=60s"`
	InferenceMaxAttempts int           `env:"INFERENCE_MAX_ATTEMPTS,default=3"`
}

// EscalationConfig carries the product-tuned thresholds. The defaults are preserved as shipped.
type EscalationConfig struct {
	EscalateBelowConfidence     float64 `env:"ESCALATE_BELOW_CONFIDENCE,default=0.75"`
	DeepAnalysisBelowConfidence float64 `env:"DEEP_ANALYSIS_BELOW_CONFIDENCE,default=0.85"`
	LookupBelowConfidence       float64 `env:"LOOKUP_BELOW_CONFIDENCE,default=0.9"`
	HighCalorieThreshold        int     `env:"HIGH_CALORIE_THRESHOLD,default=800"`
	HighCalorieConfidence       float64 `env:"HIGH_CALORIE_CONFIDENCE,default=0.85"`
	ComplexIngredientCount      int     `env:"COMPLEX_INGREDIENT_COUNT,default=5"`
	LookupMaxIngredients        int     `env:"LOOKUP_MAX_INGREDIENTS,default=3"`
	ConfidenceBump              float64 `env:"CONFIDENCE_BUMP,default=0.15"`
	ConfidenceBumpCap           float64 `env:"CONFIDENCE_BUMP_CAP,default=0.9"`
}

type ServerConfig struct {
	Addr string `env:"HTTP_ADDR,default=:8080"`
}
