package mealagent

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNutritionEstimateClone(t *testing.T) {
	orig := NutritionEstimate{
		MealName:           "Oatmeal",
		Confidence:         0.8,
		Ingredients:        []Ingredient{{Name: "oats", Amount: 40, Unit: "g", FoodGroup: "grains"}},
		Micronutrients:     []Micronutrient{{Name: "iron", Amount: 2, Unit: "mg", PercentRDA: 11}},
		OpenClarifications: []string{"milk or water?"},
	}

	clone := orig.Clone()
	clone.Ingredients[0].Name = "changed"
	clone.Micronutrients[0].Name = "changed"
	clone.OpenClarifications[0] = "changed"

	assert.Equal(t, "oats", orig.Ingredients[0].Name)
	assert.Equal(t, "iron", orig.Micronutrients[0].Name)
	assert.Equal(t, "milk or water?", orig.OpenClarifications[0])
}

func TestFatalInferenceErrorUnwraps(t *testing.T) {
	err := &FatalInferenceError{Stage: ToolInitialAnalysis, Err: errors.Join(ErrQuotaExceeded, errors.New("throttled"))}

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "initial_analysis failed")

	var fatal *FatalInferenceError
	require.ErrorAs(t, error(err), &fatal)
	assert.Equal(t, ToolInitialAnalysis, fatal.Stage)
}

func TestDegradedStageErrorUnwraps(t *testing.T) {
	err := &DegradedStageError{Stage: ToolBrandSearch, Err: ErrNetwork}
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "brand_search degraded: inference network error", err.Error())
}

func TestEscalationConfigDefaults(t *testing.T) {
	var cfg EscalationConfig
	require.NoError(t, envdecode.Decode(&cfg))

	assert.Equal(t, 0.75, cfg.EscalateBelowConfidence)
	assert.Equal(t, 0.85, cfg.DeepAnalysisBelowConfidence)
	assert.Equal(t, 0.9, cfg.LookupBelowConfidence)
	assert.Equal(t, 800, cfg.HighCalorieThreshold)
	assert.Equal(t, 0.85, cfg.HighCalorieConfidence)
	assert.Equal(t, 5, cfg.ComplexIngredientCount)
	assert.Equal(t, 3, cfg.LookupMaxIngredients)
	assert.Equal(t, 0.15, cfg.ConfidenceBump)
	assert.Equal(t, 0.9, cfg.ConfidenceBumpCap)
}

func TestAgentConfigOverrides(t *testing.T) {
	t.Setenv("BRAND_CACHE_TTL", "1h")
	t.Setenv("IMAGE_BUCKET", "captures-bucket")

	var cfg AgentConfig
	require.NoError(t, envdecode.Decode(&cfg))

	assert.Equal(t, time.Hour, cfg.BrandCacheTTL)
	assert.Equal(t, "captures-bucket", cfg.ImageBucket)
	assert.Equal(t, 30*time.Minute, cfg.RetroWindowOffset)
}

func TestFileStageLoggerFlush(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFileStageLogger(&buf)

	require.NoError(t, logger.LogStage(StageLog{RequestID: "r1", Stage: ToolInitialAnalysis, ConfidenceAfter: 0.6}))
	require.NoError(t, logger.LogStage(StageLog{RequestID: "r1", Stage: ToolDeepAnalysis, Fallback: true}))
	require.NoError(t, logger.Flush())

	var doc struct {
		Session struct {
			Stages []StageLog `json:"stages"`
		} `json:"analysis_session"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Session.Stages, 2)
	assert.Equal(t, ToolDeepAnalysis, doc.Session.Stages[1].Stage)
	assert.True(t, doc.Session.Stages[1].Fallback)

	// buffer is cleared after a successful flush
	buf.Reset()
	require.NoError(t, logger.Flush())
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Empty(t, doc.Session.Stages)
}

func TestStdoutStageLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := &StdoutStageLogger{out: &buf}

	require.NoError(t, logger.LogStage(StageLog{Stage: ToolBrandSearch, Error: "boom"}))

	var got StageLog
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, ToolBrandSearch, got.Stage)
	assert.Equal(t, "boom", got.Error)
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	Dump(&buf, "result", Nutrition{Calories: 520, ProteinG: 31})

	out := buf.String()
	assert.Contains(t, out, "result (root_test.go:")
	assert.Contains(t, out, "Calories: (int) 520")
}
