package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealagent"
	"mealagent/inference/bedrock"
)

const truncatedPasta = `{"meal_name":"Pasta","confidence":0.8,"ingredients":[{"name":"spag`

type converseReply struct {
	stop types.StopReason
	text string
}

// scriptedConverse answers Converse calls in order.
type scriptedConverse struct {
	mu      sync.Mutex
	replies []converseReply
	calls   int
}

func (s *scriptedConverse) Converse(_ context.Context, _ *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.replies[s.calls]
	s.calls++
	return &bedrockruntime.ConverseOutput{
		StopReason: r.stop,
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: r.text}},
		}},
	}, nil
}

func TestAnalyze_BedrockMaxTokensDegrades(t *testing.T) {
	tests := []struct {
		name         string
		replies      []converseReply
		wantMeal     string
		wantConf     float64
		wantTools    []mealagent.Tool
		wantFallback bool
	}{
		{
			name: "initial stage truncated",
			replies: []converseReply{
				{stop: types.StopReasonMaxTokens, text: truncatedPasta},
				{stop: types.StopReasonEndTurn, text: chickenRiceLookup},
			},
			wantMeal:  "Grilled chicken with rice",
			wantConf:  0.88,
			wantTools: []mealagent.Tool{mealagent.ToolDeepAnalysis},
		},
		{
			name: "deep analysis truncated",
			replies: []converseReply{
				{stop: types.StopReasonEndTurn, text: chickenRice},
				{stop: types.StopReasonMaxTokens, text: truncatedPasta},
			},
			wantMeal:  "Chicken and rice",
			wantConf:  0.75,
			wantTools: []mealagent.Tool{mealagent.ToolDeepAnalysis},
		},
		{
			name: "every stage truncated",
			replies: []converseReply{
				{stop: types.StopReasonMaxTokens, text: truncatedPasta},
				{stop: types.StopReasonMaxTokens, text: truncatedPasta},
				{stop: types.StopReasonMaxTokens, text: truncatedPasta},
			},
			wantMeal:     "Unidentified meal",
			wantConf:     0.6,
			wantTools:    []mealagent.Tool{mealagent.ToolDeepAnalysis, mealagent.ToolNutritionLookup},
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brc := &scriptedConverse{replies: tt.replies}
			o := New(bedrock.NewLLMClient(brc, bedrock.LLMOptions{}), Options{})

			res, err := o.Analyze(context.Background(), request())
			require.NoError(t, err)

			assert.Equal(t, tt.wantMeal, res.Estimate.MealName)
			assert.InDelta(t, tt.wantConf, res.Estimate.Confidence, 1e-9)
			assert.Equal(t, tt.wantTools, res.Metadata.ToolsUsed)
			assert.Empty(t, res.Metadata.StagesFailed)
			assert.Equal(t, tt.wantFallback, res.Metadata.Fallback)
			assert.Equal(t, len(tt.replies), brc.calls)
			assert.Equal(t, mealagent.PhaseComplete, o.State().Phase)
		})
	}
}
