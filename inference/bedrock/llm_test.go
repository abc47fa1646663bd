package bedrock

import (
	"context"
	"errors"
	"testing"
	"time"

	"mealagent"
	"mealagent/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// mockBedrockClient implements bedrockRuntimeClient for testing
type mockBedrockClient struct {
	response *bedrockruntime.ConverseOutput
	err      error
	input    *bedrockruntime.ConverseInput
}

func (m *mockBedrockClient) Converse(ctx context.Context, input *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = input
	return m.response, m.err
}

func textOutput(stop types.StopReason, texts ...string) *bedrockruntime.ConverseOutput {
	var blocks []types.ContentBlock
	for _, t := range texts {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: t})
	}
	return &bedrockruntime.ConverseOutput{
		StopReason: stop,
		Output:     &types.ConverseOutputMemberMessage{Value: types.Message{Content: blocks}},
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(20),
		},
		Metrics: &types.ConverseMetrics{
			LatencyMs: aws.Int64(100),
		},
	}
}

func TestNewLLMClient(t *testing.T) {
	tests := []struct {
		name     string
		input    LLMOptions
		expected LLMOptions
	}{
		{
			name:  "empty options uses defaults",
			input: LLMOptions{},
			expected: LLMOptions{
				ModelID:     defaultModelID,
				MaxTokens:   defaultMaxTokens,
				Temperature: defaultTemperature,
				TopP:        defaultTopP,
				Timeout:     defaultTimeout,
			},
		},
		{
			name: "custom options preserved",
			input: LLMOptions{
				ModelID:     "custom-model",
				MaxTokens:   2048,
				Temperature: 0.5,
				TopP:        0.8,
				Timeout:     time.Second,
			},
			expected: LLMOptions{
				ModelID:     "custom-model",
				MaxTokens:   2048,
				Temperature: 0.5,
				TopP:        0.8,
				Timeout:     time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &mockBedrockClient{}
			client := NewLLMClient(mockClient, tt.input)

			assert.Equal(t, tt.expected, client.opts)
			assert.Equal(t, mockClient, client.brc)
		})
	}
}

func TestLLMClient_Infer(t *testing.T) {
	tests := []struct {
		name          string
		mockResponse  *bedrockruntime.ConverseOutput
		mockError     error
		expected      string
		expectedKind  error
		expectedError string
	}{
		{
			name:         "json answer",
			mockResponse: textOutput(types.StopReasonEndTurn, `{"meal_name":"Salad"}`),
			expected:     `{"meal_name":"Salad"}`,
		},
		{
			name:         "prose is returned verbatim",
			mockResponse: textOutput(types.StopReasonEndTurn, "I cannot tell"),
			expected:     "I cannot tell",
		},
		{
			name:         "max tokens returns the truncated text",
			mockResponse: textOutput(types.StopReasonMaxTokens, `{"meal_name":`),
			expected:     `{"meal_name":`,
		},
		{
			name:          "content filtered",
			mockResponse:  textOutput(types.StopReasonContentFiltered),
			expectedKind:  mealagent.ErrMalformedRequest,
			expectedError: "blocked by Bedrock safety filters",
		},
		{
			name:         "throttled",
			mockError:    &types.ThrottlingException{Message: aws.String("slow down")},
			expectedKind: mealagent.ErrQuotaExceeded,
		},
		{
			name:         "quota",
			mockError:    &types.ServiceQuotaExceededException{Message: aws.String("quota")},
			expectedKind: mealagent.ErrQuotaExceeded,
		},
		{
			name:         "validation",
			mockError:    &types.ValidationException{Message: aws.String("bad input")},
			expectedKind: mealagent.ErrMalformedRequest,
		},
		{
			name:          "other error",
			mockError:     assert.AnError,
			expectedKind:  mealagent.ErrNetwork,
			expectedError: "assert.AnError general error for testing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &mockBedrockClient{
				response: tt.mockResponse,
				err:      tt.mockError,
			}

			client := NewLLMClient(mockClient, LLMOptions{})
			text, err := client.Infer(context.Background(), mealagent.InferenceRequest{
				Tool:   mealagent.ToolInitialAnalysis,
				Prompt: "What is this?",
			})

			if tt.expectedKind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedKind)
				if tt.expectedError != "" {
					assert.Contains(t, err.Error(), tt.expectedError)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

func TestLLMClient_InferBuildsInput(t *testing.T) {
	mockClient := &mockBedrockClient{response: textOutput(types.StopReasonEndTurn, `{}`)}
	client := NewLLMClient(mockClient, LLMOptions{ModelID: "m"})

	_, err := client.Infer(context.Background(), mealagent.InferenceRequest{
		Tool:      mealagent.ToolBrandSearch,
		System:    "system text",
		Prompt:    "user text",
		Image:     jpeg,
		ImageMIME: "image/jpeg",
		Params:    mealagent.GenerationParams{Temperature: 0, TopP: 1, MaxTokens: 512},
	})
	require.NoError(t, err)

	in := mockClient.input
	require.NotNil(t, in)
	assert.Equal(t, "m", aws.ToString(in.ModelId))

	require.Len(t, in.System, 1)
	assert.Equal(t, "system text", in.System[0].(*types.SystemContentBlockMemberText).Value)

	require.Len(t, in.Messages, 1)
	content := in.Messages[0].Content
	require.Len(t, content, 2)
	img := content[0].(*types.ContentBlockMemberImage).Value
	assert.Equal(t, types.ImageFormatJpeg, img.Format)
	assert.Equal(t, jpeg, img.Source.(*types.ImageSourceMemberBytes).Value)
	assert.Equal(t, "user text", content[1].(*types.ContentBlockMemberText).Value)

	// temperature zero is honored for deterministic stages
	assert.Equal(t, float32(0), aws.ToFloat32(in.InferenceConfig.Temperature))
	assert.Equal(t, int32(512), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.Equal(t, float32(1), aws.ToFloat32(in.InferenceConfig.TopP))
}

func TestLLMClient_InferDefaultsWithoutParams(t *testing.T) {
	mockClient := &mockBedrockClient{response: textOutput(types.StopReasonEndTurn, `{}`)}
	client := NewLLMClient(mockClient, LLMOptions{})

	_, err := client.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "hi"})
	require.NoError(t, err)

	cfg := mockClient.input.InferenceConfig
	assert.Equal(t, float32(defaultTemperature), aws.ToFloat32(cfg.Temperature))
	assert.Equal(t, int32(defaultMaxTokens), aws.ToInt32(cfg.MaxTokens))
}

func TestLLMClient_InferWithImageStore(t *testing.T) {
	mockClient := &mockBedrockClient{response: textOutput(types.StopReasonEndTurn, `{}`)}
	store := storage.NewTestImageStore("captures")
	client := NewLLMClient(mockClient, LLMOptions{}).WithImageStore(store)

	_, err := client.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "p", Image: jpeg})
	require.NoError(t, err)

	img := mockClient.input.Messages[0].Content[0].(*types.ContentBlockMemberImage).Value
	loc := img.Source.(*types.ImageSourceMemberS3Location).Value
	assert.Equal(t, "s3://captures/captures/0", aws.ToString(loc.Uri))
	assert.Len(t, store.Objects, 1)
}

func TestLLMClient_InferImageUploadFailureFallsBackInline(t *testing.T) {
	mockClient := &mockBedrockClient{response: textOutput(types.StopReasonEndTurn, `{}`)}
	client := NewLLMClient(mockClient, LLMOptions{}).WithImageStore(storage.NewTestImageStoreWithError())

	_, err := client.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "p", Image: jpeg})
	require.NoError(t, err)

	img := mockClient.input.Messages[0].Content[0].(*types.ContentBlockMemberImage).Value
	assert.IsType(t, &types.ImageSourceMemberBytes{}, img.Source)
}

func TestLLMClient_InferRejectsUnsupportedImage(t *testing.T) {
	mockClient := &mockBedrockClient{}
	client := NewLLMClient(mockClient, LLMOptions{})

	_, err := client.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "p", Image: jpeg, ImageMIME: "image/tiff"})
	assert.True(t, errors.Is(err, mealagent.ErrMalformedRequest))
	assert.Nil(t, mockClient.input)
}

func TestTextFromOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   *bedrockruntime.ConverseOutput
		expected string
	}{
		{
			name:     "nil output",
			output:   nil,
			expected: "",
		},
		{
			name:     "single text block",
			output:   textOutput(types.StopReasonEndTurn, "Hello world"),
			expected: "Hello world",
		},
		{
			name:     "multiple text blocks",
			output:   textOutput(types.StopReasonEndTurn, "Hello", "world"),
			expected: "Hello\nworld",
		},
		{
			name:     "prefer JSON object",
			output:   textOutput(types.StopReasonEndTurn, "Some text", `{"key": "value"}`),
			expected: `{"key": "value"}`,
		},
		{
			name:     "prefer JSON array",
			output:   textOutput(types.StopReasonEndTurn, `[{"name":"a"}]`, "hope that helps"),
			expected: `[{"name":"a"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textFromOutput(tt.output))
		})
	}
}
