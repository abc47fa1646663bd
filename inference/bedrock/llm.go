package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mealagent"
	"mealagent/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// defaultModelID is the default model ID for Bedrock Claude.
	// It's an inference profile ID or ARN, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// Used when a request carries no MaxTokens of its own.
	defaultMaxTokens = 1024

	// Used only for requests that carry no generation params at all.
	defaultTemperature = 0.2

	defaultTopP = 0.9

	defaultTimeout = 60 * time.Second
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
	Timeout     time.Duration
}

// LLMClient implements mealagent.InferenceClient on the Bedrock Converse API.
type LLMClient struct {
	brc    bedrockRuntimeClient
	opts   LLMOptions
	images storage.ImageStore
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

// WithImageStore makes the client upload images and pass them to the model by S3 location
// instead of inline bytes.
func (c *LLMClient) WithImageStore(s storage.ImageStore) *LLMClient {
	c.images = s
	return c
}

func (c *LLMClient) Infer(ctx context.Context, req mealagent.InferenceRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "tool", req.Tool, "prompt_len", len(req.Prompt), "image_bytes", len(req.Image))

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var sys []types.SystemContentBlock
	if s := strings.TrimSpace(req.System); s != "" {
		sys = append(sys, &types.SystemContentBlockMemberText{Value: s})
	}

	msg := types.Message{Role: types.ConversationRoleUser}
	if len(req.Image) > 0 {
		block, err := c.imageBlock(ctx, req)
		if err != nil {
			return "", err
		}
		msg.Content = append(msg.Content, block)
	}
	msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: req.Prompt})

	in := &bedrockruntime.ConverseInput{
		ModelId:         &c.opts.ModelID,
		System:          sys,
		Messages:        []types.Message{msg},
		InferenceConfig: c.inferenceConfig(req.Params),
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "tool", req.Tool, "error", err)
		return "", classify(err)
	}

	slog.Info("LLM_CLIENT: Bedrock invoke succeeded",
		"tool", req.Tool,
		"stop_reason", out.StopReason,
		"latency_ms", latencyMs(out),
		"input_tokens", inputTokens(out),
		"output_tokens", outputTokens(out),
	)

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		// truncated output still goes to the parser, which degrades it
		text := textFromOutput(out)
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider raising the stage's MaxTokens", "tool", req.Tool, "text_len", len(text))
		return text, nil

	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters", "tool", req.Tool)
		return "", fmt.Errorf("%w: model response blocked by Bedrock safety filters", mealagent.ErrMalformedRequest)

	default:
		text := textFromOutput(out)
		slog.Info("LLM_CLIENT: Extracted text", "tool", req.Tool, "text_len", len(text))
		return text, nil
	}
}

// inferenceConfig lets the request's params win. Temperature zero is a valid request
// (brand search) so client defaults only apply when the request carries no params at all.
func (c *LLMClient) inferenceConfig(p mealagent.GenerationParams) *types.InferenceConfiguration {
	if p == (mealagent.GenerationParams{}) {
		p = mealagent.GenerationParams{Temperature: c.opts.Temperature, TopP: c.opts.TopP, MaxTokens: c.opts.MaxTokens}
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = c.opts.MaxTokens
	}
	if p.TopP == 0 {
		p.TopP = c.opts.TopP
	}
	return &types.InferenceConfiguration{
		MaxTokens:   aws.Int32(p.MaxTokens),
		Temperature: aws.Float32(p.Temperature),
		TopP:        aws.Float32(p.TopP),
	}
}

func (c *LLMClient) imageBlock(ctx context.Context, req mealagent.InferenceRequest) (types.ContentBlock, error) {
	mime := req.ImageMIME
	if mime == "" {
		mime = storage.DetectMIME(req.Image)
	}
	format, err := imageFormat(mime)
	if err != nil {
		return nil, err
	}

	if c.images != nil {
		loc, err := c.images.Put(ctx, req.Image, mime)
		if err == nil {
			slog.Info("LLM_CLIENT: Added image by S3 location", "uri", loc.URI())
			return &types.ContentBlockMemberImage{Value: types.ImageBlock{
				Format: format,
				Source: &types.ImageSourceMemberS3Location{Value: types.S3Location{Uri: aws.String(loc.URI())}},
			}}, nil
		}
		// the model can still take the bytes inline
		slog.Warn("LLM_CLIENT: Image upload failed, sending inline", "error", err)
	}

	slog.Info("LLM_CLIENT: Added inline image", "bytes", len(req.Image), "format", format)
	return &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: req.Image},
	}}, nil
}

func imageFormat(mime string) (types.ImageFormat, error) {
	switch mime {
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, nil
	case "image/png":
		return types.ImageFormatPng, nil
	case "image/gif":
		return types.ImageFormatGif, nil
	case "image/webp":
		return types.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("%w: unsupported image type %q", mealagent.ErrMalformedRequest, mime)
	}
}

// classify wraps a Bedrock error with the inference failure kind it represents.
func classify(err error) error {
	var (
		throttled *types.ThrottlingException
		quota     *types.ServiceQuotaExceededException
		invalid   *types.ValidationException
	)
	switch {
	case errors.As(err, &throttled), errors.As(err, &quota):
		return fmt.Errorf("%w: %w", mealagent.ErrQuotaExceeded, err)
	case errors.As(err, &invalid):
		return fmt.Errorf("%w: %w", mealagent.ErrMalformedRequest, err)
	default:
		return fmt.Errorf("%w: %w", mealagent.ErrNetwork, err)
	}
}

// textFromOutput returns assistant text optimized for JSON answers:
// 1) If any text block looks like a single JSON value, return the last such block.
// 2) Else, if there's only one text block, return it.
// 3) Else, join all text blocks with '\n'.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil || len(msg.Value.Content) == 0 {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	if len(texts) == 0 {
		return ""
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && ((s[0] == '{' && s[len(s)-1] == '}') || (s[0] == '[' && s[len(s)-1] == ']')) {
			return s
		}
	}

	if len(texts) == 1 {
		return texts[0]
	}
	return strings.Join(texts, "\n")
}

func latencyMs(out *bedrockruntime.ConverseOutput) int64 {
	if out.Metrics == nil {
		return 0
	}
	return aws.ToInt64(out.Metrics.LatencyMs)
}

func inputTokens(out *bedrockruntime.ConverseOutput) int32 {
	if out.Usage == nil {
		return 0
	}
	return aws.ToInt32(out.Usage.InputTokens)
}

func outputTokens(out *bedrockruntime.ConverseOutput) int32 {
	if out.Usage == nil {
		return 0
	}
	return aws.ToInt32(out.Usage.OutputTokens)
}
