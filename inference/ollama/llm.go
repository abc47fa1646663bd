package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"mealagent"
)

const (
	// DefaultURL is the default Ollama API endpoint
	DefaultURL = "http://localhost:11434"
	// DefaultModel is a small vision-capable model
	DefaultModel = "llama3.2-vision"

	defaultTimeout = 60 * time.Second
	// 16384 is a safe default; raise it if the machine can handle it
	defaultNumCtx = 16384
)

type chatAPI interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// Client implements mealagent.InferenceClient on a local Ollama server.
type Client struct {
	chat    chatAPI
	model   string
	timeout time.Duration
}

func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseEndpoint == "" {
		opts.BaseEndpoint = DefaultURL
	}
	if opts.ModelID == "" {
		opts.ModelID = DefaultModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	base, err := url.Parse(opts.BaseEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama endpoint %q: %w", opts.BaseEndpoint, err)
	}

	return &Client{
		chat:    api.NewClient(base, opts.HTTPClient),
		model:   opts.ModelID,
		timeout: opts.Timeout,
	}, nil
}

func (c *Client) Infer(ctx context.Context, req mealagent.InferenceRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "tool", req.Tool, "prompt_len", len(req.Prompt), "image_bytes", len(req.Image))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: buildMessages(req),
		Stream:   &stream,
		Format:   json.RawMessage(`"json"`),
		Options:  options(req.Params),
	}

	var content strings.Builder
	err := c.chat.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			slog.Info("LLM_CLIENT: Ollama invoke succeeded",
				"tool", req.Tool,
				"done_reason", resp.DoneReason,
				"prompt_eval_count", resp.PromptEvalCount,
				"eval_count", resp.EvalCount,
			)
		}
		return nil
	})
	if err != nil {
		slog.Error("LLM_CLIENT: Ollama invoke failed", "tool", req.Tool, "error", err)
		return "", classify(err)
	}

	return content.String(), nil
}

// buildMessages converts the request into Ollama chat messages.
// - system text first (if non-empty)
// - one user message carrying the prompt and the image
func buildMessages(req mealagent.InferenceRequest) []api.Message {
	messages := make([]api.Message, 0, 2)

	if sp := strings.TrimSpace(req.System); sp != "" {
		messages = append(messages, api.Message{
			Role:    "system",
			Content: sp,
		})
	}

	user := api.Message{
		Role:    "user",
		Content: req.Prompt,
	}
	if len(req.Image) > 0 {
		user.Images = []api.ImageData{req.Image}
	}
	return append(messages, user)
}

func options(p mealagent.GenerationParams) map[string]any {
	opts := map[string]any{
		"temperature": p.Temperature,
		"num_ctx":     defaultNumCtx,
	}
	if p.TopP > 0 {
		opts["top_p"] = p.TopP
	}
	if p.MaxTokens > 0 {
		opts["num_predict"] = p.MaxTokens
	}
	return opts
}

// classify wraps an Ollama error with the inference failure kind it represents.
func classify(err error) error {
	var status api.StatusError
	if errors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", mealagent.ErrQuotaExceeded, err)
		case status.StatusCode >= 400 && status.StatusCode < 500:
			return fmt.Errorf("%w: %w", mealagent.ErrMalformedRequest, err)
		}
	}
	return fmt.Errorf("%w: %w", mealagent.ErrNetwork, err)
}
