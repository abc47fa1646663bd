package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealagent"
)

// wireRequest mirrors the parts of the chat request the tests inspect
type wireRequest struct {
	Model    string `json:"model"`
	Stream   *bool  `json:"stream"`
	Format   string `json:"format"`
	Messages []struct {
		Role    string   `json:"role"`
		Content string   `json:"content"`
		Images  []string `json:"images"`
	} `json:"messages"`
	Options map[string]any `json:"options"`
}

func newServer(t *testing.T, status int, content string, got *wireRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":       "llava",
			"created_at":  time.Now().Format(time.RFC3339),
			"message":     map[string]string{"role": "assistant", "content": content},
			"done":        true,
			"done_reason": "stop",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		opts      ClientOpts
		wantModel string
		wantErr   bool
	}{
		{name: "with custom url and model", opts: ClientOpts{BaseEndpoint: "http://localhost:11434", ModelID: "llava"}, wantModel: "llava"},
		{name: "with all defaults", opts: ClientOpts{}, wantModel: DefaultModel},
		{name: "invalid url", opts: ClientOpts{BaseEndpoint: "://bad"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, c.model)
			assert.Equal(t, defaultTimeout, c.timeout)
		})
	}
}

func TestClient_Infer(t *testing.T) {
	var got wireRequest
	srv := newServer(t, http.StatusOK, `{"meal_name":"Pho","confidence":0.8}`, &got)

	c, err := NewClient(ClientOpts{BaseEndpoint: srv.URL, ModelID: "llava"})
	require.NoError(t, err)

	image := []byte{0xff, 0xd8, 0xff}
	text, err := c.Infer(context.Background(), mealagent.InferenceRequest{
		Tool:   mealagent.ToolInitialAnalysis,
		System: "you are a nutritionist",
		Prompt: "what is this?",
		Image:  image,
		Params: mealagent.GenerationParams{Temperature: 0.4, TopP: 0.9, MaxTokens: 1024},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"meal_name":"Pho","confidence":0.8}`, text)

	assert.Equal(t, "llava", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.Equal(t, "json", got.Format)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "what is this?", got.Messages[1].Content)
	require.Len(t, got.Messages[1].Images, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), got.Messages[1].Images[0])

	assert.InDelta(t, 0.4, got.Options["temperature"], 1e-6)
	assert.EqualValues(t, 1024, got.Options["num_predict"])
}

func TestClient_InferTextOnly(t *testing.T) {
	var got wireRequest
	srv := newServer(t, http.StatusOK, `{"found":false}`, &got)

	c, err := NewClient(ClientOpts{BaseEndpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "brand?", Params: mealagent.GenerationParams{MaxTokens: 512}})
	require.NoError(t, err)

	require.Len(t, got.Messages, 1)
	assert.Empty(t, got.Messages[0].Images)
	assert.EqualValues(t, 0, got.Options["temperature"])
	_, hasTopP := got.Options["top_p"]
	assert.False(t, hasTopP)
}

func TestClient_InferErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: mealagent.ErrQuotaExceeded},
		{name: "model not found", status: http.StatusNotFound, want: mealagent.ErrMalformedRequest},
		{name: "server error", status: http.StatusInternalServerError, want: mealagent.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, "", nil)
			c, err := NewClient(ClientOpts{BaseEndpoint: srv.URL})
			require.NoError(t, err)

			_, err = c.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_InferUnreachable(t *testing.T) {
	srv := newServer(t, http.StatusOK, "", nil)
	srv.Close()

	c, err := NewClient(ClientOpts{BaseEndpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.Infer(context.Background(), mealagent.InferenceRequest{Prompt: "x"})
	assert.ErrorIs(t, err, mealagent.ErrNetwork)
}
