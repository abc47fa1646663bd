// Package webhook hands finished analyses to the caller's persistence layer over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mealagent"
)

const (
	EventMealAnalyzed     = "meal.analyzed"
	EventMealsRecollected = "meals.recollected"
)

// Envelope is the body of every webhook delivery.
type Envelope struct {
	Event   string    `json:"event"`
	SentAt  time.Time `json:"sent_at"`
	Payload any       `json:"payload"`
}

type Client struct {
	webhookURL string
	httpClient mealagent.HTTPClient
}

func NewClient(webhookURL string, httpClient mealagent.HTTPClient) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

// PublishResult implements mealagent.ResultPublisher.
func (c *Client) PublishResult(ctx context.Context, result mealagent.AnalysisResult) error {
	return c.post(ctx, EventMealAnalyzed, result)
}

// PublishRecords delivers the meals recovered by a retrospective parse.
func (c *Client) PublishRecords(ctx context.Context, records []mealagent.MealRecord) error {
	return c.post(ctx, EventMealsRecollected, records)
}

func (c *Client) post(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(Envelope{Event: event, SentAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to deliver %s: %s", event, resp.Status)
	}

	slog.Info("WEBHOOK: Delivered", "event", event, "status", resp.StatusCode, "bytes", len(body))
	return nil
}
