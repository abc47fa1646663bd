package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	"mealagent"
	"mealagent/internal/app"
	"mealagent/storage"
)

// Params is the invocation payload. Mode selects between a single analysis and a
// retrospective batch.
type Params struct {
	Mode        string                 `json:"mode"`
	ImageRef    string                 `json:"image_ref,omitempty"`
	Image       []byte                 `json:"image,omitempty"`
	Transcript  string                 `json:"transcript,omitempty"`
	User        mealagent.UserContext  `json:"user"`
	Window      *mealagent.MealWindow  `json:"window,omitempty"`
	Description string                 `json:"description,omitempty"`
	Windows     []mealagent.MealWindow `json:"windows,omitempty"`
}

type Results struct {
	Analysis *mealagent.AnalysisResult `json:"analysis,omitempty"`
	Meals    []mealagent.MealRecord    `json:"meals,omitempty"`
}

const (
	modeAnalyze       = "analyze"
	modeRetrospective = "retrospective"
)

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("SETUP: Failed to build analysis stack: %s", err)
	}
	defer a.Close()

	tracerProvider, _, otelShutdown, err := mealagent.InitOtel(ctx)
	if err != nil {
		log.Fatalf("SETUP: Failed to initialize OpenTelemetry: %s", err)
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	fn := func(ctx context.Context, params Params) (Results, error) {
		// spans from a frozen environment would otherwise be lost
		defer func() {
			if err := tracerProvider.ForceFlush(ctx); err != nil {
				slog.Error("SETUP: Failed to flush traces", "error", err)
			}
		}()
		return handle(ctx, a, params)
	}

	lambda.Start(fn)
}

func handle(ctx context.Context, a *app.App, params Params) (Results, error) {
	switch params.Mode {
	case "", modeAnalyze:
		req := mealagent.AnalysisRequest{
			Image:      params.Image,
			Transcript: params.Transcript,
			User:       params.User,
			Window:     params.Window,
		}
		if params.ImageRef != "" {
			src, err := a.OpenRemoteImage(params.ImageRef)
			if err != nil {
				return Results{}, err
			}
			img, err := src.Load(ctx)
			if err != nil {
				return Results{}, fmt.Errorf("failed to load %s: %w", params.ImageRef, err)
			}
			req.Image = img
		}
		if len(req.Image) > 0 {
			req.ImageMIME = storage.DetectMIME(req.Image)
		}

		res, err := a.Orchestrator(mealagent.NewStdoutStageLogger()).Analyze(ctx, req)
		if err != nil {
			slog.Error("ORCHESTRATOR: Analysis failed", "error", err)
			return Results{}, err
		}
		return Results{Analysis: &res}, nil

	case modeRetrospective:
		if len(params.Windows) == 0 {
			return Results{}, errors.New("retrospective mode needs at least one meal window")
		}
		meals := a.Retrospective().ParseMeals(ctx, params.Description, params.Windows)
		if a.Webhook != nil && len(meals) > 0 {
			if err := a.Webhook.PublishRecords(ctx, meals); err != nil {
				slog.Warn("WEBHOOK: Failed to publish meal records", "error", err)
			}
		}
		return Results{Meals: meals}, nil

	default:
		return Results{}, fmt.Errorf("unknown mode %q", params.Mode)
	}
}
