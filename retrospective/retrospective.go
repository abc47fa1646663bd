// Package retrospective turns a free-text account of several past meals into meal records
// placed on the caller's meal windows.
package retrospective

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mealagent"
	"mealagent/parser"
	"mealagent/stages"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultWindowOffset = 30 * time.Minute
)

type Options struct {
	Registry *stages.Registry
	// Timeout bounds the inference call; the keyword fallback runs when it expires.
	Timeout time.Duration
	// WindowOffset places each record this far after its window's start.
	WindowOffset time.Duration
	Keywords     []Keyword
	Tracer       trace.Tracer
}

type Parser struct {
	client   mealagent.InferenceClient
	registry *stages.Registry
	timeout  time.Duration
	offset   time.Duration
	keywords []Keyword
	tracer   trace.Tracer
}

func New(client mealagent.InferenceClient, opts Options) *Parser {
	if opts.Registry == nil {
		opts.Registry = stages.NewRegistry()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.WindowOffset <= 0 {
		opts.WindowOffset = DefaultWindowOffset
	}
	if opts.Keywords == nil {
		opts.Keywords = DefaultKeywords()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(mealagent.TracerNameRetrospective)
	}
	return &Parser{
		client:   client,
		registry: opts.Registry,
		timeout:  opts.Timeout,
		offset:   opts.WindowOffset,
		keywords: opts.Keywords,
		tracer:   opts.Tracer,
	}
}

// meal is one described meal before it is placed on a window.
type meal struct {
	name        string
	description string
	calories    int
	proteinG    float64
	carbsG      float64
	fatG        float64
}

// ParseMeals never fails. It asks the model to segment the description and falls back to
// keyword matching when the model errors, times out, or answers with nothing usable. Meals
// beyond the number of windows are dropped.
func (p *Parser) ParseMeals(ctx context.Context, description string, windows []mealagent.MealWindow) []mealagent.MealRecord {
	ctx, span := p.tracer.Start(ctx, "Retrospective.ParseMeals", trace.WithAttributes(
		attribute.Int("description_len", len(description)),
		attribute.Int("windows", len(windows)),
	))
	defer span.End()

	records := []mealagent.MealRecord{}
	if strings.TrimSpace(description) == "" || len(windows) == 0 {
		slog.Info("RETRO: Nothing to parse", "description_len", len(description), "windows", len(windows))
		return records
	}

	source := mealagent.SourceInference
	meals, err := p.infer(ctx, description, windows)
	if err != nil {
		slog.Warn("RETRO: Inference unavailable, using keyword fallback", "error", err)
		source = mealagent.SourceKeywordFallback
		meals = p.fallback(description)
	}

	n := min(len(meals), len(windows))
	if len(meals) > n {
		slog.Info("RETRO: Dropping meals beyond the available windows", "described", len(meals), "windows", len(windows))
	}
	for i := range n {
		records = append(records, p.record(meals[i], windows[i], source))
	}

	span.SetAttributes(
		attribute.String("source", string(source)),
		attribute.Int("meals", len(records)),
	)
	slog.Info("RETRO: Parsed meals", "source", source, "meals", len(records))
	return records
}

func (p *Parser) infer(ctx context.Context, description string, windows []mealagent.MealWindow) ([]meal, error) {
	req, err := p.registry.Request(mealagent.ToolRetrospective, stages.Input{
		Description: description,
		Windows:     windows,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.client.Infer(ctx, req)
	if err != nil {
		return nil, err
	}

	items, ok := parser.ParseMeals(raw)
	if !ok {
		return nil, mealagent.ErrEmptyResult
	}

	meals := make([]meal, len(items))
	for i, it := range items {
		meals[i] = meal{
			name:        it.Name,
			description: it.Description,
			calories:    it.Calories,
			proteinG:    it.ProteinG,
			carbsG:      it.CarbsG,
			fatG:        it.FatG,
		}
	}
	return meals, nil
}

// fallback classifies each segment of the description. Neighbouring segments that match
// the same keyword are one meal ("eggs and toast").
func (p *Parser) fallback(description string) []meal {
	var meals []meal
	lastMatched := ""
	for _, seg := range segments(description) {
		k, ok := classify(p.keywords, seg)
		if ok && k.Name == lastMatched {
			prev := &meals[len(meals)-1]
			prev.description += ", " + seg
			continue
		}
		if !ok {
			k = GenericMeal
			lastMatched = ""
		} else {
			lastMatched = k.Name
		}
		meals = append(meals, meal{
			name:        k.Name,
			description: seg,
			calories:    k.Calories,
			proteinG:    k.ProteinG,
			carbsG:      k.CarbsG,
			fatG:        k.FatG,
		})
	}
	return meals
}

func (p *Parser) record(m meal, w mealagent.MealWindow, source mealagent.RecordSource) mealagent.MealRecord {
	ts := w.Start.Add(p.offset)
	if !w.End.IsZero() && ts.After(w.End) {
		ts = w.Start.Add(w.End.Sub(w.Start) / 2)
	}
	return mealagent.MealRecord{
		ID:          uuid.NewString(),
		Name:        m.name,
		Description: m.description,
		Calories:    m.calories,
		ProteinG:    m.proteinG,
		CarbsG:      m.carbsG,
		FatG:        m.fatG,
		Timestamp:   ts,
		Window:      w.Name,
		Source:      source,
	}
}
