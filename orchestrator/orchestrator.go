// Package orchestrator runs the adaptive meal analysis: one inexpensive initial inference,
// then escalation stages chosen by the escalation policy until the estimate is good enough.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mealagent"
	"mealagent/brandcache"
	"mealagent/escalation"
	"mealagent/parser"
	"mealagent/stages"
)

const (
	defaultConfidenceBump    = 0.15
	defaultConfidenceBumpCap = 0.9
)

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	Policy    *escalation.Policy
	Registry  *stages.Registry
	Cache     *brandcache.Cache
	Logger    mealagent.StageLogger
	Publisher mealagent.ResultPublisher
	Tracer    trace.Tracer
	Meter     metric.Meter
	Now       func() time.Time

	ConfidenceBump    float64
	ConfidenceBumpCap float64
}

// Orchestrator is safe for concurrent use, but runs one analysis at a time so its
// published PipelineState always belongs to a single request.
type Orchestrator struct {
	client    mealagent.InferenceClient
	policy    *escalation.Policy
	registry  *stages.Registry
	cache     *brandcache.Cache
	logger    mealagent.StageLogger
	publisher mealagent.ResultPublisher
	tracer    trace.Tracer
	metrics   *instruments
	now       func() time.Time

	bump    float64
	bumpCap float64

	mu    sync.Mutex
	state *stateStream
}

func New(client mealagent.InferenceClient, opts Options) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = escalation.NewPolicy(escalation.DefaultThresholds(), escalation.DefaultVocabulary())
	}
	if opts.Registry == nil {
		opts.Registry = stages.NewRegistry()
	}
	if opts.Cache == nil {
		opts.Cache = brandcache.New(brandcache.DefaultTTL)
	}
	if opts.Logger == nil {
		opts.Logger = mealagent.NewNoOpStageLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(mealagent.TracerNameOrchestrator)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(mealagent.MeterNameOrchestrator)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ConfidenceBump <= 0 {
		opts.ConfidenceBump = defaultConfidenceBump
	}
	if opts.ConfidenceBumpCap <= 0 {
		opts.ConfidenceBumpCap = defaultConfidenceBumpCap
	}

	return &Orchestrator{
		client:    client,
		policy:    opts.Policy,
		registry:  opts.Registry,
		cache:     opts.Cache,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		tracer:    opts.Tracer,
		metrics:   newInstruments(opts.Meter),
		now:       opts.Now,
		bump:      opts.ConfidenceBump,
		bumpCap:   opts.ConfidenceBumpCap,
		state:     newStateStream(),
	}
}

// State returns the current pipeline state.
func (o *Orchestrator) State() mealagent.PipelineState {
	return o.state.snapshot()
}

// Subscribe streams pipeline states, starting with the current one. Slow readers only
// ever see the latest state. The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan mealagent.PipelineState, func()) {
	return o.state.subscribe()
}

// run carries the per-analysis bookkeeping.
type run struct {
	id       string
	req      mealagent.AnalysisRequest
	est      mealagent.NutritionEstimate
	fallback bool
	used     []mealagent.Tool
	failed   []mealagent.Tool
	cacheHit bool
	brand    string
}

// Analyze turns a capture into a nutrition estimate. Only a failure of the initial stage is
// returned, as a *mealagent.FatalInferenceError. Escalation failures degrade the result instead.
func (o *Orchestrator) Analyze(ctx context.Context, req mealagent.AnalysisRequest) (result mealagent.AnalysisResult, err error) {
	if len(req.Image) == 0 && strings.TrimSpace(req.Transcript) == "" {
		return mealagent.AnalysisResult{}, mealagent.ErrEmptyRequest
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	r := &run{id: uuid.NewString(), req: req, used: []mealagent.Tool{}}
	start := o.now()

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Analyze", trace.WithAttributes(
		attribute.String("request_id", r.id),
		attribute.Int("image_bytes", len(req.Image)),
		attribute.Bool("has_transcript", req.Transcript != ""),
	))
	defer span.End()

	o.metrics.runs.Add(ctx, 1)
	slog.Info("ORCHESTRATOR: Starting analysis", "request_id", r.id, "image_bytes", len(req.Image), "transcript_len", len(req.Transcript))

	defer func() {
		o.terminate(ctx, r.id, err)
		if err != nil {
			o.metrics.runsFailed.Add(ctx, 1)
			span.SetStatus(codes.Error, "analysis failed")
			span.RecordError(err)
		}
	}()

	if err := o.initial(ctx, r); err != nil {
		return mealagent.AnalysisResult{}, err
	}

	if err := o.escalate(ctx, r); err != nil {
		return mealagent.AnalysisResult{}, err
	}

	result = o.finish(ctx, r, start)

	span.SetAttributes(
		attribute.Float64("final_confidence", result.Metadata.FinalConfidence),
		attribute.String("complexity", string(result.Metadata.Complexity)),
		attribute.StringSlice("tools_used", toolStrings(result.Metadata.ToolsUsed)),
		attribute.Bool("cache_hit", result.Metadata.CacheHit),
	)
	span.SetStatus(codes.Ok, "analysis complete")

	if o.publisher != nil {
		if perr := o.publisher.PublishResult(ctx, result); perr != nil {
			slog.Warn("ORCHESTRATOR: Failed to publish result", "request_id", r.id, "error", perr)
		}
	}
	return result, nil
}

func (o *Orchestrator) initial(ctx context.Context, r *run) error {
	tool := mealagent.ToolInitialAnalysis
	o.publishStage(r.id, mealagent.PhaseInitialAnalysis, tool)

	sctx, st := o.beginStage(ctx, r, tool)
	raw, err := o.call(sctx, tool, stages.Input{Request: r.req}, st)
	if err != nil {
		st.end(0, false, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("ORCHESTRATOR: Initial analysis failed", "request_id", r.id, "error", err)
		return &mealagent.FatalInferenceError{Stage: tool, Err: err}
	}
	if strings.TrimSpace(raw) == "" {
		st.end(0, false, mealagent.ErrEmptyResult)
		slog.Error("ORCHESTRATOR: Initial analysis returned nothing", "request_id", r.id)
		return &mealagent.FatalInferenceError{Stage: tool, Err: mealagent.ErrEmptyResult}
	}

	st.log.RawOutput = raw
	parsed := parser.Parse(raw)
	r.est = parsed.Estimate
	r.fallback = parsed.Fallback
	if parsed.Fallback {
		o.metrics.parserFallbacks.Add(ctx, 1, toolAttr(tool))
	}
	st.end(r.est.Confidence, parsed.Fallback, nil)

	slog.Info("ORCHESTRATOR: Initial analysis complete",
		"request_id", r.id,
		"meal_name", r.est.MealName,
		"confidence", r.est.Confidence,
		"ingredients", len(r.est.Ingredients),
		"fallback", parsed.Fallback,
	)
	return nil
}

// escalate runs stages until the policy is satisfied or has nothing left to try.
// It returns an error only when ctx is done.
func (o *Orchestrator) escalate(ctx context.Context, r *run) error {
	for o.policy.ShouldEscalate(r.est, r.req) {
		tool := o.policy.NextTool(r.est, r.req, r.used)
		if tool == mealagent.ToolNone {
			slog.Info("ORCHESTRATOR: Escalation exhausted", "request_id", r.id, "confidence", r.est.Confidence, "tools_used", r.used)
			return nil
		}

		if tool == mealagent.ToolBrandSearch {
			brand, _ := o.policy.DetectBrand(r.est, r.req)
			r.brand = brand
			if o.fromCache(ctx, r, brand) {
				return nil
			}
		}

		r.used = appendUnique(r.used, tool)
		o.publishStage(r.id, mealagent.PhaseEscalating, tool)

		if err := o.escalation(ctx, r, tool); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			degraded := &mealagent.DegradedStageError{Stage: tool, Err: err}
			slog.Warn("ORCHESTRATOR: Escalation stage degraded", "request_id", r.id, "error", degraded)
			r.failed = appendUnique(r.failed, tool)
		}
	}
	return nil
}

// fromCache answers a brand search from the cache. On a hit the cached estimate becomes
// the final one and no further stage runs.
func (o *Orchestrator) fromCache(ctx context.Context, r *run, brand string) bool {
	key := brandcache.Key(brand, r.est.MealName)
	entry, ok := o.cache.Get(ctx, key)
	if !ok {
		o.metrics.cacheMisses.Add(ctx, 1)
		return false
	}

	o.metrics.cacheHits.Add(ctx, 1)
	before := r.est.Confidence
	r.est = entry.Estimate
	r.fallback = false
	r.cacheHit = true
	for _, t := range entry.ToolsUsed {
		r.used = appendUnique(r.used, t)
	}

	slog.Info("ORCHESTRATOR: Brand cache hit", "request_id", r.id, "key", key, "cached_at", entry.InsertedAt)
	o.logStage(mealagent.StageLog{
		RequestID:        r.id,
		Stage:            mealagent.ToolBrandSearch,
		Timestamp:        o.now(),
		ConfidenceBefore: before,
		ConfidenceAfter:  r.est.Confidence,
		CacheHit:         true,
	})
	return true
}

func (o *Orchestrator) escalation(ctx context.Context, r *run, tool mealagent.Tool) error {
	sctx, st := o.beginStage(ctx, r, tool)
	in := stages.Input{Request: r.req, Current: r.est, Brand: r.brand}

	raw, err := o.call(sctx, tool, in, st)
	if err != nil {
		st.end(r.est.Confidence, false, err)
		return err
	}
	st.log.RawOutput = raw

	switch tool {
	case mealagent.ToolBrandSearch:
		m, ok := parser.ParseBrand(raw)
		if !ok {
			o.metrics.parserFallbacks.Add(ctx, 1, toolAttr(tool))
			st.end(r.est.Confidence, true, nil)
			return nil
		}
		if m.Found {
			key := brandcache.Key(r.brand, r.est.MealName)
			r.est = mergeBrand(r.est, m)
			r.fallback = false
			if m.Brand != "" {
				r.brand = m.Brand
			}
			o.cache.Put(ctx, key, r.est, r.used)
			slog.Info("ORCHESTRATOR: Brand match merged", "request_id", r.id, "brand", r.brand, "meal_name", r.est.MealName, "source", m.Source)
		}
		st.end(r.est.Confidence, false, nil)

	default:
		merged, decoded := mergeStructured(r.est, raw, o.bump, o.bumpCap)
		if decoded {
			r.fallback = false
		} else {
			o.metrics.parserFallbacks.Add(ctx, 1, toolAttr(tool))
		}
		r.est = merged
		st.end(r.est.Confidence, !decoded, nil)
	}

	slog.Info("ORCHESTRATOR: Escalation stage complete", "request_id", r.id, "tool", tool, "confidence", r.est.Confidence)
	return nil
}

// call builds the stage request and invokes the model.
func (o *Orchestrator) call(ctx context.Context, tool mealagent.Tool, in stages.Input, st *stageRun) (string, error) {
	req, err := o.registry.Request(tool, in)
	if err != nil {
		return "", err
	}
	st.log.PromptBytes = len(req.System) + len(req.Prompt)

	o.metrics.stageCalls.Add(ctx, 1, toolAttr(tool))
	return o.client.Infer(ctx, req)
}

func (o *Orchestrator) finish(ctx context.Context, r *run, start time.Time) mealagent.AnalysisResult {
	brand := r.brand
	if brand == "" {
		brand, _ = o.policy.DetectBrand(r.est, r.req)
	}

	meta := mealagent.AnalysisMetadata{
		RequestID:       r.id,
		ToolsUsed:       r.used,
		StagesFailed:    r.failed,
		Complexity:      o.policy.Complexity(r.est, r.req),
		Elapsed:         o.now().Sub(start),
		FinalConfidence: r.est.Confidence,
		DetectedBrand:   brand,
		IngredientCount: len(r.est.Ingredients),
		CacheHit:        r.cacheHit,
		Fallback:        r.fallback,
	}

	o.metrics.runDuration.Record(ctx, meta.Elapsed.Seconds())
	o.metrics.finalConfidence.Record(ctx, meta.FinalConfidence)

	slog.Info("ORCHESTRATOR: Analysis complete",
		"request_id", r.id,
		"meal_name", r.est.MealName,
		"confidence", meta.FinalConfidence,
		"complexity", meta.Complexity,
		"tools_used", meta.ToolsUsed,
		"stages_failed", meta.StagesFailed,
		"cache_hit", meta.CacheHit,
		"elapsed", meta.Elapsed,
	)
	return mealagent.AnalysisResult{Estimate: r.est, Metadata: meta}
}

// publishStage announces a stage before its remote call starts.
func (o *Orchestrator) publishStage(requestID string, phase mealagent.Phase, tool mealagent.Tool) {
	progress := ""
	if s, err := o.registry.GetStage(tool); err == nil {
		progress = s.Progress()
	}
	o.state.publish(mealagent.PipelineState{
		RequestID:       requestID,
		Phase:           phase,
		CurrentTool:     tool,
		ProgressMessage: progress,
		IsActive:        true,
	})
}

// terminate clears the running state on every exit path. A cancelled run goes back to idle.
func (o *Orchestrator) terminate(ctx context.Context, requestID string, err error) {
	phase := mealagent.PhaseComplete
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)):
		phase = mealagent.PhaseIdle
	case err != nil:
		phase = mealagent.PhaseFailed
	}
	o.state.publish(mealagent.PipelineState{RequestID: requestID, Phase: phase})
}

func (o *Orchestrator) logStage(l mealagent.StageLog) {
	if err := o.logger.LogStage(l); err != nil {
		slog.Warn("ORCHESTRATOR: Failed to write stage log", "stage", l.Stage, "error", err)
	}
}

// stageRun tracks the span, timing and stage log of one stage invocation.
type stageRun struct {
	o     *Orchestrator
	ctx   context.Context
	span  trace.Span
	tool  mealagent.Tool
	start time.Time
	log   mealagent.StageLog
}

func (o *Orchestrator) beginStage(ctx context.Context, r *run, tool mealagent.Tool) (context.Context, *stageRun) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("Stage.%s", tool), trace.WithAttributes(
		attribute.String("tool", string(tool)),
		attribute.String("request_id", r.id),
		attribute.Float64("confidence_before", r.est.Confidence),
	))
	return ctx, &stageRun{
		o:     o,
		ctx:   ctx,
		span:  span,
		tool:  tool,
		start: o.now(),
		log: mealagent.StageLog{
			RequestID:        r.id,
			Stage:            tool,
			Timestamp:        o.now(),
			ConfidenceBefore: r.est.Confidence,
		},
	}
}

func (s *stageRun) end(confidence float64, fallback bool, err error) {
	defer s.span.End()

	s.o.metrics.stageDuration.Record(s.ctx, s.o.now().Sub(s.start).Seconds(), toolAttr(s.tool))
	s.span.SetAttributes(
		attribute.Float64("confidence", confidence),
		attribute.Bool("fallback", fallback),
	)

	s.log.ConfidenceAfter = confidence
	s.log.Fallback = fallback
	if err != nil {
		s.o.metrics.stageFailures.Add(s.ctx, 1, toolAttr(s.tool))
		s.span.SetStatus(codes.Error, "stage failed")
		s.span.RecordError(err)
		s.log.Error = err.Error()
		s.log.ConfidenceAfter = s.log.ConfidenceBefore
	}
	s.o.logStage(s.log)
}

func toolAttr(tool mealagent.Tool) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("tool", string(tool)))
}

func appendUnique(tools []mealagent.Tool, t mealagent.Tool) []mealagent.Tool {
	if slices.Contains(tools, t) {
		return tools
	}
	return append(tools, t)
}

func toolStrings(tools []mealagent.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = string(t)
	}
	return out
}
