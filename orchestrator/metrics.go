package orchestrator

import "go.opentelemetry.io/otel/metric"

type instruments struct {
	runs            metric.Int64Counter
	runsFailed      metric.Int64Counter
	stageCalls      metric.Int64Counter
	stageFailures   metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	parserFallbacks metric.Int64Counter
	runDuration     metric.Float64Histogram
	stageDuration   metric.Float64Histogram
	finalConfidence metric.Float64Histogram
}

func newInstruments(meter metric.Meter) *instruments {
	runs, _ := meter.Int64Counter("analysis_runs_total",
		metric.WithDescription("Total number of meal analyses started"))
	runsFailed, _ := meter.Int64Counter("analysis_runs_failed_total",
		metric.WithDescription("Total number of meal analyses that ended in a fatal error"))
	stageCalls, _ := meter.Int64Counter("stage_invocations_total",
		metric.WithDescription("Total number of inference stage invocations"))
	stageFailures, _ := meter.Int64Counter("stage_failures_total",
		metric.WithDescription("Total number of inference stage invocations that failed"))
	cacheHits, _ := meter.Int64Counter("brand_cache_hits_total",
		metric.WithDescription("Total number of brand searches answered from the cache"))
	cacheMisses, _ := meter.Int64Counter("brand_cache_misses_total",
		metric.WithDescription("Total number of brand searches that missed the cache"))
	parserFallbacks, _ := meter.Int64Counter("parser_fallbacks_total",
		metric.WithDescription("Total number of stage outputs that could not be decoded"))

	runDuration, _ := meter.Float64Histogram("analysis_duration_seconds",
		metric.WithDescription("Duration of a full meal analysis in seconds"))
	stageDuration, _ := meter.Float64Histogram("stage_duration_seconds",
		metric.WithDescription("Duration of a single inference stage in seconds"))
	finalConfidence, _ := meter.Float64Histogram("final_confidence",
		metric.WithDescription("Confidence of the final estimate"))

	return &instruments{
		runs:            runs,
		runsFailed:      runsFailed,
		stageCalls:      stageCalls,
		stageFailures:   stageFailures,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		parserFallbacks: parserFallbacks,
		runDuration:     runDuration,
		stageDuration:   stageDuration,
		finalConfidence: finalConfidence,
	}
}
