package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for the audit pipeline.
var (
	AttrEpisodeID   = attribute.Key("arbiter.episode.id")
	AttrRunID       = attribute.Key("arbiter.run.id")
	AttrDetectorID  = attribute.Key("arbiter.detector.id")
	AttrAssertionID = attribute.Key("arbiter.assertion.id")
	AttrOutcome     = attribute.Key("arbiter.outcome")
	AttrTrustLevel  = attribute.Key("arbiter.trust.level")
	AttrFactCount   = attribute.Key("arbiter.fact.count")
)

// EpisodeRun creates the attribute set every span of one audit carries.
func EpisodeRun(episodeID, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEpisodeID.String(episodeID),
		AttrRunID.String(runID),
	}
}

// AssertionOutcome creates attributes for one assertion result.
func AssertionOutcome(assertionID, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAssertionID.String(assertionID),
		AttrOutcome.String(outcome),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
