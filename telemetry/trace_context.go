package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AddSpanEvent adds a named event to the current span.
// Events mark meaningful points in time during the span's duration and show up
// in trace visualization tools.
//
// The engine uses span events for plan lifecycle points: "plan.parsed",
// "action.requested", "action.succeeded", etc.
//
// Events are only recorded if the span is being sampled. This function is safe
// to call even when no span exists in the context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordSpanError records an error on the current span and marks the span as
// failed. Safe to call when ctx is nil, err is nil, or no span exists.
func RecordSpanError(ctx context.Context, err error) {
	if ctx == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}

// HasTraceContext reports whether the context carries a valid span context.
func HasTraceContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid()
}
