// Package telemetry provides simple, production-ready metrics emission and
// span-event helpers for the conversant engine.
//
// The API is designed with progressive disclosure: the functions in this file
// cover the common cases (counters, histograms, durations) with flat key-value
// labels; the registry and provider files give full control when needed.
package telemetry

import (
	"time"
)

// Counter increments a counter metric by 1.
// Use for counting events: turns, plans, action invocations, errors.
// Labels should be provided as key-value pairs.
// Example: Counter("conversant.plans.parsed", "format", "json")
func Counter(name string, labels ...string) {
	Emit(name, 1, labels...)
}

// Histogram records a value in a distribution.
// Use for latencies, plan sizes, blob sizes, etc.
// Example: Histogram("conversant.blob.bytes", 2048, "direction", "serialize")
func Histogram(name string, value float64, labels ...string) {
	Emit(name, value, labels...)
}

// Duration records elapsed time since startTime in milliseconds.
// Convenience function for the common pattern of timing operations.
// Example:
//
//	start := time.Now()
//	defer telemetry.Duration("conversant.turn.duration_ms", start)
func Duration(name string, startTime time.Time, labels ...string) {
	ms := float64(time.Since(startTime).Milliseconds())
	Emit(name, ms, labels...)
}

// RecordError records an error occurrence with type classification
func RecordError(name string, errorType string, labels ...string) {
	allLabels := append(labels, "error_type", errorType)
	Counter(name, allLabels...)
}

// RecordSuccess records a successful operation
func RecordSuccess(name string, labels ...string) {
	allLabels := append(labels, "status", "success")
	Counter(name, allLabels...)
}

// Emit records a metric with the given name, value and labels.
// This is the underlying primitive used by Counter/Histogram/Duration.
// It is a no-op until Initialize has been called, so library code can emit
// unconditionally without checking for setup.
func Emit(name string, value float64, labels ...string) {
	registry := globalRegistry.Load()
	if registry == nil {
		return
	}
	r := registry.(*Registry)
	r.emit(name, value, labels...)
}
