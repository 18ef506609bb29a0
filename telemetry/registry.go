package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// globalRegistry holds the singleton Registry instance.
	// atomic.Value gives lock-free reads on the hot path (metric emission);
	// it is written once during Initialize and read on every Emit.
	globalRegistry atomic.Value // *Registry

	// initOnce ensures Initialize can only succeed once.
	initOnce sync.Once
)

// Config holds telemetry initialization options.
type Config struct {
	// ServiceName identifies this process in the metrics backend.
	ServiceName string
	// MaxLabelPairs caps the number of label pairs recorded per metric.
	// Excess pairs are dropped to bound cardinality. Zero means the default (16).
	MaxLabelPairs int
}

// Registry manages metric instruments. Instruments are created lazily on
// first emission and cached for subsequent calls.
type Registry struct {
	config Config
	meter  metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram

	// Internal metrics for observability of the telemetry system itself
	emitted atomic.Int64
	dropped atomic.Int64
}

// Initialize sets up the global telemetry registry using the globally
// configured OpenTelemetry meter provider. Subsequent calls are no-ops.
func Initialize(cfg Config) error {
	var err error
	initOnce.Do(func() {
		if cfg.ServiceName == "" {
			cfg.ServiceName = "conversant"
		}
		if cfg.MaxLabelPairs <= 0 {
			cfg.MaxLabelPairs = 16
		}
		r := &Registry{
			config:     cfg,
			meter:      otel.Meter(cfg.ServiceName),
			counters:   make(map[string]metric.Float64Counter),
			histograms: make(map[string]metric.Float64Histogram),
		}
		globalRegistry.Store(r)
	})
	return err
}

// EmittedCount returns the number of metrics successfully emitted since
// initialization. Returns 0 when telemetry is not initialized.
func EmittedCount() int64 {
	registry := globalRegistry.Load()
	if registry == nil {
		return 0
	}
	return registry.(*Registry).emitted.Load()
}

func (r *Registry) emit(name string, value float64, labels ...string) {
	attrs := r.labelAttrs(labels)

	// Values of exactly 1 with counter-style names are recorded as counters,
	// everything else as histograms. This keeps the flat Emit API while still
	// producing the right instrument kinds for the common helpers.
	if value == 1 {
		c, err := r.counter(name)
		if err != nil {
			r.dropped.Add(1)
			return
		}
		c.Add(context.Background(), value, metric.WithAttributes(attrs...))
	} else {
		h, err := r.histogram(name)
		if err != nil {
			r.dropped.Add(1)
			return
		}
		h.Record(context.Background(), value, metric.WithAttributes(attrs...))
	}
	r.emitted.Add(1)
}

func (r *Registry) counter(name string) (metric.Float64Counter, error) {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c, nil
	}
	c, err := r.meter.Float64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	r.counters[name] = c
	return c, nil
}

func (r *Registry) histogram(name string) (metric.Float64Histogram, error) {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h, nil
	}
	h, err := r.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", name, err)
	}
	r.histograms[name] = h
	return h, nil
}

// labelAttrs converts flat key-value label pairs to otel attributes,
// dropping an unpaired trailing key and capping total pairs.
func (r *Registry) labelAttrs(labels []string) []attribute.KeyValue {
	n := len(labels) / 2
	if n > r.config.MaxLabelPairs {
		n = r.config.MaxLabelPairs
	}
	if n == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, n)
	for i := 0; i < n*2; i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}
