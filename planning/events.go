package planning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// EventType is the lifecycle phase of an action invocation.
type EventType string

const (
	EventRequested EventType = "REQUESTED"
	EventStarted   EventType = "STARTED"
	EventSucceeded EventType = "SUCCEEDED"
	EventFailed    EventType = "FAILED"
)

// EventKind distinguishes catalog actions from auxiliary tool invocations.
type EventKind string

const (
	KindAction EventKind = "ACTION"
	KindTool   EventKind = "TOOL"
)

// Event is one instrumentation record. Every event of one plan execution
// carries the same correlation id.
type Event struct {
	Type          EventType         `json:"type"`
	Kind          EventKind         `json:"kind"`
	Name          string            `json:"name"`
	CorrelationID string            `json:"correlation_id"`
	Timestamp     time.Time         `json:"timestamp"`
	DurationMS    int64             `json:"duration_ms,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// EventListener receives events synchronously. A slow listener blocks the
// execution that emitted the event; hand off to an async sink if needed.
type EventListener func(Event)

// slowListenerThreshold is the dispatch time above which a listener is
// reported in the log.
const slowListenerThreshold = 100 * time.Millisecond

// EventEmitter produces lifecycle events for one plan execution. An emitter
// is owned by a single execution and is not safe for sharing between
// concurrent executions; each execution gets its own.
//
// Guarantees: REQUESTED precedes STARTED for the same invocation; every
// started invocation gets exactly one terminal event (SUCCEEDED or FAILED);
// the correlation id never changes for the emitter's lifetime.
type EventEmitter struct {
	correlationID string
	listeners     []EventListener
	logger        core.Logger
}

// Of creates an emitter bound to correlationID with the given listeners.
// A blank correlation id gets a generated one.
func Of(correlationID string, listeners ...EventListener) *EventEmitter {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &EventEmitter{
		correlationID: correlationID,
		listeners:     listeners,
		logger:        &core.NoOpLogger{},
	}
}

// SetLogger sets the logger used for slow-listener reporting.
func (e *EventEmitter) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
	} else {
		e.logger = logger
	}
}

// CorrelationID returns the id stamped on every event.
func (e *EventEmitter) CorrelationID() string { return e.correlationID }

// AddListener registers an additional listener.
func (e *EventEmitter) AddListener(listener EventListener) {
	if listener != nil {
		e.listeners = append(e.listeners, listener)
	}
}

// Requested emits a REQUESTED event for the named action.
func (e *EventEmitter) Requested(ctx context.Context, kind EventKind, name string, attrs map[string]string) {
	e.dispatch(ctx, Event{
		Type:       EventRequested,
		Kind:       kind,
		Name:       name,
		Attributes: attrs,
	})
}

// Started emits a STARTED event for the named action.
func (e *EventEmitter) Started(ctx context.Context, kind EventKind, name string, attrs map[string]string) {
	e.dispatch(ctx, Event{
		Type:       EventStarted,
		Kind:       kind,
		Name:       name,
		Attributes: attrs,
	})
}

// Succeeded emits the SUCCEEDED terminal event with the invocation duration.
func (e *EventEmitter) Succeeded(ctx context.Context, kind EventKind, name string, duration time.Duration, attrs map[string]string) {
	e.dispatch(ctx, Event{
		Type:       EventSucceeded,
		Kind:       kind,
		Name:       name,
		DurationMS: duration.Milliseconds(),
		Attributes: attrs,
	})
}

// Failed emits the FAILED terminal event with the invocation duration.
func (e *EventEmitter) Failed(ctx context.Context, kind EventKind, name string, duration time.Duration, attrs map[string]string) {
	e.dispatch(ctx, Event{
		Type:       EventFailed,
		Kind:       kind,
		Name:       name,
		DurationMS: duration.Milliseconds(),
		Attributes: attrs,
	})
}

func (e *EventEmitter) dispatch(ctx context.Context, event Event) {
	event.CorrelationID = e.correlationID
	event.Timestamp = time.Now().UTC()

	// Mirror onto the metrics and tracing backends.
	telemetry.Counter("conversant.events",
		"type", string(event.Type),
		"kind", string(event.Kind),
		"name", event.Name,
	)
	telemetry.AddSpanEvent(ctx, "action."+lowerEventType(event.Type),
		attribute.String("action", event.Name),
		attribute.String("correlation_id", event.CorrelationID),
	)

	for _, listener := range e.listeners {
		start := time.Now()
		listener(event)
		if elapsed := time.Since(start); elapsed > slowListenerThreshold {
			e.logger.Warn("Slow event listener", map[string]interface{}{
				"operation":      "event_dispatch",
				"event_type":     string(event.Type),
				"action":         event.Name,
				"correlation_id": event.CorrelationID,
				"dispatch_ms":    elapsed.Milliseconds(),
			})
		}
	}
}

func lowerEventType(t EventType) string {
	switch t {
	case EventRequested:
		return "requested"
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}
