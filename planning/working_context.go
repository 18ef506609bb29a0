package planning

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/conversant-dev/conversant/core"
)

// Augmenter formats a working context into a string prepended to the next
// turn's user message, so the model sees the artifact the user is working on.
type Augmenter interface {
	// FormatForUserMessage renders the working context for the prompt. The
	// second return value is false when the augmenter opts out for this turn.
	FormatForUserMessage(wc *WorkingContext, cfg *Config) (string, bool)

	// ShouldAugment reports whether this context should be rendered at all.
	ShouldAugment(wc *WorkingContext) bool
}

// BaseAugmenter can be embedded to get the default ShouldAugment behavior.
type BaseAugmenter struct{}

// ShouldAugment defaults to true.
func (BaseAugmenter) ShouldAugment(wc *WorkingContext) bool { return true }

type workingContextEntry struct {
	payloadType reflect.Type
	augmenter   Augmenter
}

// WorkingContextRegistry maps context-type strings to their payload shapes
// and optional augmenters. Hosts register their domain artifact types at
// startup; the blob serializer uses the registry to decode payloads back
// into their typed form. Safe for concurrent register and lookup.
type WorkingContextRegistry struct {
	mu      sync.RWMutex
	entries map[string]workingContextEntry

	logger core.Logger
}

// NewWorkingContextRegistry creates an empty registry.
func NewWorkingContextRegistry() *WorkingContextRegistry {
	return &WorkingContextRegistry{
		entries: make(map[string]workingContextEntry),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for registry operations.
func (r *WorkingContextRegistry) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
	} else {
		r.logger = logger
	}
}

// Register binds a context type to its payload prototype and an optional
// augmenter. The prototype is any value of the payload's concrete type,
// typically a zero struct; pointers are unwrapped. Duplicate context types
// fail with core.ErrAlreadyRegistered.
func (r *WorkingContextRegistry) Register(contextType string, payloadPrototype interface{}, augmenter Augmenter) error {
	contextType = strings.TrimSpace(contextType)
	if contextType == "" {
		return fmt.Errorf("workingcontext.Register: context type must not be blank")
	}
	if payloadPrototype == nil {
		return fmt.Errorf("workingcontext.Register: payload prototype for %s must not be nil", contextType)
	}
	t := reflect.TypeOf(payloadPrototype)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[contextType]; exists {
		return core.NewEngineError("workingcontext.Register", "registry", core.ErrAlreadyRegistered)
	}
	r.entries[contextType] = workingContextEntry{
		payloadType: t,
		augmenter:   augmenter,
	}

	r.logger.Debug("Working context type registered", map[string]interface{}{
		"operation":     "workingcontext_register",
		"context_type":  contextType,
		"payload_type":  t.String(),
		"has_augmenter": augmenter != nil,
	})
	return nil
}

// Unregister removes a context type. Unknown types are a no-op.
func (r *WorkingContextRegistry) Unregister(contextType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, contextType)
}

// PayloadType returns the registered payload type for contextType.
func (r *WorkingContextRegistry) PayloadType(contextType string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[contextType]
	if !ok {
		return nil, false
	}
	return e.payloadType, true
}

// GetAugmenter returns the augmenter for contextType, if one was registered.
func (r *WorkingContextRegistry) GetAugmenter(contextType string) (Augmenter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[contextType]
	if !ok || e.augmenter == nil {
		return nil, false
	}
	return e.augmenter, true
}

// DecodePayload unmarshals a raw payload into the registered type for
// contextType. Unknown context types decode into a generic map rather than
// failing, so old blobs survive the removal of a context type.
func (r *WorkingContextRegistry) DecodePayload(contextType string, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	t, ok := r.PayloadType(contextType)
	if !ok {
		var bag map[string]interface{}
		if err := json.Unmarshal(raw, &bag); err != nil {
			// Not an object; fall back to whatever JSON value it is.
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode payload for %s: %w", contextType, err)
			}
			return v, nil
		}
		return bag, nil
	}

	target := reflect.New(t)
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", contextType, err)
	}
	return target.Elem().Interface(), nil
}
