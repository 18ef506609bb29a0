package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// StateStore persists conversation state per session id. Save must be
// observable by the next Load for the same id; atomicity per id is the
// store's responsibility. The manager never locks across the planner call,
// so concurrent turns on one session must be serialized by the caller.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*ConversationState, error)
	Save(ctx context.Context, sessionID string, state *ConversationState) error
}

// TurnResult is what one Converse call produces: the plan for this turn, the
// persisted successor state, and the turn's parameter movements. Blob is set
// only in blob mode.
type TurnResult struct {
	Plan          *Plan
	State         *ConversationState
	PendingParams []PendingParam
	NewlyProvided map[string]interface{}
	Blob          []byte
}

// ManagerOption configures a ConversationManager.
type ManagerOption func(*ConversationManager)

// WithStateStore puts the manager in store mode: state is loaded and saved
// per session id.
func WithStateStore(store StateStore) ManagerOption {
	return func(m *ConversationManager) { m.store = store }
}

// WithBlobMode puts the manager in blob mode: state travels as an opaque blob
// held by the caller, serialized with the given serializer.
func WithBlobMode(serializer *BlobSerializer) ManagerOption {
	return func(m *ConversationManager) {
		m.blobMode = true
		if serializer != nil {
			m.serializer = serializer
		}
	}
}

// WithManagerConfig sets the configuration. A nil config keeps the defaults.
func WithManagerConfig(config *Config) ManagerOption {
	return func(m *ConversationManager) {
		if config != nil {
			m.config = config
		}
	}
}

// WithWorkingContextAugmentation sets the registry consulted for user-message
// augmentation when the state carries a working context.
func WithWorkingContextAugmentation(registry *WorkingContextRegistry) ManagerOption {
	return func(m *ConversationManager) { m.contexts = registry }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger core.Logger) ManagerOption {
	return func(m *ConversationManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerTelemetry sets the telemetry provider used for turn spans.
func WithManagerTelemetry(t core.Telemetry) ManagerOption {
	return func(m *ConversationManager) {
		if t != nil {
			m.telemetry = t
		}
	}
}

// ConversationManager orchestrates one turn: load prior state, plan, merge
// the turn's parameters into the successor state, persist, return. A manager
// runs in exactly one persistence mode, fixed at construction: store mode
// (Converse with a session id) or blob mode (ConverseBlob with an opaque
// blob). Calling the other entry point fails with core.ErrWrongMode.
//
// The manager holds no per-session state between turns; distinct sessions may
// run turns concurrently through the same manager.
type ConversationManager struct {
	planner    Planner
	store      StateStore
	blobMode   bool
	serializer *BlobSerializer
	contexts   *WorkingContextRegistry
	config     *Config
	logger     core.Logger
	telemetry  core.Telemetry
}

// NewConversationManager creates a manager around a planner. Exactly one of
// WithStateStore or WithBlobMode must be given.
func NewConversationManager(planner Planner, opts ...ManagerOption) (*ConversationManager, error) {
	if planner == nil {
		return nil, core.NewEngineError("manager.New", "manager",
			fmt.Errorf("%w: planner is required", core.ErrInvalidConfiguration))
	}

	m := &ConversationManager{
		planner:    planner,
		config:     DefaultConfig(),
		serializer: NewBlobSerializer(),
		logger:     &core.NoOpLogger{},
		telemetry:  &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.blobMode && m.store != nil {
		return nil, core.NewEngineError("manager.New", "manager",
			fmt.Errorf("%w: choose store mode or blob mode, not both", core.ErrInvalidConfiguration))
	}
	if !m.blobMode && m.store == nil {
		return nil, core.NewEngineError("manager.New", "manager",
			fmt.Errorf("%w: a state store or blob mode is required", core.ErrInvalidConfiguration))
	}
	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	m.serializer.adoptSchemaVersion(m.config.SchemaVersion)
	return m, nil
}

// Converse runs one turn in store mode. Prior state is loaded by session id
// and the successor state saved under the same id before the result returns.
func (m *ConversationManager) Converse(ctx context.Context, userMessage, sessionID string) (*TurnResult, error) {
	if m.blobMode {
		return nil, fmt.Errorf("%w: manager is in blob mode, use ConverseBlob", core.ErrWrongMode)
	}

	prior, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("manager: load session %s: %w", sessionID, err)
	}

	result, persist, err := m.turn(ctx, userMessage, prior)
	if err != nil {
		return nil, err
	}
	if persist {
		if err := m.store.Save(ctx, sessionID, result.State); err != nil {
			return nil, fmt.Errorf("manager: save session %s: %w", sessionID, err)
		}
	}
	return result, nil
}

// ConverseBlob runs one turn in blob mode. A nil or empty blob starts a new
// session; otherwise the blob is deserialized (integrity and migration
// failures propagate) and the successor state comes back serialized in the
// result.
func (m *ConversationManager) ConverseBlob(ctx context.Context, userMessage string, blob []byte) (*TurnResult, error) {
	if !m.blobMode {
		return nil, fmt.Errorf("%w: manager is in store mode, use Converse", core.ErrWrongMode)
	}

	var prior *ConversationState
	if len(blob) > 0 {
		var err error
		prior, err = m.serializer.Deserialize(blob)
		if err != nil {
			return nil, err
		}
	}

	result, persist, err := m.turn(ctx, userMessage, prior)
	if err != nil {
		return nil, err
	}
	if !persist {
		// An aborted turn hands the caller's blob back unchanged.
		result.Blob = blob
		return result, nil
	}
	out, err := m.serializer.Serialize(result.State)
	if err != nil {
		return nil, err
	}
	result.Blob = out
	return result, nil
}

// Expire produces the terminal result for a session: an empty plan carrying
// the farewell message, a blank state, and the blank state's blob. It is
// idempotent and never touches the store; in store mode deleting the stored
// entry is the host's concern.
func (m *ConversationManager) Expire() *TurnResult {
	state := EmptyState()
	blob, err := m.serializer.Serialize(state)
	if err != nil {
		// A blank state always serializes; this path is unreachable short of
		// a broken gzip writer.
		m.logger.Error("Failed to serialize empty state", map[string]interface{}{
			"operation": "expire",
			"error":     err.Error(),
		})
	}
	return &TurnResult{
		Plan:          NewPlan("Session expired", nil),
		State:         state,
		PendingParams: []PendingParam{},
		NewlyProvided: map[string]interface{}{},
		Blob:          blob,
	}
}

// turn is the mode-independent core of one conversation turn. The returned
// bool says whether the successor state should be persisted; an aborted model
// call leaves the prior state in place.
func (m *ConversationManager) turn(ctx context.Context, userMessage string, prior *ConversationState) (*TurnResult, bool, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "planning.converse")
	defer span.End()
	start := time.Now()

	var state *ConversationState
	if prior == nil || prior.IsEmpty() {
		state = InitialState(userMessage)
	} else {
		state = prior.WithLatestMessage(userMessage)
	}

	effectiveMessage := m.effectiveUserMessage(userMessage, state)

	plan, err := m.planner.Plan(ctx, effectiveMessage, state)
	if err != nil {
		span.RecordError(err)
		// Cancellation and timeout come back as an error plan so the session
		// survives; the stored state stays as it was before the turn.
		if reason, ok := cancellationReason(ctx, err); ok {
			telemetry.Counter("conversant.turns", "status", "cancelled")
			m.logger.Warn("Model invocation aborted", map[string]interface{}{
				"operation": "converse",
				"reason":    reason,
			})
			return &TurnResult{
				Plan:          NewPlan("", []Step{NewErrorStep(reason)}),
				State:         state,
				PendingParams: []PendingParam{},
				NewlyProvided: map[string]interface{}{},
			}, false, nil
		}
		telemetry.Counter("conversant.turns", "status", "error")
		return nil, false, err
	}

	pending := plan.PendingParams()
	newlyProvided := map[string]interface{}{}
	if steps := plan.Steps(); len(steps) > 0 && steps[0].Kind() == StepPending {
		if provided := steps[0].Provided(); provided != nil {
			newlyProvided = provided.Map()
		}
	}

	merged := MergeProvided(state.ProvidedParams(), newlyProvided)
	next := NextState(state, pending, merged, userMessage, m.config.MaxHistorySize)

	telemetry.Counter("conversant.turns", "status", string(plan.Status()))
	telemetry.Histogram("conversant.turn_duration_ms", float64(time.Since(start).Milliseconds()))
	m.logger.Info("Turn complete", map[string]interface{}{
		"operation":     "converse",
		"plan_status":   string(plan.Status()),
		"step_count":    plan.StepCount(),
		"pending_count": len(pending),
		"duration_ms":   time.Since(start).Milliseconds(),
	})

	return &TurnResult{
		Plan:          plan,
		State:         next,
		PendingParams: pending,
		NewlyProvided: newlyProvided,
	}, true, nil
}

// effectiveUserMessage prepends the rendered working context when
// augmentation is enabled and the registered augmenter opts in.
func (m *ConversationManager) effectiveUserMessage(userMessage string, state *ConversationState) string {
	if !m.config.AugmentUserMessage || m.contexts == nil {
		return userMessage
	}
	wc := state.WorkingContext()
	if wc == nil {
		return userMessage
	}
	augmenter, ok := m.contexts.GetAugmenter(wc.ContextType)
	if !ok || augmenter == nil || !augmenter.ShouldAugment(wc) {
		return userMessage
	}
	rendered, ok := augmenter.FormatForUserMessage(wc, m.config)
	if !ok || rendered == "" {
		return userMessage
	}
	return fmt.Sprintf("%s %s\n\n%s %s", m.config.ContextPrefix, rendered, m.config.RequestPrefix, userMessage)
}

// cancellationReason classifies a planner failure as caller cancellation or
// timeout, per the turn contract.
func cancellationReason(ctx context.Context, err error) (string, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "model invocation timed out", true
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return "model invocation cancelled", true
	}
	return "", false
}
