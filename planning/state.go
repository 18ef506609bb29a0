package planning

import (
	"strings"
	"time"
)

// WorkingContext is the typed domain artifact the user is currently working
// on (a query in progress, a report being assembled). The payload shape is
// registered per context type in the WorkingContextRegistry; the engine
// treats it as opaque.
type WorkingContext struct {
	ContextType  string            `json:"contextType"`
	Payload      interface{}       `json:"payload"`
	LastModified time.Time         `json:"lastModified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewWorkingContext creates a working context stamped with the current time.
func NewWorkingContext(contextType string, payload interface{}) *WorkingContext {
	return &WorkingContext{
		ContextType:  contextType,
		Payload:      payload,
		LastModified: time.Now().UTC(),
		Metadata:     make(map[string]string),
	}
}

// Clone returns a copy with its own metadata map. The payload is shared; it
// is opaque to the engine and treated as immutable.
func (w *WorkingContext) Clone() *WorkingContext {
	if w == nil {
		return nil
	}
	out := *w
	out.Metadata = make(map[string]string, len(w.Metadata))
	for k, v := range w.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// ConversationState is the immutable record carried across turns: the
// original instruction, what the user has provided so far, what is still
// pending, and the working context with its bounded history. States are
// replaced, never mutated; every accessor copies.
//
// Invariants: a parameter name appears in the provided map or among the
// pending params, never both; provided values are non-nil with non-blank
// keys; the turn history never exceeds the configured bound.
type ConversationState struct {
	originalInstruction string
	pendingParams       []PendingParam
	providedParams      map[string]interface{}
	latestUserMessage   string
	workingContext      *WorkingContext
	turnHistory         []WorkingContext
}

// InitialState creates the state for a session's first turn.
func InitialState(instruction string) *ConversationState {
	return &ConversationState{
		originalInstruction: instruction,
		providedParams:      make(map[string]interface{}),
		latestUserMessage:   instruction,
	}
}

// EmptyState creates a blank state, as produced by Expire.
func EmptyState() *ConversationState {
	return &ConversationState{
		providedParams: make(map[string]interface{}),
	}
}

// NextState constructs the successor state after a turn. Blank keys and nil
// values are dropped from provided; pending names shadowed by provided keys
// are dropped so the two sets stay disjoint; the turn history is trimmed to
// maxHistory entries, evicting the oldest first.
func NextState(prev *ConversationState, pending []PendingParam, provided map[string]interface{}, latestMessage string, maxHistory int) *ConversationState {
	cleanProvided := make(map[string]interface{}, len(provided))
	for k, v := range provided {
		if strings.TrimSpace(k) == "" || v == nil {
			continue
		}
		cleanProvided[k] = v
	}

	cleanPending := make([]PendingParam, 0, len(pending))
	for _, pp := range pending {
		if _, shadowed := cleanProvided[pp.Name]; shadowed {
			continue
		}
		cleanPending = append(cleanPending, pp)
	}

	history := prev.TurnHistory()
	if maxHistory >= 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	return &ConversationState{
		originalInstruction: prev.originalInstruction,
		pendingParams:       cleanPending,
		providedParams:      cleanProvided,
		latestUserMessage:   latestMessage,
		workingContext:      prev.workingContext.Clone(),
		turnHistory:         history,
	}
}

// MergeProvided overlays newly provided parameters on the prior map. Later
// wins on key conflict; blank keys and nil values are dropped from both
// sides. No previously provided key is otherwise lost.
func MergeProvided(prior, newly map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(prior)+len(newly))
	for k, v := range prior {
		if strings.TrimSpace(k) == "" || v == nil {
			continue
		}
		out[k] = v
	}
	for k, v := range newly {
		if strings.TrimSpace(k) == "" || v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// OriginalInstruction returns the instruction that opened the session.
func (s *ConversationState) OriginalInstruction() string { return s.originalInstruction }

// LatestUserMessage returns the most recent user message.
func (s *ConversationState) LatestUserMessage() string { return s.latestUserMessage }

// PendingParams returns a copy of the still-missing parameters.
func (s *ConversationState) PendingParams() []PendingParam {
	out := make([]PendingParam, len(s.pendingParams))
	copy(out, s.pendingParams)
	return out
}

// ProvidedParams returns a copy of the parameters provided so far.
func (s *ConversationState) ProvidedParams() map[string]interface{} {
	out := make(map[string]interface{}, len(s.providedParams))
	for k, v := range s.providedParams {
		out[k] = v
	}
	return out
}

// WorkingContext returns a copy of the current working context, or nil.
func (s *ConversationState) WorkingContext() *WorkingContext {
	return s.workingContext.Clone()
}

// TurnHistory returns a copy of the retained working-context history,
// oldest first.
func (s *ConversationState) TurnHistory() []WorkingContext {
	out := make([]WorkingContext, len(s.turnHistory))
	copy(out, s.turnHistory)
	return out
}

// HasPending reports whether any parameters are still pending.
func (s *ConversationState) HasPending() bool { return len(s.pendingParams) > 0 }

// IsEmpty reports whether this is a blank (expired) state.
func (s *ConversationState) IsEmpty() bool {
	return s.originalInstruction == "" &&
		s.latestUserMessage == "" &&
		len(s.pendingParams) == 0 &&
		len(s.providedParams) == 0 &&
		s.workingContext == nil &&
		len(s.turnHistory) == 0
}

// WithLatestMessage returns a copy of the state with the latest user message
// replaced, preserving everything else.
func (s *ConversationState) WithLatestMessage(message string) *ConversationState {
	next := s.copy()
	next.latestUserMessage = message
	return next
}

// WithWorkingContext returns a copy of the state with the working context
// replaced. The previous working context, if any, is appended to the turn
// history, which is trimmed to maxHistory entries.
func (s *ConversationState) WithWorkingContext(wc *WorkingContext, maxHistory int) *ConversationState {
	next := s.copy()
	if s.workingContext != nil {
		next.turnHistory = append(next.turnHistory, *s.workingContext.Clone())
		if maxHistory >= 0 && len(next.turnHistory) > maxHistory {
			next.turnHistory = next.turnHistory[len(next.turnHistory)-maxHistory:]
		}
	}
	next.workingContext = wc.Clone()
	return next
}

func (s *ConversationState) copy() *ConversationState {
	return &ConversationState{
		originalInstruction: s.originalInstruction,
		pendingParams:       s.PendingParams(),
		providedParams:      s.ProvidedParams(),
		latestUserMessage:   s.latestUserMessage,
		workingContext:      s.workingContext.Clone(),
		turnHistory:         s.TurnHistory(),
	}
}
