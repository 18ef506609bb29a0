package planning

import (
	"context"
	"sync"
)

// MemoryStateStore is an in-process StateStore for tests and single-instance
// deployments. States are immutable, so the store holds the pointers directly.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*ConversationState
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]*ConversationState),
	}
}

// Load returns the state for sessionID, or nil when the session is unknown.
func (s *MemoryStateStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[sessionID], nil
}

// Save replaces the state for sessionID.
func (s *MemoryStateStore) Save(ctx context.Context, sessionID string, state *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = state
	return nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (s *MemoryStateStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
