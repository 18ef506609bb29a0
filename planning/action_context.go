package planning

import (
	"sync"
)

// ContextKey is a typed tag for values shared between plan steps during
// execution. Two keys are equal when both name and type match.
type ContextKey struct {
	Name string
	Type TypeTag
}

// ActionContext is the keyed result map threaded through plan execution.
// A step writes at most one value under its action's declared context key
// (plus any additional keys the handler sets explicitly); later steps read
// earlier values. One context is owned by a single execution.
type ActionContext struct {
	mu     sync.RWMutex
	values map[ContextKey]interface{}
}

// NewActionContext creates an empty action context.
func NewActionContext() *ActionContext {
	return &ActionContext{
		values: make(map[ContextKey]interface{}),
	}
}

// Set stores value under key, replacing any previous value.
func (c *ActionContext) Set(key ContextKey, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *ActionContext) Get(key ContextKey) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetNamed returns the first value whose key name matches, regardless of type.
// Useful for handlers that only know the upstream key by name.
func (c *ActionContext) GetNamed(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if k.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Keys returns all keys currently present.
func (c *ActionContext) Keys() []ContextKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ContextKey, 0, len(c.values))
	for k := range c.values {
		out = append(out, k)
	}
	return out
}

// Len returns the number of stored values.
func (c *ActionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a copy of the stored values keyed by name.
func (c *ActionContext) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k.Name] = v
	}
	return out
}
