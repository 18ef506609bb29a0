package planning

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/conversant-dev/conversant/core"
)

// TypeTag names the declared type of a parameter or context value.
type TypeTag string

const (
	TypeString TypeTag = "string"
	TypeInt    TypeTag = "int"
	TypeFloat  TypeTag = "float"
	TypeBool   TypeTag = "bool"
	// TypeObject marks a complex parameter built by a TypeFactory keyed by
	// the parameter's NestedSchemaTag.
	TypeObject TypeTag = "object"
)

// Mutability classifies whether an action changes host state.
type Mutability string

const (
	ReadOnly Mutability = "READ_ONLY"
	Mutate   Mutability = "MUTATE"
)

// ParamSpec describes one declared parameter of an action. Declaration order
// within ActionDefinition.Params defines the positional binding order.
type ParamSpec struct {
	Name            string   `json:"name"`
	Type            TypeTag  `json:"type"`
	NestedSchemaTag string   `json:"nested_schema_tag,omitempty"`
	Description     string   `json:"description,omitempty"`
	AllowedPattern  string   `json:"allowed_pattern,omitempty"`
	Examples        []string `json:"examples,omitempty"`
}

// ActionHandler is the invocable behind a registered action. Arguments arrive
// positionally in declared parameter order, already coerced to their declared
// types. The action context carries results of earlier steps in the same plan
// and receives this handler's result under the action's context key.
//
// Go has no reflection over parameter names, so actions register through this
// explicit schema + closure pairing; the catalog stores the closure verbatim.
type ActionHandler func(ctx context.Context, args []interface{}, actionCtx *ActionContext) (interface{}, error)

// ActionDefinition is a catalog entry: identity, ordered parameter schema and
// the handler to invoke.
type ActionDefinition struct {
	ID                    string      `json:"id"`
	Description           string      `json:"description"`
	Params                []ParamSpec `json:"params"`
	Handler               ActionHandler
	ContextKey            string     `json:"context_key,omitempty"`
	AdditionalContextKeys []string   `json:"additional_context_keys,omitempty"`
	Mutability            Mutability `json:"mutability"`
}

func (d *ActionDefinition) clone() *ActionDefinition {
	out := *d
	out.Params = make([]ParamSpec, len(d.Params))
	copy(out.Params, d.Params)
	out.AdditionalContextKeys = make([]string, len(d.AdditionalContextKeys))
	copy(out.AdditionalContextKeys, d.AdditionalContextKeys)
	return &out
}

// ActionCatalog is the in-memory registry of action definitions. It is built
// once at startup and read-only afterwards; reads are safe for concurrent use.
type ActionCatalog struct {
	mu      sync.RWMutex
	actions map[string]*ActionDefinition
	order   []string

	logger core.Logger
}

// NewActionCatalog creates an empty catalog.
func NewActionCatalog() *ActionCatalog {
	return &ActionCatalog{
		actions: make(map[string]*ActionDefinition),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for catalog operations.
func (c *ActionCatalog) SetLogger(logger core.Logger) {
	if logger == nil {
		c.logger = &core.NoOpLogger{}
	} else {
		c.logger = logger
	}
}

// Register adds an action definition to the catalog. The definition is
// deep-copied. A duplicate id fails with core.ErrCatalogConflict; duplicate
// parameter names or a missing handler fail with a validation error.
func (c *ActionCatalog) Register(def ActionDefinition) error {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return fmt.Errorf("catalog.Register: action id must not be blank")
	}
	if def.Handler == nil {
		return fmt.Errorf("catalog.Register: action %s has no handler", id)
	}
	seen := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("catalog.Register: action %s has a blank parameter name", id)
		}
		if seen[name] {
			return fmt.Errorf("catalog.Register: action %s declares parameter %s twice", id, name)
		}
		seen[name] = true
	}
	if def.Mutability == "" {
		def.Mutability = ReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.actions[id]; exists {
		return core.NewEngineError("catalog.Register", "catalog", core.ErrCatalogConflict)
	}
	def.ID = id
	c.actions[id] = def.clone()
	c.order = append(c.order, id)

	c.logger.Debug("Action registered", map[string]interface{}{
		"operation":   "catalog_register",
		"action_id":   id,
		"param_count": len(def.Params),
		"mutability":  string(def.Mutability),
	})
	return nil
}

// ByID returns a copy of the definition for id, if registered.
func (c *ActionCatalog) ByID(id string) (*ActionDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.actions[id]
	if !ok {
		return nil, false
	}
	return def.clone(), true
}

// All returns copies of every registered definition in registration order.
func (c *ActionCatalog) All() []ActionDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ActionDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.actions[id].clone())
	}
	return out
}

// ParameterOrder returns the declared parameter names of id, in order.
func (c *ActionCatalog) ParameterOrder(id string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.actions[id]
	if !ok {
		return nil, false
	}
	names := make([]string, len(def.Params))
	for i, p := range def.Params {
		names[i] = p.Name
	}
	return names, true
}

// Size returns the number of registered actions.
func (c *ActionCatalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.actions)
}
