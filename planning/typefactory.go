package planning

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/conversant-dev/conversant/core"
)

// TypeFactory constructs a typed argument value from the raw parse-time value
// of a complex parameter. The raw value is either an object tree
// (map[string]interface{} from JSON), an opaque DSL string starting with "(",
// or an EmbeddedExpr from the S-expression format. Parsing stays free of
// domain types; all coercion for nested schemas is concentrated here.
type TypeFactory func(raw interface{}) (interface{}, error)

type factoryEntry struct {
	factory TypeFactory
	schema  *jsonschema.Schema
}

// TypeFactoryRegistry maps nested schema tags to the factories that build
// their typed payloads. A factory may be registered together with a JSON
// schema; object-tree values are then validated against the schema before
// the factory runs. Opaque DSL strings bypass schema validation - their
// grammar belongs to the sub-language, not to this registry.
type TypeFactoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]factoryEntry

	logger core.Logger
}

// NewTypeFactoryRegistry creates an empty registry.
func NewTypeFactoryRegistry() *TypeFactoryRegistry {
	return &TypeFactoryRegistry{
		entries: make(map[string]factoryEntry),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for registry operations.
func (r *TypeFactoryRegistry) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
	} else {
		r.logger = logger
	}
}

// Register binds a factory to a nested schema tag. Duplicate tags fail with
// core.ErrAlreadyRegistered.
func (r *TypeFactoryRegistry) Register(tag string, factory TypeFactory) error {
	return r.register(tag, factory, nil)
}

// RegisterWithSchema binds a factory to a tag together with a JSON schema
// document. Object-tree raw values are validated against the schema before
// the factory builds the typed payload.
func (r *TypeFactoryRegistry) RegisterWithSchema(tag string, schemaJSON string, factory TypeFactory) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("typefactory.RegisterWithSchema: invalid schema for %s: %w", tag, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := tag + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("typefactory.RegisterWithSchema: add schema resource for %s: %w", tag, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("typefactory.RegisterWithSchema: compile schema for %s: %w", tag, err)
	}
	return r.register(tag, factory, schema)
}

func (r *TypeFactoryRegistry) register(tag string, factory TypeFactory, schema *jsonschema.Schema) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("typefactory.Register: tag must not be blank")
	}
	if factory == nil {
		return fmt.Errorf("typefactory.Register: factory for %s must not be nil", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[tag]; exists {
		return core.NewEngineError("typefactory.Register", "resolver", core.ErrAlreadyRegistered)
	}
	r.entries[tag] = factoryEntry{factory: factory, schema: schema}

	r.logger.Debug("Type factory registered", map[string]interface{}{
		"operation":  "typefactory_register",
		"tag":        tag,
		"has_schema": schema != nil,
	})
	return nil
}

// Has reports whether a factory is registered for tag.
func (r *TypeFactoryRegistry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[tag]
	return ok
}

// Build constructs the typed value for tag from the raw parse-time value.
func (r *TypeFactoryRegistry) Build(tag string, raw interface{}) (interface{}, error) {
	r.mu.RLock()
	entry, ok := r.entries[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no type factory registered for %s", tag)
	}

	if entry.schema != nil {
		switch raw.(type) {
		case map[string]interface{}, []interface{}:
			if err := entry.schema.Validate(raw); err != nil {
				return nil, fmt.Errorf("schema validation failed for %s: %w", tag, err)
			}
		}
	}

	return entry.factory(raw)
}
