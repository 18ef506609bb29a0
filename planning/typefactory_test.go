package planning

import (
	"errors"
	"strings"
	"testing"

	"github.com/conversant-dev/conversant/core"
)

func passthroughFactory(raw interface{}) (interface{}, error) {
	return raw, nil
}

func TestTypeFactoryRegisterAndBuild(t *testing.T) {
	registry := NewTypeFactoryRegistry()

	if err := registry.Register("query.v1", passthroughFactory); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !registry.Has("query.v1") {
		t.Error("expected query.v1 to be registered")
	}

	out, err := registry.Build("query.v1", "(select 1)")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if out != "(select 1)" {
		t.Errorf("unexpected output: %v", out)
	}

	if _, err := registry.Build("missing", nil); err == nil {
		t.Error("expected build of unregistered tag to fail")
	}
}

func TestTypeFactoryDuplicateTag(t *testing.T) {
	registry := NewTypeFactoryRegistry()
	if err := registry.Register("query.v1", passthroughFactory); err != nil {
		t.Fatal(err)
	}
	err := registry.Register("query.v1", passthroughFactory)
	if !errors.Is(err, core.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestTypeFactorySchemaValidatesObjectTrees(t *testing.T) {
	registry := NewTypeFactoryRegistry()
	schema := `{
		"type": "object",
		"required": ["source"],
		"properties": {"source": {"type": "string"}}
	}`
	if err := registry.RegisterWithSchema("query.v1", schema, passthroughFactory); err != nil {
		t.Fatalf("register with schema: %v", err)
	}

	valid := map[string]interface{}{"source": "measurements"}
	if _, err := registry.Build("query.v1", valid); err != nil {
		t.Errorf("valid object rejected: %v", err)
	}

	invalid := map[string]interface{}{"other": 1}
	_, err := registry.Build("query.v1", invalid)
	if err == nil {
		t.Fatal("expected schema validation failure")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTypeFactorySchemaBypassForDSLStrings(t *testing.T) {
	registry := NewTypeFactoryRegistry()
	schema := `{"type": "object"}`
	if err := registry.RegisterWithSchema("query.v1", schema, passthroughFactory); err != nil {
		t.Fatal(err)
	}

	// Opaque DSL strings skip schema validation; their grammar belongs to the
	// sub-language.
	out, err := registry.Build("query.v1", "(select (from measurements))")
	if err != nil {
		t.Fatalf("DSL string should bypass schema: %v", err)
	}
	if out != "(select (from measurements))" {
		t.Errorf("unexpected output: %v", out)
	}
}

func TestTypeFactoryInvalidSchema(t *testing.T) {
	registry := NewTypeFactoryRegistry()
	if err := registry.RegisterWithSchema("bad", "{not json", passthroughFactory); err == nil {
		t.Error("expected invalid schema JSON to be rejected")
	}
}
