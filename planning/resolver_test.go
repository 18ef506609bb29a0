package planning

import (
	"fmt"
	"strings"
	"testing"
)

func resolveOne(t *testing.T, catalog *ActionCatalog, factories *TypeFactoryRegistry, raw string) *ResolvedPlan {
	t.Helper()
	parser := NewPlanParser(catalog)
	plan := VerifyPlan(parser.Parse(raw), catalog)
	return NewPlanResolver(catalog, factories).Resolve(plan)
}

func TestResolveBindsOrderedArguments(t *testing.T) {
	catalog := chartCatalog(t)

	resolved := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"displayControlChart","parameters":{"bundleId":"A12345","measurementConcept":"displacement"}}]}`)

	if resolved.Status() != StatusReady {
		t.Fatalf("expected READY, got %s", resolved.Status())
	}
	binding := resolved.Binding(0)
	if binding == nil {
		t.Fatal("expected a binding for the action step")
	}
	raw := binding.RawArgs()
	if len(raw) != 2 || raw[0] != "displacement" || raw[1] != "A12345" {
		t.Errorf("arguments not in declared order: %v", raw)
	}
}

func TestResolvePrimitiveCoercion(t *testing.T) {
	catalog := NewActionCatalog()
	if err := catalog.Register(ActionDefinition{
		ID:      "configure",
		Handler: nopHandler,
		Params: []ParamSpec{
			{Name: "count", Type: TypeInt},
			{Name: "ratio", Type: TypeFloat},
			{Name: "enabled", Type: TypeBool},
			{Name: "label", Type: TypeString},
		},
	}); err != nil {
		t.Fatal(err)
	}

	resolved := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"configure","parameters":{"count":7,"ratio":"2.5","enabled":"true","label":99}}]}`)

	if resolved.Status() != StatusReady {
		reason, _ := resolved.FirstErrorReason()
		t.Fatalf("expected READY, got %s (%s)", resolved.Status(), reason)
	}
	args := resolved.Binding(0).RawArgs()
	if args[0] != int64(7) {
		t.Errorf("count = %v (%T)", args[0], args[0])
	}
	if args[1] != 2.5 {
		t.Errorf("ratio = %v (%T)", args[1], args[1])
	}
	if args[2] != true {
		t.Errorf("enabled = %v (%T)", args[2], args[2])
	}
	if args[3] != "99" {
		t.Errorf("label = %v (%T)", args[3], args[3])
	}
}

func TestResolveCoercionFailureDemotesPlan(t *testing.T) {
	catalog := NewActionCatalog()
	if err := catalog.Register(ActionDefinition{
		ID:      "configure",
		Handler: nopHandler,
		Params:  []ParamSpec{{Name: "count", Type: TypeInt}},
	}); err != nil {
		t.Fatal(err)
	}

	resolved := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"configure","parameters":{"count":"not a number"}}]}`)

	if resolved.Status() != StatusError {
		t.Fatalf("expected ERROR, got %s", resolved.Status())
	}
	reason, _ := resolved.FirstErrorReason()
	if reason != "invalid value for count" {
		t.Errorf("reason = %q", reason)
	}
	if resolved.Binding(0) != nil {
		t.Error("demoted step should carry no binding")
	}
}

func TestResolveAllowedPattern(t *testing.T) {
	catalog := NewActionCatalog()
	if err := catalog.Register(ActionDefinition{
		ID:      "lookup",
		Handler: nopHandler,
		Params: []ParamSpec{
			{Name: "bundleId", Type: TypeString, AllowedPattern: `[A-Z]\d{5}`},
		},
	}); err != nil {
		t.Fatal(err)
	}

	ok := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"lookup","parameters":{"bundleId":"A12345"}}]}`)
	if ok.Status() != StatusReady {
		t.Errorf("matching value should resolve, got %s", ok.Status())
	}

	bad := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"lookup","parameters":{"bundleId":"nope"}}]}`)
	if bad.Status() != StatusError {
		t.Fatalf("expected ERROR for pattern mismatch, got %s", bad.Status())
	}
	reason, _ := bad.FirstErrorReason()
	if reason != "invalid value for bundleId" {
		t.Errorf("reason = %q", reason)
	}

	// The pattern is anchored: a partial match is a mismatch.
	partial := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"lookup","parameters":{"bundleId":"xxA12345xx"}}]}`)
	if partial.Status() != StatusError {
		t.Errorf("expected ERROR for partial match, got %s", partial.Status())
	}
}

func TestResolveSequenceElementwise(t *testing.T) {
	catalog := NewActionCatalog()
	if err := catalog.Register(ActionDefinition{
		ID:      "compare",
		Handler: nopHandler,
		Params:  []ParamSpec{{Name: "counts", Type: TypeInt}},
	}); err != nil {
		t.Fatal(err)
	}

	resolved := resolveOne(t, catalog, nil,
		`{"steps":[{"actionId":"compare","parameters":{"counts":[1,2,3]}}]}`)

	if resolved.Status() != StatusReady {
		t.Fatalf("expected READY, got %s", resolved.Status())
	}
	seq := resolved.Binding(0).RawArgs()[0].([]interface{})
	if len(seq) != 3 || seq[0] != int64(1) || seq[2] != int64(3) {
		t.Errorf("unexpected sequence: %v", seq)
	}
}

func TestResolveNestedSchemaTagDelegatesToFactory(t *testing.T) {
	catalog := NewActionCatalog()
	if err := catalog.Register(ActionDefinition{
		ID:      "runQuery",
		Handler: nopHandler,
		Params: []ParamSpec{
			{Name: "query", Type: TypeObject, NestedSchemaTag: "query.v1"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	type query struct{ Source string }
	factories := NewTypeFactoryRegistry()
	err := factories.Register("query.v1", func(raw interface{}) (interface{}, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected DSL string")
		}
		return query{Source: s}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	resolved := resolveOne(t, catalog, factories,
		`{"steps":[{"actionId":"runQuery","parameters":{"query":"(select 1)"}}]}`)

	if resolved.Status() != StatusReady {
		reason, _ := resolved.FirstErrorReason()
		t.Fatalf("expected READY, got %s (%s)", resolved.Status(), reason)
	}
	q, ok := resolved.Binding(0).RawArgs()[0].(query)
	if !ok || q.Source != "(select 1)" {
		t.Errorf("factory output not bound: %v", resolved.Binding(0).RawArgs()[0])
	}
}

func TestResolveFactoryFailure(t *testing.T) {
	catalog := NewActionCatalog()
	if err := catalog.Register(ActionDefinition{
		ID:      "runQuery",
		Handler: nopHandler,
		Params: []ParamSpec{
			{Name: "query", Type: TypeObject, NestedSchemaTag: "query.v1"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	factories := NewTypeFactoryRegistry()
	if err := factories.Register("query.v1", func(raw interface{}) (interface{}, error) {
		return nil, fmt.Errorf("bad grammar")
	}); err != nil {
		t.Fatal(err)
	}

	resolved := resolveOne(t, catalog, factories,
		`{"steps":[{"actionId":"runQuery","parameters":{"query":"(select 1)"}}]}`)

	if resolved.Status() != StatusError {
		t.Fatalf("expected ERROR, got %s", resolved.Status())
	}
	reason, _ := resolved.FirstErrorReason()
	if !strings.Contains(reason, "invalid value for query") || !strings.Contains(reason, "bad grammar") {
		t.Errorf("reason = %q", reason)
	}
}

func TestResolvePassesThroughPendingAndError(t *testing.T) {
	catalog := chartCatalog(t)

	plan := NewPlan("", []Step{
		NewPendingStep("", "displayControlChart", NewOrderedParams(), []PendingParam{{Name: "bundleId", Message: "m"}}),
		NewErrorStep("upstream failure"),
	})

	resolved := NewPlanResolver(catalog, nil).Resolve(plan)
	if resolved.Status() != StatusPending {
		t.Errorf("expected PENDING, got %s", resolved.Status())
	}
	if resolved.Binding(0) != nil || resolved.Binding(1) != nil {
		t.Error("non-action steps must not carry bindings")
	}
}
