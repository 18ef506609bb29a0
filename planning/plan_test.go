package planning

import (
	"testing"
)

func actionStep(id string, kv ...string) Step {
	args := NewOrderedParams()
	for i := 0; i+1 < len(kv); i += 2 {
		args.Set(kv[i], kv[i+1])
	}
	return NewActionStep("", id, args)
}

func TestPlanStatusDerivation(t *testing.T) {
	tests := []struct {
		name   string
		steps  []Step
		status PlanStatus
	}{
		{
			name:   "all action steps is ready",
			steps:  []Step{actionStep("a"), actionStep("b")},
			status: StatusReady,
		},
		{
			name: "any pending step is pending",
			steps: []Step{
				actionStep("a"),
				NewPendingStep("", "b", NewOrderedParams(), []PendingParam{{Name: "x", Message: "Provide x"}}),
			},
			status: StatusPending,
		},
		{
			name:   "any error step is error",
			steps:  []Step{actionStep("a"), NewErrorStep("boom")},
			status: StatusError,
		},
		{
			name: "pending wins over error",
			steps: []Step{
				NewPendingStep("", "b", NewOrderedParams(), []PendingParam{{Name: "x", Message: "m"}}),
				NewErrorStep("boom"),
			},
			status: StatusPending,
		},
		{
			name:   "empty plan is error",
			steps:  nil,
			status: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := NewPlan("", tt.steps)
			if got := plan.Status(); got != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, got)
			}
		})
	}
}

func TestPlanStatusEquivalence(t *testing.T) {
	// READY holds exactly when every step is an action step.
	ready := NewPlan("", []Step{actionStep("a"), actionStep("b")})
	for _, step := range ready.Steps() {
		if step.Kind() != StepAction {
			t.Fatal("ready plan contains a non-action step")
		}
	}
	if ready.Status() != StatusReady {
		t.Error("plan of only action steps should be READY")
	}
}

func TestPlanPendingParamsStepOrder(t *testing.T) {
	plan := NewPlan("", []Step{
		NewPendingStep("", "a", NewOrderedParams(), []PendingParam{
			{Name: "first", Message: "m1"},
			{Name: "second", Message: "m2"},
		}),
		NewPendingStep("", "b", NewOrderedParams(), []PendingParam{
			{Name: "third", Message: "m3"},
		}),
	})

	pending := plan.PendingParams()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending params, got %d", len(pending))
	}
	for i, want := range []string{"first", "second", "third"} {
		if pending[i].Name != want {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].Name, want)
		}
	}
}

func TestPendingStepDisjointness(t *testing.T) {
	provided := NewOrderedParams()
	provided.Set("measurementConcept", "displacement")
	step := NewPendingStep("", "exportControlChartToExcel", provided, []PendingParam{
		{Name: "bundleId", Message: "Provide bundleId"},
	})

	for _, pp := range step.Pending() {
		if step.Provided().Has(pp.Name) {
			t.Errorf("parameter %s is both provided and pending", pp.Name)
		}
	}
}

func TestStepConstructorsDeepCopy(t *testing.T) {
	args := NewOrderedParams()
	args.Set("query", "SELECT 1")
	step := NewActionStep("", "runSqlQuery", args)

	args.Set("query", "DROP TABLE users")
	if v, _ := step.Args().Get("query"); v != "SELECT 1" {
		t.Error("mutating the input args leaked into the step")
	}

	got := step.Args()
	got.Set("query", "mutated")
	if v, _ := step.Args().Get("query"); v != "SELECT 1" {
		t.Error("mutating accessor output leaked into the step")
	}
}

func TestPlanFirstErrorReason(t *testing.T) {
	plan := NewPlan("", []Step{
		actionStep("a"),
		NewErrorStep("first failure"),
		NewErrorStep("second failure"),
	})

	reason, ok := plan.FirstErrorReason()
	if !ok || reason != "first failure" {
		t.Errorf("expected first failure, got %q (ok=%t)", reason, ok)
	}

	if _, ok := NewPlan("", []Step{actionStep("a")}).FirstErrorReason(); ok {
		t.Error("expected no error reason on a ready plan")
	}
}

func TestPlanActionIDs(t *testing.T) {
	plan := NewPlan("", []Step{
		actionStep("a"),
		NewErrorStep("x"),
		actionStep("b"),
	})
	ids := plan.ActionIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected action ids: %v", ids)
	}
}
