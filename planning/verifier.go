package planning

import (
	"fmt"
)

// VerifyPlan structurally validates a plan against the catalog. For each
// action or pending step it checks that the action id is registered, that
// provided parameter names are declared, and that provided plus pending cover
// the full declared set; any absent parameter becomes pending with the
// parameter's prompt. Violations rewrite the offending step into an error
// step rather than rejecting the whole plan.
//
// VerifyPlan is pure and idempotent: verifying a verified plan is a no-op.
func VerifyPlan(plan *Plan, catalog *ActionCatalog) *Plan {
	steps := plan.Steps()
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		out = append(out, verifyStep(step, catalog))
	}
	return NewPlan(plan.AssistantMessage(), out)
}

func verifyStep(step Step, catalog *ActionCatalog) Step {
	if step.Kind() == StepError {
		return step
	}

	def, ok := catalog.ByID(step.ActionID())
	if !ok {
		return NewErrorStep(fmt.Sprintf("unknown action: %s", step.ActionID()))
	}

	declared := make(map[string]ParamSpec, len(def.Params))
	for _, spec := range def.Params {
		declared[spec.Name] = spec
	}

	var provided *OrderedParams
	switch step.Kind() {
	case StepAction:
		provided = step.Args()
	case StepPending:
		provided = step.Provided()
	}

	// Provided names must be a subset of the declared parameters.
	for _, name := range provided.Keys() {
		if _, ok := declared[name]; !ok {
			return NewErrorStep(fmt.Sprintf("action %s does not declare parameter %s", def.ID, name))
		}
	}

	pendingMsg := make(map[string]string)
	for _, pp := range step.Pending() {
		pendingMsg[pp.Name] = pp.Message
	}

	// Rebuild against declared order; anything neither provided nor pending
	// is treated as pending with the parameter's prompt.
	ordered := NewOrderedParams()
	var pending []PendingParam
	for _, spec := range def.Params {
		if v, ok := provided.Get(spec.Name); ok {
			ordered.Set(spec.Name, v)
			continue
		}
		msg, ok := pendingMsg[spec.Name]
		if !ok {
			msg = pendingMessage(spec)
		}
		pending = append(pending, PendingParam{Name: spec.Name, Message: msg})
	}

	if len(pending) > 0 {
		return NewPendingStep(step.Description(), def.ID, ordered, pending)
	}
	return NewActionStep(step.Description(), def.ID, ordered)
}
