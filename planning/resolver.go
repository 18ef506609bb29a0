package planning

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// TypedValue is one resolved positional argument.
type TypedValue struct {
	Param string
	Type  TypeTag
	Value interface{}
}

// Binding pairs an action step with its invocable handler and the coerced,
// ordered arguments the executor will pass to it. The action context is
// always injected at invocation time; handlers that do not need it ignore
// the parameter.
type Binding struct {
	Definition *ActionDefinition
	Handler    ActionHandler
	Args       []TypedValue
}

// RawArgs returns the argument values in declared order, ready for the handler.
func (b *Binding) RawArgs() []interface{} {
	out := make([]interface{}, len(b.Args))
	for i, a := range b.Args {
		out[i] = a.Value
	}
	return out
}

// ResolvedPlan is a plan whose action steps carry bindings. Pending and error
// steps are copied through unchanged; the overall status is recomputed, so a
// coercion failure can demote a ready plan to an error plan.
type ResolvedPlan struct {
	plan     *Plan
	bindings []*Binding // parallel to plan steps; nil for non-action steps
}

// AssistantMessage returns the plan's assistant message.
func (rp *ResolvedPlan) AssistantMessage() string { return rp.plan.AssistantMessage() }

// Steps returns the plan's steps in order.
func (rp *ResolvedPlan) Steps() []Step { return rp.plan.Steps() }

// Status returns the derived status over the resolved steps.
func (rp *ResolvedPlan) Status() PlanStatus { return rp.plan.Status() }

// PendingParams returns pending parameters in step order.
func (rp *ResolvedPlan) PendingParams() []PendingParam { return rp.plan.PendingParams() }

// FirstErrorReason returns the reason of the first error step, if any.
func (rp *ResolvedPlan) FirstErrorReason() (string, bool) { return rp.plan.FirstErrorReason() }

// Binding returns the binding for step index i, or nil for pending and error
// steps.
func (rp *ResolvedPlan) Binding(i int) *Binding {
	if i < 0 || i >= len(rp.bindings) {
		return nil
	}
	return rp.bindings[i]
}

// PlanResolver binds verified plans to invocable handlers, coercing argument
// values to their declared parameter types.
type PlanResolver struct {
	catalog   *ActionCatalog
	factories *TypeFactoryRegistry
	logger    core.Logger
}

// NewPlanResolver creates a resolver over the catalog. The factory registry
// may be nil when no action declares nested-schema parameters.
func NewPlanResolver(catalog *ActionCatalog, factories *TypeFactoryRegistry) *PlanResolver {
	if factories == nil {
		factories = NewTypeFactoryRegistry()
	}
	return &PlanResolver{
		catalog:   catalog,
		factories: factories,
		logger:    &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for resolution diagnostics.
func (r *PlanResolver) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
	} else {
		r.logger = logger
	}
}

// Resolve binds every action step of the plan. Resolution never fails as a
// whole: a step whose arguments cannot be coerced becomes an error step and
// the overall status is recomputed.
func (r *PlanResolver) Resolve(plan *Plan) *ResolvedPlan {
	steps := plan.Steps()
	outSteps := make([]Step, 0, len(steps))
	bindings := make([]*Binding, 0, len(steps))

	for _, step := range steps {
		if step.Kind() != StepAction {
			outSteps = append(outSteps, step)
			bindings = append(bindings, nil)
			continue
		}

		binding, err := r.bindStep(step)
		if err != nil {
			r.logger.Warn("Step resolution failed", map[string]interface{}{
				"operation": "plan_resolve",
				"action_id": step.ActionID(),
				"error":     err.Error(),
			})
			telemetry.RecordError("conversant.plans.resolution_errors", "coercion")
			outSteps = append(outSteps, NewErrorStep(err.Error()))
			bindings = append(bindings, nil)
			continue
		}
		outSteps = append(outSteps, step)
		bindings = append(bindings, binding)
	}

	return &ResolvedPlan{
		plan:     NewPlan(plan.AssistantMessage(), outSteps),
		bindings: bindings,
	}
}

// bindStep coerces the step's arguments in declared order and pairs them with
// the action's handler.
func (r *PlanResolver) bindStep(step Step) (*Binding, error) {
	def, ok := r.catalog.ByID(step.ActionID())
	if !ok {
		return nil, fmt.Errorf("unknown action: %s", step.ActionID())
	}

	args := step.Args()
	typed := make([]TypedValue, 0, len(def.Params))
	for _, spec := range def.Params {
		raw, ok := args.Get(spec.Name)
		if !ok {
			return nil, fmt.Errorf("invalid value for %s: missing argument", spec.Name)
		}
		value, err := r.coerce(spec, raw)
		if err != nil {
			return nil, err
		}
		typed = append(typed, TypedValue{Param: spec.Name, Type: spec.Type, Value: value})
	}

	return &Binding{
		Definition: def,
		Handler:    def.Handler,
		Args:       typed,
	}, nil
}

// coerce converts a raw parse-time value to the parameter's declared type.
func (r *PlanResolver) coerce(spec ParamSpec, raw interface{}) (interface{}, error) {
	// Complex parameters delegate to the type factory for their schema tag.
	// The factory receives the raw value as-is: object tree, opaque DSL
	// string or embedded expression.
	if spec.NestedSchemaTag != "" {
		value, err := r.factories.Build(spec.NestedSchemaTag, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %v", spec.Name, err)
		}
		return value, nil
	}
	if spec.Type == TypeObject {
		return raw, nil
	}

	if spec.AllowedPattern != "" {
		if err := matchPattern(spec.AllowedPattern, raw); err != nil {
			return nil, fmt.Errorf("invalid value for %s", spec.Name)
		}
	}

	// Sequences coerce elementwise.
	if seq, ok := raw.([]interface{}); ok {
		out := make([]interface{}, len(seq))
		for i, item := range seq {
			v, err := coercePrimitive(spec.Type, item)
			if err != nil {
				return nil, fmt.Errorf("invalid value for %s", spec.Name)
			}
			out[i] = v
		}
		return out, nil
	}

	value, err := coercePrimitive(spec.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s", spec.Name)
	}
	return value, nil
}

func coercePrimitive(t TypeTag, raw interface{}) (interface{}, error) {
	switch t {
	case TypeString, "":
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64, int64, int, bool:
			return fmt.Sprint(v), nil
		}
	case TypeInt:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return i, nil
			}
		}
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, nil
			}
		}
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, nil
			}
		}
	default:
		return nil, fmt.Errorf("unsupported type tag %s", t)
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", raw, t)
}

// matchPattern checks the string rendering of a value against the declared
// pattern. The pattern is anchored so it must match the whole value.
func matchPattern(pattern string, raw interface{}) error {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	rendered := fmt.Sprint(raw)
	if !re.MatchString(rendered) {
		return fmt.Errorf("value %q does not match pattern", rendered)
	}
	return nil
}
