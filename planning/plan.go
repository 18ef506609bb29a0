// Package planning implements a conversation-driven action planner and
// executor. Free-form user messages are turned into structured plans over a
// registered action catalog, verified and resolved against that catalog, and
// either executed or surfaced as pending when parameters are still missing.
// Conversation state carries pending and provided parameters across turns so a
// later reply can complete an earlier incomplete plan.
package planning

import "strings"

// PlanStatus is the derived status of a plan.
type PlanStatus string

const (
	// StatusReady means every step is an action step and the plan can execute.
	StatusReady PlanStatus = "READY"
	// StatusPending means at least one step awaits parameters.
	StatusPending PlanStatus = "PENDING"
	// StatusError means the plan has an error step (and no pending step) or no steps.
	StatusError PlanStatus = "ERROR"
)

// StepKind tags the step variants.
type StepKind string

const (
	// StepAction is a fully specified step ready to execute.
	StepAction StepKind = "action"
	// StepPending is a step still missing at least one required parameter.
	StepPending StepKind = "pending"
	// StepError records a planner failure or refusal.
	StepError StepKind = "error"
)

// PendingParam names a parameter the planner could not fill, with the prompt
// message to present to the user.
type PendingParam struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Step is a tagged variant: exactly one of the three kinds. Fields not
// belonging to the kind are zero. Construct steps with NewActionStep,
// NewPendingStep or NewErrorStep; inputs are deep-copied.
type Step struct {
	kind        StepKind
	description string
	actionID    string
	args        *OrderedParams // action steps: all declared params, declared order
	provided    *OrderedParams // pending steps: the non-nil subset
	pending     []PendingParam // pending steps: the missing params
	reason      string         // error steps
}

// NewActionStep creates a ready step with all required parameters bound.
func NewActionStep(description, actionID string, args *OrderedParams) Step {
	return Step{
		kind:        StepAction,
		description: description,
		actionID:    actionID,
		args:        args.Clone(),
	}
}

// NewPendingStep creates a step that still awaits at least one parameter.
func NewPendingStep(description, actionID string, provided *OrderedParams, pending []PendingParam) Step {
	pp := make([]PendingParam, len(pending))
	copy(pp, pending)
	return Step{
		kind:        StepPending,
		description: description,
		actionID:    actionID,
		provided:    provided.Clone(),
		pending:     pp,
	}
}

// NewErrorStep creates a step recording a planner failure.
func NewErrorStep(reason string) Step {
	return Step{
		kind:   StepError,
		reason: reason,
	}
}

// Kind returns the step variant tag.
func (s Step) Kind() StepKind { return s.kind }

// Description returns the planner-supplied step description.
func (s Step) Description() string { return s.description }

// ActionID returns the target action identifier (action and pending steps).
func (s Step) ActionID() string { return s.actionID }

// Args returns the bound arguments of an action step in declared order.
func (s Step) Args() *OrderedParams { return s.args.Clone() }

// Provided returns the provided subset of a pending step's parameters.
func (s Step) Provided() *OrderedParams { return s.provided.Clone() }

// Pending returns the missing parameters of a pending step.
func (s Step) Pending() []PendingParam {
	out := make([]PendingParam, len(s.pending))
	copy(out, s.pending)
	return out
}

// Reason returns the failure reason of an error step.
func (s Step) Reason() string { return s.reason }

// Plan is an immutable pairing of an assistant message with ordered steps.
type Plan struct {
	assistantMessage string
	steps            []Step
}

// NewPlan constructs a plan. The steps slice is copied.
func NewPlan(assistantMessage string, steps []Step) *Plan {
	ss := make([]Step, len(steps))
	copy(ss, steps)
	return &Plan{
		assistantMessage: assistantMessage,
		steps:            ss,
	}
}

// AssistantMessage returns the message accompanying the plan.
func (p *Plan) AssistantMessage() string { return p.assistantMessage }

// Steps returns a copy of the plan's steps in order.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// StepCount returns the number of steps.
func (p *Plan) StepCount() int { return len(p.steps) }

// Status derives the plan status from the steps:
// no steps is an error, any pending step makes the plan pending, any error
// step (without pending) makes it an error, otherwise the plan is ready.
func (p *Plan) Status() PlanStatus {
	if len(p.steps) == 0 {
		return StatusError
	}
	hasError := false
	for _, s := range p.steps {
		switch s.kind {
		case StepPending:
			return StatusPending
		case StepError:
			hasError = true
		}
	}
	if hasError {
		return StatusError
	}
	return StatusReady
}

// PendingParams returns the concatenation, in step order, of every pending
// step's missing parameters. Names are not de-duplicated across steps.
func (p *Plan) PendingParams() []PendingParam {
	var out []PendingParam
	for _, s := range p.steps {
		if s.kind == StepPending {
			out = append(out, s.pending...)
		}
	}
	return out
}

// FirstErrorReason returns the reason of the first error step, if any.
func (p *Plan) FirstErrorReason() (string, bool) {
	for _, s := range p.steps {
		if s.kind == StepError {
			return s.reason, true
		}
	}
	return "", false
}

// ActionIDs returns the distinct action ids referenced by the plan, in order.
func (p *Plan) ActionIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range p.steps {
		id := strings.TrimSpace(s.actionID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
