package planning

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// StepOutcome records what happened to one step during execution.
type StepOutcome struct {
	ActionID    string        `json:"action_id"`
	Description string        `json:"description,omitempty"`
	Executed    bool          `json:"executed"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Output      interface{}   `json:"output,omitempty"`
	StartTime   time.Time     `json:"start_time,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ExecutionResult is the outcome of executing a resolved plan. When the plan
// aborts at a failing step, Context still carries the writes of the steps
// that succeeded, so the caller can inspect or compensate.
type ExecutionResult struct {
	Success           bool           `json:"success"`
	Executed          bool           `json:"executed"`
	NotExecutedReason string         `json:"not_executed_reason,omitempty"`
	CorrelationID     string         `json:"correlation_id"`
	Steps             []StepOutcome  `json:"steps"`
	Context           *ActionContext `json:"-"`
	TotalDuration     time.Duration  `json:"total_duration"`
}

// ExecutorOption configures a PlanExecutor.
type ExecutorOption func(*PlanExecutor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger core.Logger) ExecutorOption {
	return func(e *PlanExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorTelemetry sets the telemetry provider used for spans.
func WithExecutorTelemetry(t core.Telemetry) ExecutorOption {
	return func(e *PlanExecutor) {
		if t != nil {
			e.telemetry = t
		}
	}
}

// WithEventListeners registers listeners that receive every lifecycle event.
func WithEventListeners(listeners ...EventListener) ExecutorOption {
	return func(e *PlanExecutor) {
		e.listeners = append(e.listeners, listeners...)
	}
}

// WithPendingHook sets a hook invoked when a pending plan is handed to
// Execute instead of a ready one.
func WithPendingHook(hook func(*ResolvedPlan)) ExecutorOption {
	return func(e *PlanExecutor) { e.onPending = hook }
}

// WithErrorHook sets a hook invoked when an error plan is handed to Execute.
func WithErrorHook(hook func(*ResolvedPlan)) ExecutorOption {
	return func(e *PlanExecutor) { e.onError = hook }
}

// PlanExecutor invokes the bound handlers of a resolved plan strictly in
// declaration order, threading the action context through the steps. There is
// no intra-plan parallelism: context writes of step i are visible to every
// step j > i.
type PlanExecutor struct {
	logger    core.Logger
	telemetry core.Telemetry
	listeners []EventListener
	onPending func(*ResolvedPlan)
	onError   func(*ResolvedPlan)
}

// NewPlanExecutor creates an executor.
func NewPlanExecutor(opts ...ExecutorOption) *PlanExecutor {
	e := &PlanExecutor{
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the plan. Pending and error plans are not executed; the result
// says why and the matching hook fires. The returned error is reserved for
// invariant violations (a ready plan with a missing binding), not for action
// failures, which are reported per step.
func (e *PlanExecutor) Execute(ctx context.Context, plan *ResolvedPlan, actionCtx *ActionContext) (*ExecutionResult, error) {
	if actionCtx == nil {
		actionCtx = NewActionContext()
	}

	correlationID := uuid.NewString()
	emitter := Of(correlationID, e.listeners...)
	emitter.SetLogger(e.logger)

	result := &ExecutionResult{
		CorrelationID: correlationID,
		Context:       actionCtx,
	}

	switch plan.Status() {
	case StatusPending:
		names := pendingNames(plan.PendingParams())
		result.NotExecutedReason = "awaiting: " + strings.Join(names, ", ")
		e.logger.Info("Plan not executed, parameters pending", map[string]interface{}{
			"operation":      "execute_plan",
			"correlation_id": correlationID,
			"pending":        names,
		})
		if e.onPending != nil {
			e.onPending(plan)
		}
		return result, nil
	case StatusError:
		reason, _ := plan.FirstErrorReason()
		result.NotExecutedReason = reason
		e.logger.Info("Plan not executed, plan in error", map[string]interface{}{
			"operation":      "execute_plan",
			"correlation_id": correlationID,
			"reason":         reason,
		})
		if e.onError != nil {
			e.onError(plan)
		}
		return result, nil
	}

	ctx, span := e.telemetry.StartSpan(ctx, "planning.execute_plan")
	defer span.End()
	span.SetAttribute("correlation_id", correlationID)

	steps := plan.Steps()
	start := time.Now()

	e.logger.Debug("Starting plan execution", map[string]interface{}{
		"operation":      "execute_plan",
		"correlation_id": correlationID,
		"step_count":     len(steps),
	})

	result.Executed = true
	result.Success = true

	aborted := false
	abortReason := ""
	for i, step := range steps {
		if aborted {
			result.Steps = append(result.Steps, StepOutcome{
				ActionID:    step.ActionID(),
				Description: step.Description(),
				Executed:    false,
				Error:       abortReason,
			})
			continue
		}

		select {
		case <-ctx.Done():
			aborted = true
			abortReason = "not executed: " + ctx.Err().Error()
			result.Success = false
			result.Steps = append(result.Steps, StepOutcome{
				ActionID:    step.ActionID(),
				Description: step.Description(),
				Executed:    false,
				Error:       abortReason,
			})
			continue
		default:
		}

		binding := plan.Binding(i)
		if binding == nil {
			return nil, core.NewEngineError("executor.Execute", "executor",
				fmt.Errorf("ready plan step %d (%s) has no binding", i, step.ActionID()))
		}

		outcome := e.executeStep(ctx, emitter, step, binding, actionCtx)
		result.Steps = append(result.Steps, outcome)
		if !outcome.Success {
			result.Success = false
			aborted = true
			abortReason = "not executed: previous step failed"
		}
	}

	result.TotalDuration = time.Since(start)

	telemetry.Histogram("conversant.plans.execute_duration_ms",
		float64(result.TotalDuration.Milliseconds()),
		"success", fmt.Sprintf("%t", result.Success),
	)
	e.logger.Info("Plan execution finished", map[string]interface{}{
		"operation":      "execute_plan_complete",
		"correlation_id": correlationID,
		"success":        result.Success,
		"step_count":     len(steps),
		"duration_ms":    result.TotalDuration.Milliseconds(),
	})

	return result, nil
}

// executeStep runs a single bound step with panic recovery, so one broken
// handler fails its step instead of the process.
func (e *PlanExecutor) executeStep(ctx context.Context, emitter *EventEmitter, step Step, binding *Binding, actionCtx *ActionContext) (outcome StepOutcome) {
	def := binding.Definition
	attrs := map[string]string{
		"action_id":  def.ID,
		"mutability": string(def.Mutability),
	}

	outcome = StepOutcome{
		ActionID:    def.ID,
		Description: step.Description(),
		Executed:    true,
	}

	emitter.Requested(ctx, KindAction, def.ID, attrs)

	outcome.StartTime = time.Now()
	emitter.Started(ctx, KindAction, def.ID, attrs)

	defer func() {
		if r := recover(); r != nil {
			outcome.Success = false
			outcome.Error = fmt.Sprintf("action %s panicked: %v", def.ID, r)
			outcome.Duration = time.Since(outcome.StartTime)
			e.logger.Error("Action handler panicked", map[string]interface{}{
				"operation":      "step_execution",
				"action_id":      def.ID,
				"correlation_id": emitter.CorrelationID(),
				"panic":          fmt.Sprint(r),
				"stack":          string(debug.Stack()),
			})
			emitter.Failed(ctx, KindAction, def.ID, outcome.Duration, attrs)
		}
	}()

	value, err := binding.Handler(ctx, binding.RawArgs(), actionCtx)
	outcome.Duration = time.Since(outcome.StartTime)

	if err != nil {
		outcome.Success = false
		outcome.Error = err.Error()
		e.logger.Error("Action failed", map[string]interface{}{
			"operation":      "step_execution",
			"action_id":      def.ID,
			"correlation_id": emitter.CorrelationID(),
			"error":          err.Error(),
			"duration_ms":    outcome.Duration.Milliseconds(),
		})
		emitter.Failed(ctx, KindAction, def.ID, outcome.Duration, attrs)
		return outcome
	}

	outcome.Success = true
	outcome.Output = value
	if def.ContextKey != "" {
		actionCtx.Set(ContextKey{Name: def.ContextKey, Type: typeTagOf(value)}, value)
	}
	// Additional context keys are written by the handler itself during the
	// invocation; they persist in the shared context without further work.

	e.logger.Debug("Action succeeded", map[string]interface{}{
		"operation":      "step_execution",
		"action_id":      def.ID,
		"correlation_id": emitter.CorrelationID(),
		"duration_ms":    outcome.Duration.Milliseconds(),
	})
	emitter.Succeeded(ctx, KindAction, def.ID, outcome.Duration, attrs)
	return outcome
}

func pendingNames(pending []PendingParam) []string {
	names := make([]string, len(pending))
	for i, pp := range pending {
		names[i] = pp.Name
	}
	return names
}

// typeTagOf classifies a runtime value for context-key typing.
func typeTagOf(value interface{}) TypeTag {
	switch value.(type) {
	case string:
		return TypeString
	case int, int64:
		return TypeInt
	case float64, float32:
		return TypeFloat
	case bool:
		return TypeBool
	default:
		return TypeObject
	}
}
