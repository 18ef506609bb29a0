package planning

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// maxExcerptLen caps the raw-response excerpt embedded in parse failure
// reasons, so one bad model turn cannot bloat state or logs.
const maxExcerptLen = 800

// PlanParser turns a raw model response into a Plan. The primary wire format
// is JSON; responses that are not JSON objects fall back to the legacy
// S-expression format. Unrecoverable failures never escape to the turn
// boundary: the parser returns a plan holding a single error step so the
// conversation can continue.
type PlanParser struct {
	catalog *ActionCatalog
	logger  core.Logger
}

// NewPlanParser creates a parser over the given catalog.
func NewPlanParser(catalog *ActionCatalog) *PlanParser {
	return &PlanParser{
		catalog: catalog,
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for parse diagnostics.
func (p *PlanParser) SetLogger(logger core.Logger) {
	if logger == nil {
		p.logger = &core.NoOpLogger{}
	} else {
		p.logger = logger
	}
}

// Parse converts a model response into a plan. It never returns an error;
// a response that cannot be parsed yields a plan with one error step whose
// reason carries the diagnostic and a truncated excerpt of the response.
func (p *PlanParser) Parse(raw string) *Plan {
	content := extractPayload(raw)

	var (
		plan *Plan
		err  error
	)
	format := "json"
	if strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}") {
		plan, err = p.parseJSONPlan(content)
	} else {
		format = "sexpr"
		plan, err = p.parseSexprPlan(content)
	}
	if err != nil {
		p.logger.Warn("Plan parse failed", map[string]interface{}{
			"operation":       "plan_parse",
			"format":          format,
			"error":           err.Error(),
			"response_length": len(raw),
		})
		telemetry.RecordError("conversant.plans.parse_errors", format)
		return p.errorPlan(err, raw)
	}

	telemetry.Counter("conversant.plans.parsed", "format", format)
	return plan
}

// extractPayload trims the response and unwraps a fenced code block when the
// model returned one.
func extractPayload(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	// Drop the opening fence line (which may carry a language tag) and the
	// closing fence.
	if idx := strings.Index(content, "\n"); idx >= 0 {
		content = content[idx+1:]
	} else {
		content = strings.TrimPrefix(content, "```")
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

// jsonPlan is the primary wire shape the model is instructed to produce.
type jsonPlan struct {
	Message string     `json:"message"`
	Steps   []jsonStep `json:"steps"`
}

type jsonStep struct {
	ActionID    string                 `json:"actionId"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

func (p *PlanParser) parseJSONPlan(content string) (*Plan, error) {
	var wire jsonPlan
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	steps := make([]Step, 0, len(wire.Steps))
	for _, ws := range wire.Steps {
		steps = append(steps, p.buildStep(ws.ActionID, ws.Description, ws.Parameters))
	}
	return NewPlan(wire.Message, steps), nil
}

// buildStep normalizes one step's raw parameters against the catalog's
// declared order and classifies the step as actionable or pending. Unknown
// action ids become error steps; extra parameter keys not declared by the
// action are ignored.
func (p *PlanParser) buildStep(actionID, description string, params map[string]interface{}) Step {
	id := strings.TrimSpace(actionID)
	def, ok := p.catalog.ByID(id)
	if !ok {
		return NewErrorStep(fmt.Sprintf("unknown action: %s", id))
	}

	provided := NewOrderedParams()
	var pending []PendingParam
	for _, spec := range def.Params {
		value, present := params[spec.Name]
		if !present || value == nil {
			pending = append(pending, PendingParam{
				Name:    spec.Name,
				Message: pendingMessage(spec),
			})
			continue
		}
		// String values carrying an embedded DSL (they start with "(") stay
		// opaque here; the resolver's type factory constructs the typed value.
		provided.Set(spec.Name, value)
	}

	if len(pending) > 0 {
		return NewPendingStep(description, id, provided, pending)
	}
	return NewActionStep(description, id, provided)
}

// pendingMessage picks the user-facing prompt for a missing parameter: the
// declared description when there is one, otherwise "Provide <name>".
func pendingMessage(spec ParamSpec) string {
	if spec.Description != "" {
		return spec.Description
	}
	return fmt.Sprintf("Provide %s", spec.Name)
}

// errorPlan wraps an unrecoverable parse failure into a single-error-step
// plan carrying the diagnostic and a bounded excerpt of the raw response.
func (p *PlanParser) errorPlan(cause error, raw string) *Plan {
	excerpt := strings.TrimSpace(raw)
	if len(excerpt) > maxExcerptLen {
		// Cut on a rune boundary so the reason stays valid UTF-8.
		cut := maxExcerptLen
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	reason := fmt.Sprintf("Failed to parse plan: %v: %s", cause, excerpt)
	return NewPlan(excerpt, []Step{NewErrorStep(reason)})
}
