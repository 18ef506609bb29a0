package planning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// Planner turns a user message plus conversation state into a verified plan.
// The shipped implementation is AIPlanner; tests substitute scripted ones.
type Planner interface {
	Plan(ctx context.Context, userMessage string, state *ConversationState) (*Plan, error)
}

// plannerDirective is the fixed tail of every planning system prompt.
const plannerDirective = `Respond with a single JSON object of the form
{"message": "...", "steps": [{"actionId": "...", "description": "...", "parameters": {...}}]}
and nothing else. Use only the actions listed above. If a required parameter
is missing from the conversation, set it to null so it can be requested from
the user. Use the "message" field for anything you want to tell the user.`

// PlannerOption configures an AIPlanner.
type PlannerOption func(*AIPlanner)

// WithPlannerLogger sets the planner's logger.
func WithPlannerLogger(logger core.Logger) PlannerOption {
	return func(p *AIPlanner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPlannerTelemetry sets the telemetry provider used for spans.
func WithPlannerTelemetry(t core.Telemetry) PlannerOption {
	return func(p *AIPlanner) {
		if t != nil {
			p.telemetry = t
		}
	}
}

// WithPromptHook registers a hook that receives the fully assembled system
// prompt before each model call. Only invoked when the configuration has
// CaptureReadablePrompt set.
func WithPromptHook(hook func(systemPrompt, userMessage string)) PlannerOption {
	return func(p *AIPlanner) { p.promptHook = hook }
}

// WithPersona prepends a host-supplied persona paragraph to the system prompt.
func WithPersona(persona string) PlannerOption {
	return func(p *AIPlanner) { p.persona = persona }
}

// AIPlanner assembles the planning prompt from the action catalog and the
// conversation state, makes one model call per turn, and parses and verifies
// the response. Parse and verification failures surface as error plans, not
// as returned errors; the returned error is reserved for the model call
// itself failing.
type AIPlanner struct {
	client     core.AIClient
	catalog    *ActionCatalog
	parser     *PlanParser
	config     *Config
	persona    string
	logger     core.Logger
	telemetry  core.Telemetry
	promptHook func(systemPrompt, userMessage string)
}

// NewAIPlanner creates a planner over the given model client and catalog.
// A nil config gets defaults.
func NewAIPlanner(client core.AIClient, catalog *ActionCatalog, config *Config, opts ...PlannerOption) *AIPlanner {
	if config == nil {
		config = DefaultConfig()
	}
	p := &AIPlanner{
		client:    client,
		catalog:   catalog,
		config:    config,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.parser = NewPlanParser(catalog)
	p.parser.SetLogger(p.logger)
	return p
}

// Plan makes one model call and returns the parsed, verified plan.
func (p *AIPlanner) Plan(ctx context.Context, userMessage string, state *ConversationState) (*Plan, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "planning.plan")
	defer span.End()

	systemPrompt := p.buildSystemPrompt(state)
	if p.config.CaptureReadablePrompt && p.promptHook != nil {
		p.promptHook(systemPrompt, userMessage)
	}

	start := time.Now()
	response, err := p.client.GenerateResponse(ctx, userMessage, &core.AIOptions{
		Model:        p.config.Model,
		Temperature:  p.config.Temperature,
		MaxTokens:    p.config.MaxTokens,
		SystemPrompt: systemPrompt,
	})
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		telemetry.RecordError("conversant.planner.calls", "model_call")
		p.logger.Error("Model call failed", map[string]interface{}{
			"operation":   "plan",
			"error":       err.Error(),
			"duration_ms": elapsed.Milliseconds(),
		})
		return nil, fmt.Errorf("planner: model call: %w", err)
	}

	telemetry.RecordSuccess("conversant.planner.calls")
	telemetry.Histogram("conversant.planner.model_duration_ms", float64(elapsed.Milliseconds()))
	p.logger.Debug("Model call succeeded", map[string]interface{}{
		"operation":      "plan",
		"model":          response.Model,
		"duration_ms":    elapsed.Milliseconds(),
		"response_chars": len(response.Content),
	})

	plan := p.parser.Parse(response.Content)
	return VerifyPlan(plan, p.catalog), nil
}

// buildSystemPrompt assembles persona, catalog description, retry addendum,
// and the planning directive, in that order.
func (p *AIPlanner) buildSystemPrompt(state *ConversationState) string {
	var sb strings.Builder

	if p.persona != "" {
		sb.WriteString(p.persona)
		sb.WriteString("\n\n")
	}

	sb.WriteString("You plan actions for the user. Available actions:\n\n")
	sb.WriteString(RenderCatalog(p.catalog))
	sb.WriteString("\n")

	if state != nil {
		if addendum, ok := BuildRetryAddendum(state); ok {
			sb.WriteString("\n")
			sb.WriteString(addendum)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(plannerDirective)
	return sb.String()
}

// RenderCatalog formats the catalog for inclusion in a system prompt: one
// block per action with its description and ordered parameter list.
func RenderCatalog(catalog *ActionCatalog) string {
	var sb strings.Builder
	for _, def := range catalog.All() {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", def.ID, def.Description))
		for _, param := range def.Params {
			sb.WriteString(fmt.Sprintf("    %s (%s)", param.Name, param.Type))
			if param.Description != "" {
				sb.WriteString(": " + param.Description)
			}
			if param.AllowedPattern != "" {
				sb.WriteString(fmt.Sprintf(" [must match %s]", param.AllowedPattern))
			}
			if len(param.Examples) > 0 {
				sb.WriteString(" e.g. " + strings.Join(param.Examples, ", "))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
