package planning

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EmbeddedExpr carries a sub-DSL expression through parsing untyped. The
// resolver hands it to the type factory registered for the parameter's nested
// schema tag; grammar validation of the sub-language happens there, not here.
type EmbeddedExpr struct {
	Language string
	Source   string
}

// The S-expression fallback plan format, used by legacy model responses:
//
//	(P "<message>" <step>*)            plan
//	(PS <actionId> <item>*)            step
//	(PA <name> <literal>+)             provided parameter
//	(PENDING <name> "<prompt>")        pending parameter
//	(ERROR "<reason>")                 plan-level error step
//	(EMBED <sublanguage> <sub-tree>)   embedded sub-DSL value (inside PA)
//
// Semantics match the JSON format: parameters are normalized to the catalog's
// declared order and missing ones become pending.

type sexprNode struct {
	isList bool
	list   []sexprNode
	atom   string
	isStr  bool
}

func (p *PlanParser) parseSexprPlan(content string) (*Plan, error) {
	root, rest, err := parseSexprNode(content)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return nil, fmt.Errorf("trailing content after plan expression")
	}
	if !root.isList || len(root.list) == 0 || root.list[0].atom != "P" {
		return nil, fmt.Errorf("expected (P ...) plan form")
	}

	items := root.list[1:]
	message := ""
	if len(items) > 0 && !items[0].isList && items[0].isStr {
		message = items[0].atom
		items = items[1:]
	}

	var steps []Step
	for _, item := range items {
		if !item.isList || len(item.list) == 0 {
			return nil, fmt.Errorf("expected step form, got %s", renderSexpr(item))
		}
		switch item.list[0].atom {
		case "PS":
			step, err := p.sexprStep(item)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		case "ERROR":
			if len(item.list) != 2 {
				return nil, fmt.Errorf("ERROR form takes exactly one reason")
			}
			steps = append(steps, NewErrorStep(item.list[1].atom))
		default:
			return nil, fmt.Errorf("unexpected form %s in plan", item.list[0].atom)
		}
	}
	return NewPlan(message, steps), nil
}

// sexprStep converts a (PS ...) form into a step, normalizing parameters
// against the catalog the same way the JSON path does.
func (p *PlanParser) sexprStep(node sexprNode) (Step, error) {
	if len(node.list) < 2 || node.list[1].isList {
		return Step{}, fmt.Errorf("PS form requires an action id")
	}
	actionID := node.list[1].atom

	params := make(map[string]interface{})
	pendingMsg := make(map[string]string)
	for _, item := range node.list[2:] {
		if !item.isList || len(item.list) == 0 {
			return Step{}, fmt.Errorf("expected parameter form in step %s", actionID)
		}
		switch item.list[0].atom {
		case "PA":
			if len(item.list) < 3 {
				return Step{}, fmt.Errorf("PA form requires a name and at least one literal")
			}
			name := item.list[1].atom
			lits := item.list[2:]
			if len(lits) == 1 {
				v, err := sexprLiteral(lits[0])
				if err != nil {
					return Step{}, err
				}
				params[name] = v
			} else {
				seq := make([]interface{}, 0, len(lits))
				for _, lit := range lits {
					v, err := sexprLiteral(lit)
					if err != nil {
						return Step{}, err
					}
					seq = append(seq, v)
				}
				params[name] = seq
			}
		case "PENDING":
			if len(item.list) != 3 {
				return Step{}, fmt.Errorf("PENDING form requires a name and a prompt")
			}
			pendingMsg[item.list[1].atom] = item.list[2].atom
		default:
			return Step{}, fmt.Errorf("unexpected form %s in step %s", item.list[0].atom, actionID)
		}
	}

	return p.buildStepWithPending(actionID, "", params, pendingMsg), nil
}

// buildStepWithPending is buildStep plus explicit pending prompts, which the
// S-expression format can carry via PENDING forms.
func (p *PlanParser) buildStepWithPending(actionID, description string, params map[string]interface{}, pendingMsg map[string]string) Step {
	id := strings.TrimSpace(actionID)
	def, ok := p.catalog.ByID(id)
	if !ok {
		return NewErrorStep(fmt.Sprintf("unknown action: %s", id))
	}

	provided := NewOrderedParams()
	var pending []PendingParam
	for _, spec := range def.Params {
		if value, present := params[spec.Name]; present && value != nil {
			provided.Set(spec.Name, value)
			continue
		}
		msg, explicit := pendingMsg[spec.Name]
		if !explicit {
			msg = pendingMessage(spec)
		}
		pending = append(pending, PendingParam{Name: spec.Name, Message: msg})
	}

	if len(pending) > 0 {
		return NewPendingStep(description, id, provided, pending)
	}
	return NewActionStep(description, id, provided)
}

// sexprLiteral converts a literal node to a Go value. Quoted strings stay
// strings; bare atoms are interpreted as bool, int, float or string in that
// order. EMBED forms become EmbeddedExpr values.
func sexprLiteral(node sexprNode) (interface{}, error) {
	if node.isList {
		if len(node.list) >= 3 && node.list[0].atom == "EMBED" {
			return EmbeddedExpr{
				Language: node.list[1].atom,
				Source:   renderSexpr(node.list[2]),
			}, nil
		}
		return nil, fmt.Errorf("unexpected list literal %s", renderSexpr(node))
	}
	if node.isStr {
		return node.atom, nil
	}
	switch node.atom {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if i, err := strconv.ParseInt(node.atom, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(node.atom, 64); err == nil {
		return f, nil
	}
	return node.atom, nil
}

// parseSexprNode parses one expression from the front of input and returns
// the unconsumed remainder.
func parseSexprNode(input string) (sexprNode, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return sexprNode{}, "", fmt.Errorf("unexpected end of input")
	}

	switch input[0] {
	case '(':
		rest := input[1:]
		node := sexprNode{isList: true}
		for {
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
			if rest == "" {
				return sexprNode{}, "", fmt.Errorf("unterminated list")
			}
			if rest[0] == ')' {
				return node, rest[1:], nil
			}
			child, remainder, err := parseSexprNode(rest)
			if err != nil {
				return sexprNode{}, "", err
			}
			node.list = append(node.list, child)
			rest = remainder
		}
	case ')':
		return sexprNode{}, "", fmt.Errorf("unexpected closing parenthesis")
	case '"':
		s, rest, err := parseSexprString(input)
		if err != nil {
			return sexprNode{}, "", err
		}
		return sexprNode{atom: s, isStr: true}, rest, nil
	default:
		i := 0
		for i < len(input) && !unicode.IsSpace(rune(input[i])) && input[i] != '(' && input[i] != ')' {
			i++
		}
		return sexprNode{atom: input[:i]}, input[i:], nil
	}
}

// parseSexprString consumes a double-quoted string with backslash escapes.
func parseSexprString(input string) (string, string, error) {
	var sb strings.Builder
	escaped := false
	for i := 1; i < len(input); i++ {
		c := input[i]
		if escaped {
			switch c {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(c)
			}
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			return sb.String(), input[i+1:], nil
		default:
			sb.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("unterminated string literal")
}

// renderSexpr writes a node back to source form. Used to carry EMBED
// sub-trees as opaque text.
func renderSexpr(node sexprNode) string {
	if !node.isList {
		if node.isStr {
			return strconv.Quote(node.atom)
		}
		return node.atom
	}
	parts := make([]string, len(node.list))
	for i, child := range node.list {
		parts[i] = renderSexpr(child)
	}
	return "(" + strings.Join(parts, " ") + ")"
}
