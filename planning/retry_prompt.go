package planning

import (
	"fmt"
	"sort"
	"strings"
)

// retryDirective pins the model's behavior on a retry turn: fill pending
// items from the latest reply, keep everything else pending, and stay inside
// the catalog.
const retryDirective = "Use the latest user reply only to satisfy the pending items listed above. " +
	"If the reply does not provide a pending value, emit it as PENDING again. " +
	"Do not invent actions or parameters that are not in the catalog. " +
	"Output a single structured plan and nothing else."

// BuildRetryAddendum renders the prompt addendum for a retry turn. The caller
// appends it to the next system prompt so the model can reconcile the user's
// latest reply with what is still missing. Returns false when the state has
// no pending parameters and no addendum is needed.
func BuildRetryAddendum(state *ConversationState) (string, bool) {
	pending := state.PendingParams()
	if len(pending) == 0 {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString("Retrying planning.\n")

	if instruction := strings.TrimSpace(state.OriginalInstruction()); instruction != "" {
		sb.WriteString(fmt.Sprintf("Original request: %s\n", instruction))
	}

	provided := state.ProvidedParams()
	if len(provided) > 0 {
		pairs := make([]string, 0, len(provided))
		for _, k := range sortedKeys(provided) {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, provided[k]))
		}
		sb.WriteString("Already provided: " + strings.Join(pairs, ", ") + "\n")
	}

	items := make([]string, 0, len(pending))
	for _, pp := range pending {
		items = append(items, fmt.Sprintf("%s (%s)", pp.Name, pp.Message))
	}
	sb.WriteString("Pending: " + strings.Join(items, "; ") + "\n")

	if latest := strings.TrimSpace(state.LatestUserMessage()); latest != "" {
		sb.WriteString(fmt.Sprintf("Latest user reply: %q\n", latest))
	}

	sb.WriteString(retryDirective)
	return sb.String(), true
}

// sortedKeys gives deterministic ordering for map renderings in prompts.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
