package planning

import (
	"strings"
	"testing"
)

func TestRetryAddendumNoneWithoutPending(t *testing.T) {
	if _, ok := BuildRetryAddendum(InitialState("export a chart")); ok {
		t.Error("expected no addendum when nothing is pending")
	}
	if _, ok := BuildRetryAddendum(EmptyState()); ok {
		t.Error("expected no addendum for an empty state")
	}
}

func TestRetryAddendumContent(t *testing.T) {
	state := NextState(
		InitialState("export a control chart to excel for displacement values"),
		[]PendingParam{{Name: "bundleId", Message: "Provide bundleId"}},
		map[string]interface{}{"measurementConcept": "displacement"},
		"the bundle id is A12345",
		10,
	)

	addendum, ok := BuildRetryAddendum(state)
	if !ok {
		t.Fatal("expected an addendum")
	}

	if !strings.HasPrefix(addendum, "Retrying planning.\n") {
		t.Errorf("missing header: %q", addendum)
	}
	for _, want := range []string{
		"Original request: export a control chart to excel for displacement values",
		"Already provided: measurementConcept=displacement",
		"Pending: bundleId (Provide bundleId)",
		`Latest user reply: "the bundle id is A12345"`,
	} {
		if !strings.Contains(addendum, want) {
			t.Errorf("addendum missing %q:\n%s", want, addendum)
		}
	}
	if !strings.Contains(addendum, "Do not invent actions or parameters") {
		t.Error("addendum missing the fixed directive")
	}
}

func TestRetryAddendumSectionOrder(t *testing.T) {
	state := NextState(
		InitialState("export"),
		[]PendingParam{{Name: "b", Message: "Provide b"}},
		map[string]interface{}{"a": 1},
		"reply",
		10,
	)

	addendum, _ := BuildRetryAddendum(state)
	idxHeader := strings.Index(addendum, "Retrying planning.")
	idxOriginal := strings.Index(addendum, "Original request:")
	idxProvided := strings.Index(addendum, "Already provided:")
	idxPending := strings.Index(addendum, "Pending:")
	idxLatest := strings.Index(addendum, "Latest user reply:")

	if !(idxHeader < idxOriginal && idxOriginal < idxProvided && idxProvided < idxPending && idxPending < idxLatest) {
		t.Errorf("sections out of order:\n%s", addendum)
	}
}

func TestRetryAddendumMultiplePending(t *testing.T) {
	state := NextState(
		InitialState("export"),
		[]PendingParam{
			{Name: "bundleId", Message: "Provide bundleId"},
			{Name: "format", Message: "Which format?"},
		},
		nil,
		"export",
		10,
	)

	addendum, _ := BuildRetryAddendum(state)
	if !strings.Contains(addendum, "bundleId (Provide bundleId); format (Which format?)") {
		t.Errorf("pending items not semicolon-joined:\n%s", addendum)
	}
	if strings.Contains(addendum, "Already provided:") {
		t.Error("provided line should be omitted when nothing is provided")
	}
}
