package planning

import (
	"encoding/json"
	"testing"
)

func TestOrderedParamsPreservesInsertionOrder(t *testing.T) {
	p := NewOrderedParams()
	p.Set("zebra", 1)
	p.Set("apple", 2)
	p.Set("mango", 3)

	keys := p.Keys()
	want := []string{"zebra", "apple", "mango"}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], k)
		}
	}

	values := p.Values()
	if values[0] != 1 || values[1] != 2 || values[2] != 3 {
		t.Errorf("unexpected values: %v", values)
	}
}

func TestOrderedParamsSetExistingKeepsPosition(t *testing.T) {
	p := NewOrderedParams()
	p.Set("a", 1)
	p.Set("b", 2)
	p.Set("a", 10)

	if p.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", p.Len())
	}
	if p.Keys()[0] != "a" {
		t.Error("re-setting a key moved its position")
	}
	if v, _ := p.Get("a"); v != 10 {
		t.Errorf("expected updated value 10, got %v", v)
	}
}

func TestOrderedParamsCloneIsIndependent(t *testing.T) {
	p := NewOrderedParams()
	p.Set("a", 1)

	clone := p.Clone()
	clone.Set("b", 2)

	if p.Has("b") {
		t.Error("mutating the clone leaked into the original")
	}

	var nilParams *OrderedParams
	if nilParams.Clone() != nil {
		t.Error("cloning nil should return nil")
	}
}

func TestOrderedParamsMarshalJSONKeyOrder(t *testing.T) {
	p := NewOrderedParams()
	p.Set("measurementConcept", "displacement")
	p.Set("bundleId", "A12345")

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"measurementConcept":"displacement","bundleId":"A12345"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
