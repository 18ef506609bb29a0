package planning

import (
	"context"
	"testing"
	"time"
)

func TestEmitterStampsEvents(t *testing.T) {
	var got []Event
	emitter := Of("corr-1", func(e Event) { got = append(got, e) })

	ctx := context.Background()
	emitter.Requested(ctx, KindAction, "loadBundle", map[string]string{"mutability": "READ_ONLY"})
	emitter.Started(ctx, KindAction, "loadBundle", nil)
	emitter.Succeeded(ctx, KindAction, "loadBundle", 250*time.Millisecond, nil)

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, e := range got {
		if e.CorrelationID != "corr-1" {
			t.Errorf("event %d: correlation id = %q", i, e.CorrelationID)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("event %d: missing timestamp", i)
		}
		if e.Name != "loadBundle" || e.Kind != KindAction {
			t.Errorf("event %d: name=%s kind=%s", i, e.Name, e.Kind)
		}
	}
	if got[0].Attributes["mutability"] != "READ_ONLY" {
		t.Error("attributes not carried")
	}
	if got[2].DurationMS != 250 {
		t.Errorf("terminal event duration = %d", got[2].DurationMS)
	}
}

func TestEmitterGeneratesCorrelationID(t *testing.T) {
	a := Of("")
	b := Of("")
	if a.CorrelationID() == "" {
		t.Error("expected a generated correlation id")
	}
	if a.CorrelationID() == b.CorrelationID() {
		t.Error("generated correlation ids must differ")
	}
}

func TestEmitterFailedEvent(t *testing.T) {
	var got []Event
	emitter := Of("corr-2", func(e Event) { got = append(got, e) })

	emitter.Failed(context.Background(), KindTool, "fetch", 10*time.Millisecond, nil)

	if len(got) != 1 || got[0].Type != EventFailed || got[0].Kind != KindTool {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestEmitterMultipleListeners(t *testing.T) {
	count := 0
	emitter := Of("corr-3", func(Event) { count++ })
	emitter.AddListener(func(Event) { count++ })
	emitter.AddListener(nil)

	emitter.Requested(context.Background(), KindAction, "x", nil)
	if count != 2 {
		t.Errorf("expected both listeners invoked, got %d", count)
	}
}
