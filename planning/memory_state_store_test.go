package planning

import (
	"context"
	"testing"
)

func TestMemoryStateStoreSaveLoad(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	loaded, err := store.Load(ctx, "unknown")
	if err != nil || loaded != nil {
		t.Errorf("unknown session: state=%v err=%v", loaded, err)
	}

	state := InitialState("export a chart")
	if err := store.Save(ctx, "s1", state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err = store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.OriginalInstruction() != "export a chart" {
		t.Errorf("loaded wrong state: %q", loaded.OriginalInstruction())
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 session, got %d", store.Len())
	}
}

func TestMemoryStateStoreSaveObservableByNextLoad(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	first := InitialState("first")
	second := first.WithLatestMessage("second")

	_ = store.Save(ctx, "s1", first)
	_ = store.Save(ctx, "s1", second)

	loaded, _ := store.Load(ctx, "s1")
	if loaded.LatestUserMessage() != "second" {
		t.Errorf("latest save not observable: %q", loaded.LatestUserMessage())
	}
}

func TestMemoryStateStoreDelete(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	_ = store.Save(ctx, "s1", InitialState("x"))
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if loaded, _ := store.Load(ctx, "s1"); loaded != nil {
		t.Error("session still present after delete")
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Errorf("deleting an unknown session should be a no-op: %v", err)
	}
}
