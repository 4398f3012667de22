package treestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// These tests are integration tests and require a running MongoDB
// instance. Set MONGODB_URI in the environment before running them.

func setupMongo(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	st, err := NewMongoStore(ctx, uri, "appchat_test")
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}
	_ = st.coll.Drop(ctx)

	t.Cleanup(func() {
		_ = st.coll.Drop(context.Background())
		_ = st.Close(context.Background())
	})
	return st
}

func TestMongoStoreRoundTrip(t *testing.T) {
	st := setupMongo(t)
	ctx := context.Background()

	node := map[string]any{
		"first_name": "Alice",
		"last_name":  "Adams",
		"conversations": []any{
			map[string]any{
				"id":             "conversation_m1",
				"latest_message": map[string]any{"is_read": false},
			},
		},
	}
	if err := st.SetValue(ctx, "a-x-com", node); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	got, err := st.GetOnce(ctx, "a-x-com/conversations/0/id")
	if err != nil || got != "conversation_m1" {
		t.Fatalf("deep GetOnce = %v, %v", got, err)
	}

	// Dot-notation deep write at a list index.
	if err := st.SetValue(ctx, "a-x-com/conversations/0/latest_message/is_read", true); err != nil {
		t.Fatalf("narrow SetValue failed: %v", err)
	}
	got, err = st.GetOnce(ctx, "a-x-com/conversations/0/latest_message/is_read")
	if err != nil || got != true {
		t.Fatalf("flag read = %v, %v", got, err)
	}

	if _, err := st.GetOnce(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMongoStoreUpdateChildren(t *testing.T) {
	st := setupMongo(t)
	ctx := context.Background()

	err := st.UpdateChildren(ctx, map[string]any{
		"a-x-com/conversations": []any{map[string]any{"id": "c1"}},
		"b-x-com/conversations": []any{map[string]any{"id": "c1"}},
	})
	if err != nil {
		t.Fatalf("UpdateChildren failed: %v", err)
	}

	for _, path := range []string{"a-x-com/conversations/0/id", "b-x-com/conversations/0/id"} {
		got, err := st.GetOnce(ctx, path)
		if err != nil || got != "c1" {
			t.Fatalf("GetOnce(%q) = %v, %v", path, got, err)
		}
	}
}

func TestMongoStoreObserve(t *testing.T) {
	st := setupMongo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := st.Observe(ctx, "a-x-com/conversations")
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	// Initial snapshot: nothing there yet.
	select {
	case snap := <-ch:
		if !errors.Is(snap.Err, ErrNotFound) {
			t.Fatalf("expected initial ErrNotFound, got %+v", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no initial snapshot")
	}

	if err := st.SetValue(ctx, "a-x-com/conversations", []any{map[string]any{"id": "c1"}}); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Err != nil {
				continue
			}
			if list, ok := snap.Value.([]any); ok && len(list) == 1 {
				return
			}
		case <-deadline:
			t.Fatalf("observer never saw the write")
		}
	}
}
