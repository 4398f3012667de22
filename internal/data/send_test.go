package data

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/trungdev/appchat-data/internal/treestore"
)

// refusingStore wraps a working store but refuses multi-path updates
// that touch refusePath, simulating a write failure partway through a
// fan-out.
type refusingStore struct {
	treestore.Store
	refusePath string
}

func (r *refusingStore) UpdateChildren(ctx context.Context, updates map[string]any) error {
	for path := range updates {
		if path == r.refusePath {
			return errors.New("store refused write")
		}
	}
	return r.Store.UpdateChildren(ctx, updates)
}

func TestSendMessageUpdatesBothPreviews(t *testing.T) {
	ctx := context.Background()
	st, users, convs, _ := newStores(t)
	registerPair(t, ctx, users)

	id, err := convs.CreateConversation(ctx, aliceSess, "b@x.com", "Bob Brown", firstMessage())
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	reply := Message{ID: "m2", Content: TextContent("yo"), Date: "25/12/2023", Time: "10:31"}
	if err := convs.SendMessage(ctx, bobSess, id, "a@x.com", "Alice Adams", reply); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	// The shared log grew.
	v, err := st.GetOnce(ctx, id+"/messages")
	if err != nil || len(v.([]any)) != 2 {
		t.Fatalf("log = %v, %v; want 2 entries", v, err)
	}

	// Both previews now show the reply, sent by bob, unread on each
	// side.
	for _, key := range []string{"a-x-com", "b-x-com"} {
		v, err := st.GetOnce(ctx, key+"/conversations/0/latest_message")
		if err != nil {
			t.Fatalf("preview read for %s failed: %v", key, err)
		}
		want := map[string]any{
			"date": "25/12/2023", "time": "10:31", "sender": "b-x-com",
			"message": "yo", "is_read": false, "type": "text",
		}
		if diff := cmp.Diff(want, v); diff != "" {
			t.Fatalf("preview for %s mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestSendMessageResetsReadFlag(t *testing.T) {
	ctx := context.Background()
	st, users, convs, _ := newStores(t)
	registerPair(t, ctx, users)

	id, err := convs.CreateConversation(ctx, aliceSess, "b@x.com", "Bob Brown", firstMessage())
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := convs.MarkAsRead(ctx, aliceSess, id); err != nil {
		t.Fatalf("MarkAsRead failed: %v", err)
	}

	reply := Message{ID: "m2", Content: TextContent("yo")}
	if err := convs.SendMessage(ctx, bobSess, id, "a@x.com", "Alice Adams", reply); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	flag, err := st.GetOnce(ctx, "a-x-com/conversations/0/latest_message/is_read")
	if err != nil || flag != false {
		t.Fatalf("new message must come back unread: %v, %v", flag, err)
	}
}

func TestSendMessageSynthesizesDeletedCopy(t *testing.T) {
	ctx := context.Background()
	st, users, convs, _ := newStores(t)
	registerPair(t, ctx, users)

	id, err := convs.CreateConversation(ctx, aliceSess, "b@x.com", "Bob Brown", firstMessage())
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Alice deletes her copy; Bob keeps sending.
	if err := convs.DeleteConversation(ctx, aliceSess, id); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	reply := Message{ID: "m2", Content: TextContent("still here?")}
	if err := convs.SendMessage(ctx, bobSess, id, "a@x.com", "Alice Adams", reply); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	// Alice's copy is synthesized afresh, pointing back at Bob.
	v, err := st.GetOnce(ctx, "a-x-com/conversations")
	if err != nil {
		t.Fatalf("caller list read failed: %v", err)
	}
	list := v.([]any)
	if len(list) != 1 {
		t.Fatalf("expected resurrected summary, got %#v", list)
	}
	entry := list[0].(map[string]any)
	if entry["id"] != id || entry["other_user_email"] != "b-x-com" || entry["name"] != "Bob Brown" {
		t.Fatalf("synthesized summary wrong: %#v", entry)
	}
}

func TestSendMessagePartialFailure(t *testing.T) {
	ctx := context.Background()
	backend := treestore.NewMemoryStore()
	users := NewUsersStore(backend)
	registerPair(t, ctx, users)

	// Build a layer whose writes to bob's index fail.
	flaky := &refusingStore{Store: backend, refusePath: "b-x-com/conversations"}
	msgs := NewMessagesStore(flaky)
	convs := NewConversationsStore(flaky, msgs)

	// Seed the conversation directly so creation doesn't trip over the
	// refused path.
	seedConvs := NewConversationsStore(backend, NewMessagesStore(backend))
	id, err := seedConvs.CreateConversation(ctx, aliceSess, "b@x.com", "Bob Brown", firstMessage())
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	reply := Message{ID: "m2", Content: TextContent("yo")}
	err = convs.SendMessage(ctx, aliceSess, id, "b@x.com", "Bob Brown", reply)

	var partial *PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	want := []string{"message log", "own summary"}
	if diff := cmp.Diff(want, partial.Completed); diff != "" {
		t.Fatalf("completed steps mismatch (-want +got):\n%s", diff)
	}

	// The completed copies really were written and the refused one was
	// not: the log grew, alice's preview moved on, bob's did not.
	v, err := backend.GetOnce(ctx, id+"/messages")
	if err != nil || len(v.([]any)) != 2 {
		t.Fatalf("log = %v, %v; want 2 entries", v, err)
	}
	own, err := backend.GetOnce(ctx, "a-x-com/conversations/0/latest_message/message")
	if err != nil || own != "yo" {
		t.Fatalf("own preview = %v, %v; want updated", own, err)
	}
	peer, err := backend.GetOnce(ctx, "b-x-com/conversations/0/latest_message/message")
	if err != nil || peer != "hi" {
		t.Fatalf("peer preview = %v, %v; want untouched", peer, err)
	}
}
