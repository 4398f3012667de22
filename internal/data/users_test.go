package data

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/trungdev/appchat-data/internal/treestore"
)

func newStores(t *testing.T) (*treestore.MemoryStore, *UsersStore, *ConversationsStore, *MessagesStore) {
	t.Helper()
	st := treestore.NewMemoryStore()
	users := NewUsersStore(st)
	msgs := NewMessagesStore(st)
	convs := NewConversationsStore(st, msgs)
	return st, users, convs, msgs
}

func TestInsertUserThenExists(t *testing.T) {
	ctx := context.Background()
	_, users, _, _ := newStores(t)

	alice := User{FirstName: "Alice", LastName: "Adams", Email: "a@x.com"}
	if err := users.InsertUser(ctx, alice); err != nil {
		t.Fatalf("InsertUser failed: %v", err)
	}

	ok, err := users.UserExists(ctx, "a@x.com")
	if err != nil || !ok {
		t.Fatalf("UserExists = %v, %v; want true", ok, err)
	}

	// Mixed-case lookups hit the same key.
	ok, err = users.UserExists(ctx, "A@X.com")
	if err != nil || !ok {
		t.Fatalf("UserExists (mixed case) = %v, %v; want true", ok, err)
	}

	ok, err = users.UserExists(ctx, "nobody@x.com")
	if err != nil || ok {
		t.Fatalf("UserExists (unknown) = %v, %v; want false", ok, err)
	}
}

func TestGetAllUsers(t *testing.T) {
	ctx := context.Background()
	_, users, _, _ := newStores(t)

	for _, u := range []User{
		{FirstName: "Alice", LastName: "Adams", Email: "a@x.com"},
		{FirstName: "Bob", LastName: "Brown", Email: "b@x.com"},
	} {
		if err := users.InsertUser(ctx, u); err != nil {
			t.Fatalf("InsertUser(%s) failed: %v", u.Email, err)
		}
	}

	got, err := users.GetAllUsers(ctx)
	if err != nil {
		t.Fatalf("GetAllUsers failed: %v", err)
	}
	want := []DirectoryEntry{
		{Name: "Alice Adams", Email: "a-x-com"},
		{Name: "Bob Brown", Email: "b-x-com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestGetAllUsersAbsent(t *testing.T) {
	ctx := context.Background()
	_, users, _, _ := newStores(t)

	if _, err := users.GetAllUsers(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestGetAllUsersMalformed(t *testing.T) {
	ctx := context.Background()
	st, users, _, _ := newStores(t)

	// A directory entry without an email must fail the whole read.
	if err := st.SetValue(ctx, "users", []any{map[string]any{"name": "Alice Adams"}}); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if _, err := users.GetAllUsers(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}
