package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/trungdev/appchat-data/internal/normalize"
	"github.com/trungdev/appchat-data/internal/treestore"
)

// usersPath is the flat directory of every registered user.
const usersPath = "users"

// UsersStore performs user directory operations against the tree store.
type UsersStore struct {
	store treestore.Store
}

// NewUsersStore returns a UsersStore using the provided tree store.
func NewUsersStore(store treestore.Store) *UsersStore {
	return &UsersStore{store: store}
}

// UserExists reports whether a user record sits at the address's
// storage key. Existence means a non-empty map node — field contents
// are not validated.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	v, err := u.store.GetOnce(ctx, normalize.Key(email))
	if errors.Is(err, treestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	node, ok := v.(map[string]any)
	return ok && len(node) > 0, nil
}

// InsertUser writes the user's record under its storage key, then
// appends a {name, email} entry to the flat directory list.
//
// The directory update is fetch-append-overwrite: two users registering
// at the same moment can race and one directory entry can be lost. This
// is an accepted limitation of the store (no atomic append), not
// something this layer papers over.
func (u *UsersStore) InsertUser(ctx context.Context, user User) error {
	key := user.SafeEmail()

	record := map[string]any{
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	}
	if err := u.store.SetValue(ctx, key, record); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	return rewriteList(ctx, u.store, usersPath, func(entries []any, _ bool) ([]any, error) {
		return append(entries, map[string]any{
			"name":  user.DisplayName(),
			"email": key,
		}), nil
	})
}

// GetAllUsers returns the flat directory list. A missing or malformed
// node fails the whole read.
func (u *UsersStore) GetAllUsers(ctx context.Context) ([]DirectoryEntry, error) {
	v, err := u.store.GetOnce(ctx, usersPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	list, ok := v.([]any)
	if !ok {
		return nil, ErrFetchFailed
	}

	out := make([]DirectoryEntry, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, ErrFetchFailed
		}
		name, nameOK := m["name"].(string)
		email, emailOK := m["email"].(string)
		if !nameOK || !emailOK {
			return nil, ErrFetchFailed
		}
		out = append(out, DirectoryEntry{Name: name, Email: email})
	}
	return out, nil
}
