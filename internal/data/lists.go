package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/trungdev/appchat-data/internal/treestore"
)

// rewriteList is the one read-modify-write primitive behind every list
// mutation in this layer: fetch the whole list at path, let mutate
// produce the replacement, overwrite the whole list. The store has no
// atomic append or compare-and-swap, so the window between fetch and
// overwrite is a last-write-wins race shared identically by every
// caller — two concurrent mutations of the same list can lose one.
//
// mutate receives exists=false when no list is stored at path yet (the
// entries slice is then nil); callers decide whether that means "start
// a new list" or a failure.
func rewriteList(ctx context.Context, st treestore.Store, path string, mutate func(entries []any, exists bool) ([]any, error)) error {
	var entries []any
	exists := false

	v, err := st.GetOnce(ctx, path)
	switch {
	case errors.Is(err, treestore.ErrNotFound):
		// no list yet
	case err != nil:
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	default:
		list, ok := v.([]any)
		if !ok {
			return ErrFetchFailed
		}
		entries = list
		exists = true
	}

	entries, err = mutate(entries, exists)
	if err != nil {
		return err
	}

	if err := st.UpdateChildren(ctx, map[string]any{path: entries}); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}
