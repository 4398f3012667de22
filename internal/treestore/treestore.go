// Package treestore abstracts a path-addressed hierarchical datastore.
//
// Values are untyped trees of map[string]any, []any and scalars. Paths
// are "/"-delimited; a decimal segment indexes into a list. The store
// offers no transactions and no compare-and-swap: callers that need to
// mutate a node must fetch it, change it locally and write the whole
// node back, accepting last-write-wins semantics.
package treestore

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned by reads when no node exists at the path.
var ErrNotFound = errors.New("treestore: node not found")

// Snapshot is one delivery from a continuous observation: the current
// value at the observed path, or the read failure for that delivery.
type Snapshot struct {
	Value any
	Err   error
}

// Store is the capability set this layer consumes from the remote tree.
// All methods honor ctx cancellation; write failures are opaque (the
// store reports no fine-grained cause).
type Store interface {
	// GetOnce reads the node at path. ErrNotFound when absent.
	GetOnce(ctx context.Context, path string) (any, error)

	// SetValue overwrites the node at path, creating intermediate map
	// nodes as needed.
	SetValue(ctx context.Context, path string, value any) error

	// UpdateChildren applies several path→value writes in one call.
	// Atomicity across paths depends on the backend and must not be
	// assumed.
	UpdateChildren(ctx context.Context, updates map[string]any) error

	// Observe continuously watches the node at path. The current value
	// is delivered immediately, then again after every change:
	// at-least-once, latest-value semantics, no ordering guarantee
	// between deliveries and unrelated writes. The channel closes when
	// ctx is done.
	Observe(ctx context.Context, path string) (<-chan Snapshot, error)
}

// splitPath breaks a "/"-delimited path into segments, ignoring empty
// leading/trailing segments.
func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// childValue walks the given segments down a value tree. Decimal
// segments index into lists; everything else keys into maps.
func childValue(v any, segs []string) (any, bool) {
	for _, seg := range segs {
		switch node := v.(type) {
		case map[string]any:
			child, ok := node[seg]
			if !ok {
				return nil, false
			}
			v = child
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}
