package treestore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store used by tests and offline runs. It
// keeps the whole tree behind one mutex and fans every successful write
// out to all observers, which makes it a faithful stand-in for the
// remote store's at-least-once, latest-value observation behavior.
type MemoryStore struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[int64]*subscriber
	nextID int64
}

type subscriber struct {
	path string
	ch   chan Snapshot
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: make(map[string]any),
		subs: make(map[int64]*subscriber),
	}
}

// GetOnce reads the node at path. The returned value is a deep copy so
// callers can mutate it freely before writing it back.
func (m *MemoryStore) GetOnce(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := childValue(m.root, splitPath(path))
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// SetValue overwrites the node at path and notifies observers.
func (m *MemoryStore) SetValue(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	err := m.setLocked(path, value)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.notify()
	return nil
}

// UpdateChildren applies each path→value write in turn. The writes are
// applied under one lock here, but callers must not rely on that: the
// production backend gives no multi-path atomicity.
func (m *MemoryStore) UpdateChildren(ctx context.Context, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	for path, value := range updates {
		if err := m.setLocked(path, value); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// Observe registers a continuous observation of path. The current value
// (or ErrNotFound) is delivered immediately; after that, every write to
// the store triggers a fresh delivery of whatever now sits at path.
func (m *MemoryStore) Observe(ctx context.Context, path string) (<-chan Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscriber{path: path, ch: make(chan Snapshot, 1)}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = sub
	sub.push(m.snapshotLocked(path))
	m.mu.Unlock()

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-sub.ch:
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// push delivers a snapshot with latest-value coalescing: if the
// subscriber has not consumed the previous delivery yet, it is replaced
// rather than queued behind.
func (s *subscriber) push(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (m *MemoryStore) snapshotLocked(path string) Snapshot {
	v, ok := childValue(m.root, splitPath(path))
	if !ok {
		return Snapshot{Err: ErrNotFound}
	}
	return Snapshot{Value: clone(v)}
}

// notify re-evaluates every observed path and pushes the current value.
// Observers of unrelated paths get redundant deliveries; that is within
// the at-least-once contract.
func (m *MemoryStore) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		sub.push(m.snapshotLocked(sub.path))
	}
}

// setLocked writes value at path, creating intermediate map nodes for
// missing map segments. List segments must already exist: the store
// cannot grow a list through a deep write.
func (m *MemoryStore) setLocked(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("treestore: empty path")
	}

	var parent any = m.root
	for _, seg := range segs[:len(segs)-1] {
		switch node := parent.(type) {
		case map[string]any:
			child, ok := node[seg]
			if !ok {
				next := make(map[string]any)
				node[seg] = next
				parent = next
				continue
			}
			parent = child
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return fmt.Errorf("treestore: no list element at %q in %q", seg, path)
			}
			parent = node[i]
		default:
			return fmt.Errorf("treestore: cannot descend into scalar at %q in %q", seg, path)
		}
	}

	last := segs[len(segs)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = clone(value)
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(node) {
			return fmt.Errorf("treestore: no list element at %q in %q", last, path)
		}
		node[i] = clone(value)
	default:
		return fmt.Errorf("treestore: cannot write child of scalar in %q", path)
	}
	return nil
}

// clone deep-copies a value tree so stored state never aliases caller
// memory.
func clone(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = clone(child)
		}
		return out
	default:
		return v
	}
}
