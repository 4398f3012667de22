package treestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrThrottled is returned by a throttled store when a write exceeds the
// per-root-key budget. The write is not attempted.
var ErrThrottled = errors.New("treestore: write rate exceeded")

// LimiterStore maintains per-key rate limiters and performs periodic cleanup.
type LimiterStore struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	clients         map[string]*clientEntry
	cleanupInterval time.Duration
	stopCh          chan struct{}
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore creates a new store for per-key rate limiters.
// limitPerMinute controls allowed events per minute; burst is the burst capacity.
func NewLimiterStore(limitPerMinute int, burst int, cleanupInterval time.Duration) *LimiterStore {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	s := &LimiterStore{
		limit:           rate.Every(time.Minute / time.Duration(limitPerMinute)),
		burst:           burst,
		clients:         map[string]*clientEntry{},
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *LimiterStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			s.mu.Lock()
			for k, v := range s.clients {
				if v.lastSeen.Before(cutoff) {
					delete(s.clients, k)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops internal goroutines (useful for tests).
func (s *LimiterStore) Stop() {
	close(s.stopCh)
}

// getLimiter returns or creates a limiter for key
func (s *LimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.clients[key]; ok {
		e.lastSeen = time.Now()
		return e.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.clients[key] = &clientEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// Allow checks whether an event for the given key is permitted.
func (s *LimiterStore) Allow(key string) bool {
	l := s.getLimiter(key)
	return l.Allow()
}

// ThrottledStore decorates a Store with a per-root-key write budget so a
// misbehaving caller cannot hammer one user's node. Reads and
// observations pass through untouched; over-budget writes fail fast
// with ErrThrottled and never reach the backend.
type ThrottledStore struct {
	Store
	limiters *LimiterStore
}

// NewThrottledStore wraps store, keying the limiter by the path's root
// segment.
func NewThrottledStore(store Store, limiters *LimiterStore) *ThrottledStore {
	return &ThrottledStore{Store: store, limiters: limiters}
}

// SetValue applies the write budget before delegating.
func (t *ThrottledStore) SetValue(ctx context.Context, path string, value any) error {
	if err := t.allow(path); err != nil {
		return err
	}
	return t.Store.SetValue(ctx, path, value)
}

// UpdateChildren checks every distinct root key before any write is
// attempted, so a rejected call leaves the backend untouched.
func (t *ThrottledStore) UpdateChildren(ctx context.Context, updates map[string]any) error {
	seen := map[string]bool{}
	for path := range updates {
		segs := splitPath(path)
		if len(segs) == 0 {
			continue
		}
		if seen[segs[0]] {
			continue
		}
		seen[segs[0]] = true
		if err := t.allow(path); err != nil {
			return err
		}
	}
	return t.Store.UpdateChildren(ctx, updates)
}

func (t *ThrottledStore) allow(path string) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("treestore: empty path")
	}
	if !t.limiters.Allow(segs[0]) {
		return fmt.Errorf("%w for %q", ErrThrottled, segs[0])
	}
	return nil
}
