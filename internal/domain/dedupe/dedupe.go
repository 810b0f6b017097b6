// Package dedupe tracks idempotency keys so that replayed judge votes
// and sync actions apply at most once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen idempotency keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it
	// if not. Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key, allowing a retry. Used when an action was
	// recorded but failed to commit (e.g. the store was unavailable).
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// tracker implements Deduper with a map plus a FIFO ring for bounded
// eviction. maxSize <= 0 disables eviction.
type tracker struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // insertion order, oldest first
	maxSize int
	size    atomic.Int64
}

// Option applies a configuration option to the tracker.
type Option func(*tracker)

// WithMaxSize bounds the number of keys kept in memory. Oldest keys are
// evicted first.
func WithMaxSize(n int) Option {
	return func(t *tracker) {
		t.maxSize = n
	}
}

// New creates a key tracker. The default bound covers a full meet day
// of votes with room to spare.
func New(opts ...Option) Deduper {
	t := &tracker{
		seen:    make(map[string]struct{}),
		maxSize: 100_000,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *tracker) SeenAndRecord(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; ok {
		return true
	}
	if t.maxSize > 0 && len(t.seen) >= t.maxSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.seen, oldest)
		t.size.Add(-1)
	}
	t.seen[key] = struct{}{}
	if t.maxSize > 0 {
		t.order = append(t.order, key)
	}
	t.size.Add(1)
	return false
}

func (t *tracker) Unrecord(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; !ok {
		return
	}
	delete(t.seen, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.size.Add(-1)
}

func (t *tracker) Size() int64 {
	return t.size.Load()
}
