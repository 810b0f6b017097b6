package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Default store configuration constants.
const (
	defaultShardCount       = 8
	defaultSubscriberBuffer = 256
)

// MemoryStore is a sharded in-memory Store with asynchronous change
// fan-out. It is the engine's default persistence adapter and the
// authority the offline queue replays against in tests and single-node
// deployments.
type MemoryStore struct {
	shards     []*shard
	shardCount int

	subMu      sync.RWMutex
	subs       map[string][]*subscriber // collection -> subscribers
	subBuffer  int
	closed     bool
	subCounter int
}

type shard struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document // collection -> id -> doc
}

type subscriber struct {
	id    int
	match func(Change) bool
	ch    chan Change
	done  chan struct{}
}

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithShardCount sets the number of shards.
func WithShardCount(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber change buffer size.
func WithSubscriberBuffer(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.subBuffer = n
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount: defaultShardCount,
		subBuffer:  defaultSubscriberBuffer,
		subs:       make(map[string][]*subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{docs: make(map[string]map[string]Document)}
	}
	return s
}

func (s *MemoryStore) shardFor(collection, id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(collection))
	_, _ = h.Write([]byte{'/'})
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(s.shardCount)]
}

// Get returns a document or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	sh := s.shardFor(collection, id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	doc, ok := sh.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Put writes a document under an optimistic version check and fans the
// change out to subscribers.
func (s *MemoryStore) Put(ctx context.Context, collection, id string, data any, expected int64) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	sh := s.shardFor(collection, id)
	sh.mu.Lock()
	cur, exists := sh.docs[collection][id]
	switch {
	case expected == VersionAny:
	case expected == VersionNew && exists:
		sh.mu.Unlock()
		return Document{}, ErrVersionConflict
	case expected > 0 && (!exists || cur.Version != expected):
		sh.mu.Unlock()
		return Document{}, ErrVersionConflict
	}
	next := Document{
		Collection: collection,
		ID:         id,
		Version:    cur.Version + 1,
		Data:       data,
		UpdatedAt:  time.Now().UTC(),
	}
	if sh.docs[collection] == nil {
		sh.docs[collection] = make(map[string]Document)
	}
	sh.docs[collection][id] = next
	sh.mu.Unlock()

	s.notify(Change{Document: next})
	return next, nil
}

// Delete removes a document. Missing documents are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(collection, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.docs[collection], id)
	return nil
}

// List returns all matching documents in a collection. Ordering is
// unspecified; callers sort by their own keys.
func (s *MemoryStore) List(ctx context.Context, collection string, match func(Document) bool) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Document
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, doc := range sh.docs[collection] {
			if match == nil || match(doc) {
				out = append(out, doc)
			}
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// Subscribe registers a change callback. Delivery runs on a dedicated
// goroutine per subscriber; a full buffer drops back to synchronous send
// so changes are never lost (at-least-once, possibly reordered).
func (s *MemoryStore) Subscribe(ctx context.Context, collection string, match func(Change) bool, fn func(Change)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return nil, ErrClosed
	}
	s.subCounter++
	sub := &subscriber{
		id:    s.subCounter,
		match: match,
		ch:    make(chan Change, s.subBuffer),
		done:  make(chan struct{}),
	}
	s.subs[collection] = append(s.subs[collection], sub)
	s.subMu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case c := <-sub.ch:
				fn(c)
			}
		}
	}()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		list := s.subs[collection]
		for i, candidate := range list {
			if candidate.id == sub.id {
				s.subs[collection] = append(list[:i], list[i+1:]...)
				close(sub.done)
				return
			}
		}
	}
	return cancel, nil
}

func (s *MemoryStore) notify(c Change) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, sub := range s.subs[c.Collection] {
		if sub.match != nil && !sub.match(c) {
			continue
		}
		select {
		case sub.ch <- c:
		case <-sub.done:
		}
	}
}

// Close cancels all subscribers.
func (s *MemoryStore) Close() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, list := range s.subs {
		for _, sub := range list {
			close(sub.done)
		}
	}
	s.subs = make(map[string][]*subscriber)
	return nil
}
