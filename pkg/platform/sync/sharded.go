package sync

import (
	"sync"
	"time"
)

const shardCount = 32

// ShardedMap is a concurrent map split into fixed shards, each guarded by its
// own RWMutex. Different keys rarely contend; operations on the same key are
// serialized by that key's shard.
//
// Values are stored by value. Callers that keep reference types (slices, maps)
// inside V must not retain them outside an Update callback.
type ShardedMap[V any] struct {
	shards      [shardCount]shard[V]
	maxPerShard int
	lastSeen    func(V) time.Time
	pinned      func(V) bool
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// MapOption configures a ShardedMap.
type MapOption[V any] func(*ShardedMap[V])

// WithMaxKeys bounds the number of keys held. When a shard is full, inserting a
// new key evicts the entry in that shard with the oldest lastSeen time.
func WithMaxKeys[V any](maxKeys int, lastSeen func(V) time.Time) MapOption[V] {
	return func(m *ShardedMap[V]) {
		if maxKeys <= 0 || lastSeen == nil {
			return
		}
		m.maxPerShard = max(maxKeys/shardCount, 1)
		m.lastSeen = lastSeen
	}
}

// WithPinned exempts entries for which pinned returns true from eviction. A
// shard whose entries are all pinned grows past the WithMaxKeys bound.
func WithPinned[V any](pinned func(V) bool) MapOption[V] {
	return func(m *ShardedMap[V]) {
		m.pinned = pinned
	}
}

// NewShardedMap creates an empty ShardedMap.
func NewShardedMap[V any](opts ...MapOption[V]) *ShardedMap[V] {
	m := &ShardedMap[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns a copy of the value stored under key.
func (m *ShardedMap[V]) Load(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Update atomically replaces the value under key with fn(current, exists) and
// returns the stored result. fn runs with the shard write lock held and must
// not call back into the map.
func (m *ShardedMap[V]) Update(key string, fn func(current V, exists bool) V) V {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[key]
	next := fn(current, exists)
	if !exists {
		m.evictLocked(s)
	}
	s.items[key] = next
	return next
}

// Delete removes key. Missing keys are a no-op.
func (m *ShardedMap[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// DeleteFunc removes every entry for which fn returns true and reports how many
// were removed. Shards are locked one at a time so a full pass never holds a
// global lock.
func (m *ShardedMap[V]) DeleteFunc(fn func(key string, v V) bool) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if fn(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Range calls fn for each entry, one shard at a time under a read lock.
// Iteration stops when fn returns false.
func (m *ShardedMap[V]) Range(fn func(key string, v V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the number of entries across all shards.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

func (m *ShardedMap[V]) evictLocked(s *shard[V]) {
	if m.maxPerShard == 0 || len(s.items) < m.maxPerShard {
		return
	}
	var (
		oldestKey  string
		oldestSeen time.Time
		found      bool
	)
	for k, v := range s.items {
		if m.pinned != nil && m.pinned(v) {
			continue
		}
		seen := m.lastSeen(v)
		if !found || seen.Before(oldestSeen) {
			oldestKey, oldestSeen, found = k, seen, true
		}
	}
	if found {
		delete(s.items, oldestKey)
	}
}

func (m *ShardedMap[V]) shardFor(key string) *shard[V] {
	return &m.shards[shardIndex(key)]
}

// shardIndex returns the shard for key. Empty keys map to shard 0.
func shardIndex(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % shardCount)
}

// hashString provides a simple hash for shard selection.
// Uses djb2-style hashing for good distribution.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
