// Package cache provides the TTL key/value store backing the dedup
// engine's windowed state. Any store with per-key TTL and an atomic
// increment qualifies; badger is the persistent backend, MemoryStore
// serves tests and single-node ephemeral deployments.
package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is a key/value store with per-entry TTL.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes the value with the given TTL (0 means no expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Increment atomically adds one to the integer counter at key and
	// returns the new value. The TTL applies from the first increment.
	// Counters are stored as 8-byte big-endian values readable via Get.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Close releases backend resources.
	Close() error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store with lazy expiry and periodic
// compaction. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
	s.maybeCompact()
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		e = memoryEntry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}

	var cur int64
	if len(e.value) == 8 {
		cur = int64(binary.BigEndian.Uint64(e.value))
	}
	next := cur + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(next))
	e.value = buf
	s.entries[key] = e
	return next, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// maybeCompact drops expired entries once the map grows large.
// Caller must hold the lock.
func (s *MemoryStore) maybeCompact() {
	if len(s.entries) < 10000 {
		return
	}
	now := time.Now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}
