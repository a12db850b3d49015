package cache

import (
	"context"
	"sync"
)

// Store is the contract shared by all cache backends.
//
// Reads and writes are synchronous; nothing in this interface blocks on
// the network for MemoryStore, and RedisStore performs single round
// trips. The revalidation mark is the shared state that guarantees at
// most one background refresh per key: TryMarkRevalidating is an atomic
// check-and-mark, so concurrent stale readers elect exactly one
// refresher.
type Store interface {
	// Get returns the entry for key. The second return is false on miss.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores or overwrites the value for key, stamping StoredAt with
	// the store's clock. An existing revalidation mark is left untouched.
	Set(ctx context.Context, key, value string, meta Metadata) error

	// TryMarkRevalidating marks key as having a refresh in flight.
	// Returns true if this caller acquired the mark, false if the key is
	// already marked or absent.
	TryMarkRevalidating(ctx context.Context, key string) (bool, error)

	// ClearRevalidating removes the refresh-in-flight mark for key.
	ClearRevalidating(ctx context.Context, key string) error
}

// MemoryStore is an unbounded in-process Store backed by a map.
// Eviction is intentionally absent: entries are only overwritten.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*storedEntry
	clock   Clock
}

type storedEntry struct {
	entry        Entry
	revalidating bool
}

// NewMemoryStore creates a MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(SystemClock())
}

// NewMemoryStoreWithClock creates a MemoryStore reading time from clock.
func NewMemoryStoreWithClock(clock Clock) *MemoryStore {
	if clock == nil {
		panic("clock cannot be nil")
	}
	return &MemoryStore{
		entries: make(map[string]*storedEntry),
		clock:   clock,
	}
}

// Get returns a snapshot of the entry for key with Stale computed
// against the store's clock.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[key]
	if !ok {
		CacheMisses.Inc()
		return Entry{}, false, nil
	}

	entry := stored.entry
	entry.Revalidating = stored.revalidating
	entry.Stale = staleAt(entry.StoredAt, entry.MaxAge, s.clock.Now())

	if entry.Stale {
		CacheHits.WithLabelValues("stale").Inc()
	} else {
		CacheHits.WithLabelValues("fresh").Inc()
	}

	return entry, true, nil
}

// Set stores or overwrites the value for key. On overwrite the entry is
// mutated in place: value, StoredAt and MaxAge are replaced while any
// revalidation mark survives until ClearRevalidating.
func (s *MemoryStore) Set(ctx context.Context, key, value string, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if stored, ok := s.entries[key]; ok {
		stored.entry.Value = value
		stored.entry.StoredAt = now
		stored.entry.MaxAge = meta.MaxAge
		return nil
	}

	s.entries[key] = &storedEntry{
		entry: Entry{
			Value:    value,
			StoredAt: now,
			MaxAge:   meta.MaxAge,
		},
	}
	return nil
}

// TryMarkRevalidating atomically marks key if it exists and is unmarked.
func (s *MemoryStore) TryMarkRevalidating(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[key]
	if !ok || stored.revalidating {
		return false, nil
	}
	stored.revalidating = true
	return true, nil
}

// ClearRevalidating removes the mark for key.
func (s *MemoryStore) ClearRevalidating(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.entries[key]; ok {
		stored.revalidating = false
	}
	return nil
}

// Len returns the number of cached keys. Exposed for observability and
// tests; the map is unbounded by design.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
