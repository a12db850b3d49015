// Package cache provides freshness-aware storage for fetched fragments.
//
// Entries are keyed by fully-resolved absolute URL and carry the freshness
// metadata parsed from the origin's Cache-Control header:
//
//   - An entry with a max-age is fresh until storedAt + max-age, then stale.
//   - An entry without a max-age never goes stale.
//   - Stale entries are never deleted; they are served while a background
//     revalidation refreshes them (see pkg/fetcher).
//
// Two Store implementations share one contract: MemoryStore, an unbounded
// in-process map, and RedisStore, which keeps entries in Redis so a warm
// cache survives restarts and is shared across replicas. Time is read
// through an injectable Clock so expiry is testable without sleeping.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//
//	// Pre-seed a fragment
//	store.Set(ctx, "http://origin/header", "<div>hi</div>", cache.Metadata{})
//
//	entry, ok, err := store.Get(ctx, "http://origin/header")
//	if !ok {
//		// miss - fetch from origin
//	}
//
// The map is unbounded: entries are only ever overwritten, never evicted.
package cache
