package cache

import (
	"time"
)

// Entry is a cached fragment as returned by Store.Get.
type Entry struct {
	// Value is the fragment body.
	Value string

	// StoredAt is when the value was written, per the store's clock.
	StoredAt time.Time

	// MaxAge is the advertised freshness lifetime. Nil means the entry
	// never goes stale.
	MaxAge *time.Duration

	// Revalidating reports whether a background refresh for this key was
	// in flight at read time. At most one refresh is outstanding per key.
	Revalidating bool

	// Stale reports whether the entry was past its MaxAge at read time.
	Stale bool
}

// Metadata is the freshness metadata recorded alongside a value on Set.
type Metadata struct {
	// MaxAge is the freshness lifetime. Nil means cache without expiry.
	MaxAge *time.Duration
}

// staleAt reports whether an entry stored at storedAt with the given
// max-age is past its freshness window at now.
func staleAt(storedAt time.Time, maxAge *time.Duration, now time.Time) bool {
	if maxAge == nil {
		return false
	}
	return now.Sub(storedAt) >= *maxAge
}
