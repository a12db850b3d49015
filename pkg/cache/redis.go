package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidEntry indicates a cache entry that could not be decoded.
var ErrInvalidEntry = errors.New("invalid cache entry")

const (
	entryKeyPrefix = "assembler:fragment:"
	lockKeyPrefix  = "assembler:revalidating:"

	// lockTTL bounds how long a crashed refresher can pin a key's
	// revalidation lock before another process may take over.
	lockTTL = 30 * time.Second
)

// redisEntry is the wire form of a cached fragment in Redis.
//
// Entries are stored WITHOUT a Redis TTL: a stale value must remain
// readable so it can be served while a background refresh runs.
// Staleness is computed on read from stored_at and max_age_seconds.
type redisEntry struct {
	Value         string    `json:"value"`
	StoredAt      time.Time `json:"stored_at"`
	MaxAgeSeconds *int64    `json:"max_age_seconds,omitempty"`
}

// RedisStore is a Store backed by Redis, for deployments where the
// fragment cache should survive restarts and be shared across replicas.
type RedisStore struct {
	redis *redis.Client
	clock Clock
}

// NewRedisStore creates a RedisStore using the wall clock.
func NewRedisStore(client *redis.Client) *RedisStore {
	return NewRedisStoreWithClock(client, SystemClock())
}

// NewRedisStoreWithClock creates a RedisStore reading time from clock.
func NewRedisStoreWithClock(client *redis.Client, clock Clock) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if clock == nil {
		panic("clock cannot be nil")
	}
	return &RedisStore{redis: client, clock: clock}
}

// Get retrieves the entry for key, computing Stale against the store's
// clock. Revalidating is only looked up for stale entries; fresh reads
// never pay for the extra round trip.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.redis.Get(ctx, entryKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return Entry{}, false, nil
		}
		CacheErrors.WithLabelValues("get").Inc()
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return Entry{}, false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	entry := Entry{
		Value:    stored.Value,
		StoredAt: stored.StoredAt,
	}
	if stored.MaxAgeSeconds != nil {
		maxAge := time.Duration(*stored.MaxAgeSeconds) * time.Second
		entry.MaxAge = &maxAge
	}
	entry.Stale = staleAt(entry.StoredAt, entry.MaxAge, s.clock.Now())

	if entry.Stale {
		locked, err := s.redis.Exists(ctx, lockKeyPrefix+key).Result()
		if err != nil {
			CacheErrors.WithLabelValues("get").Inc()
			return Entry{}, false, fmt.Errorf("redis exists: %w", err)
		}
		entry.Revalidating = locked > 0
		CacheHits.WithLabelValues("stale").Inc()
	} else {
		CacheHits.WithLabelValues("fresh").Inc()
	}

	return entry, true, nil
}

// Set stores or overwrites the value for key.
func (s *RedisStore) Set(ctx context.Context, key, value string, meta Metadata) error {
	stored := redisEntry{
		Value:    value,
		StoredAt: s.clock.Now(),
	}
	if meta.MaxAge != nil {
		seconds := int64(*meta.MaxAge / time.Second)
		stored.MaxAgeSeconds = &seconds
	}

	data, err := json.Marshal(stored)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, entryKeyPrefix+key, data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// TryMarkRevalidating takes the per-key refresh lock via SETNX. The lock
// carries a TTL so a crashed refresher cannot pin the key forever.
func (s *RedisStore) TryMarkRevalidating(ctx context.Context, key string) (bool, error) {
	exists, err := s.redis.Exists(ctx, entryKeyPrefix+key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("mark").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return false, nil
	}

	acquired, err := s.redis.SetNX(ctx, lockKeyPrefix+key, "1", lockTTL).Result()
	if err != nil {
		CacheErrors.WithLabelValues("mark").Inc()
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return acquired, nil
}

// ClearRevalidating releases the per-key refresh lock.
func (s *RedisStore) ClearRevalidating(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, lockKeyPrefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
