package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edgekit/esi-assembler/pkg/cache"
)

// Prometheus metrics for fragment fetching.
var (
	originFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembler_origin_fetches_total",
		Help: "Total origin fetches by status class",
	}, []string{"status"})

	originFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assembler_origin_fetch_duration_seconds",
		Help:    "Origin fetch duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	revalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembler_revalidations_total",
		Help: "Total background revalidations by result",
	}, []string{"result"})

	revalidationRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembler_revalidation_retries_total",
		Help: "Total retry attempts during background revalidation",
	})
)

// Config holds cache-aware client configuration.
type Config struct {
	// Fetcher performs the actual network fetches. Required.
	Fetcher Fetcher

	// Store is the fragment cache. Nil disables caching entirely: every
	// fetch goes to origin.
	Store cache.Store

	// RevalidateTimeout bounds one background refresh, retries included.
	// Zero means DefaultRevalidateTimeout.
	RevalidateTimeout time.Duration

	// Retry controls backoff for background refreshes.
	Retry RetryConfig
}

// DefaultRevalidateTimeout bounds a background refresh when the caller
// configures none.
const DefaultRevalidateTimeout = 30 * time.Second

// Client answers fragment fetches from the cache when it can and from
// origin when it must.
//
// Cache behavior per key:
//   - miss: fetch, store on 2xx (unless the response says no-store),
//     propagate failures without storing
//   - fresh hit: return the stored value, no network
//   - stale hit: return the stored value immediately and refresh in the
//     background, at most one refresh in flight per key
type Client struct {
	fetcher           Fetcher
	store             cache.Store
	revalidateTimeout time.Duration
	retry             RetryConfig
	logger            zerolog.Logger

	background sync.WaitGroup
}

// New creates a cache-aware fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.RevalidateTimeout <= 0 {
		cfg.RevalidateTimeout = DefaultRevalidateTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		fetcher:           cfg.Fetcher,
		store:             cfg.Store,
		revalidateTimeout: cfg.RevalidateTimeout,
		retry:             cfg.Retry,
		logger:            log.With().Str("component", "fetcher").Logger(),
	}, nil
}

// Fetch returns the fragment body for url, an absolute URL that doubles
// as the cache key.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	if c.store == nil {
		body, _, err := c.fetchOrigin(ctx, url)
		return body, err
	}

	entry, ok, err := c.store.Get(ctx, url)
	if err != nil {
		// A broken cache backend must not break assembly; fall through
		// to origin as if this were a miss.
		c.logger.Warn().Err(err).Str("url", url).Msg("Cache get error")
		ok = false
	}

	if ok {
		if entry.Stale {
			c.maybeRevalidate(ctx, url)
		}
		return entry.Value, nil
	}

	body, ctl, err := c.fetchOrigin(ctx, url)
	if err != nil {
		return "", err
	}

	if ctl.NoStore {
		c.logger.Debug().Str("url", url).Msg("Origin said no-store, skipping cache")
		return body, nil
	}

	if err := c.store.Set(ctx, url, body, ctl.Metadata()); err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("Failed to cache fragment")
	}
	return body, nil
}

// fetchOrigin performs one network fetch and parses freshness metadata.
// Non-2xx responses become StatusError.
func (c *Client) fetchOrigin(ctx context.Context, url string) (string, cache.Control, error) {
	resp, err := c.fetcher.Get(ctx, url)
	if err != nil {
		return "", cache.Control{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", cache.Control{}, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	ctl := cache.ParseControl(resp.Header.Get("Cache-Control"))
	return resp.Body, ctl, nil
}

// maybeRevalidate starts a background refresh for url if none is in
// flight. The caller has already been answered from the stale value and
// never waits on the outcome.
func (c *Client) maybeRevalidate(ctx context.Context, url string) {
	acquired, err := c.store.TryMarkRevalidating(ctx, url)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("Failed to mark revalidation")
		return
	}
	if !acquired {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.revalidate(url)
	}()
}

// revalidate refreshes one stale entry. On success the entry is
// overwritten (value, storedAt, max-age); on failure the stale value is
// left untouched. The revalidation mark is cleared either way so a later
// read can try again.
func (c *Client) revalidate(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
	defer cancel()

	err := retryWithBackoff(ctx, c.retry, c.logger, func() error {
		body, ctl, err := c.fetchOrigin(ctx, url)
		if err != nil {
			return err
		}
		if ctl.NoStore {
			// The origin withdrew cacheability; keep serving the stale
			// value until a miss path replaces the entry.
			return nil
		}
		return c.store.Set(ctx, url, body, ctl.Metadata())
	})

	// Clear with a fresh context: the refresh deadline may already be
	// gone, and a pinned mark would block all future refreshes.
	if clearErr := c.store.ClearRevalidating(context.Background(), url); clearErr != nil {
		c.logger.Error().Err(clearErr).Str("url", url).Msg("Failed to clear revalidation mark")
	}

	if err != nil {
		revalidationsTotal.WithLabelValues("failure").Inc()
		c.logger.Warn().Err(err).Str("url", url).Msg("Revalidation failed, keeping stale value")
		return
	}

	revalidationsTotal.WithLabelValues("success").Inc()
	c.logger.Debug().Str("url", url).Msg("Revalidated fragment")
}

// WaitBackground blocks until all in-flight background revalidations
// settle. Used by tests and graceful shutdown.
func (c *Client) WaitBackground() {
	c.background.Wait()
}
