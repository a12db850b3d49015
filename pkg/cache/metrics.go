package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fragment cache hits by freshness state.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assembler_fragment_cache_hits_total",
			Help: "Total number of fragment cache hits",
		},
		[]string{"state"}, // "fresh", "stale"
	)

	// CacheMisses tracks fragment cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assembler_fragment_cache_misses_total",
			Help: "Total number of fragment cache misses",
		},
	)

	// CacheErrors tracks cache backend operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assembler_fragment_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "mark", "clear"
	)
)
