// Package metrics documents the Prometheus metrics exposed by the
// assembler. Metrics are defined via promauto in their owning packages
// (assembler, fetcher, cache, breaker) to keep ownership local; this
// package is the reference inventory and the registry handle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Prometheus registerer used by all assembler metrics.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Assembly (pkg/assembler):
//   - assembler_documents_total (Counter): documents assembled
//   - assembler_assembly_duration_seconds (Histogram): end-to-end assembly time
//   - assembler_fragments_total{result} (Counter): fragment resolutions by
//     result (ok, timeout, status_error, transport_error, missing_src,
//     unresolvable)
//
// Fetching (pkg/fetcher):
//   - assembler_origin_fetches_total{status} (Counter): origin fetches by
//     status class (2xx, 3xx, 4xx, 5xx, transport_error)
//   - assembler_origin_fetch_duration_seconds (Histogram)
//   - assembler_revalidations_total{result} (Counter): background refreshes
//     by result (success, failure)
//   - assembler_revalidation_retries_total (Counter)
//
// Cache (pkg/cache):
//   - assembler_fragment_cache_hits_total{state} (Counter): hits by
//     freshness state (fresh, stale)
//   - assembler_fragment_cache_misses_total (Counter)
//   - assembler_fragment_cache_errors_total{operation} (Counter)
//
// Origin gate (pkg/breaker):
//   - assembler_origin_gate_blocks_total{origin} (Counter)
//   - assembler_origin_gate_opens_total{origin} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   sum(rate(assembler_fragment_cache_hits_total[5m])) /
//   (sum(rate(assembler_fragment_cache_hits_total[5m])) +
//    sum(rate(assembler_fragment_cache_misses_total[5m])))
//
//   # Degraded fragment share
//   1 - (rate(assembler_fragments_total{result="ok"}[5m]) /
//        rate(assembler_fragments_total[5m]))
//
//   # P95 assembly latency
//   histogram_quantile(0.95, rate(assembler_assembly_duration_seconds_bucket[5m]))
