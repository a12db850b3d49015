// Package breaker implements per-origin failure gating for fragment
// fetches. An origin that keeps failing is suspended for a cooldown
// period so assemblies fail fast instead of waiting out timeouts against
// a host that is known to be down.
package breaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	gateBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembler_origin_gate_blocks_total",
		Help: "Total number of fetches blocked by a suspended origin",
	}, []string{"origin"})

	gateOpensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembler_origin_gate_opens_total",
		Help: "Total number of times an origin was suspended",
	}, []string{"origin"})
)

// Default thresholds for origin suspension.
const (
	// DefaultThreshold is the number of consecutive failures that
	// suspends an origin.
	DefaultThreshold = 5

	// DefaultCooldown is how long a suspended origin is skipped before a
	// probe request is allowed through.
	DefaultCooldown = 10 * time.Second
)

type originState struct {
	failures int
	openedAt time.Time
}

// Gate tracks consecutive fetch failures per origin host.
type Gate struct {
	mu        sync.Mutex
	origins   map[string]*originState
	threshold int
	cooldown  time.Duration
	logger    zerolog.Logger

	now func() time.Time // overridable in tests
}

// New creates a Gate. Non-positive threshold or cooldown fall back to
// the defaults.
func New(threshold int, cooldown time.Duration, logger zerolog.Logger) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{
		origins:   make(map[string]*originState),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow reports whether a fetch to origin may proceed. A suspended
// origin blocks until its cooldown elapses; after that a single caller
// is let through as a probe and the outcome decides what happens next.
func (g *Gate) Allow(origin string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.origins[origin]
	if !ok || state.failures < g.threshold {
		return true
	}

	if g.now().Sub(state.openedAt) >= g.cooldown {
		// Probe: re-arm the window so concurrent callers don't stampede
		// a struggling origin while the probe is in flight.
		state.openedAt = g.now()
		return true
	}

	gateBlocksTotal.WithLabelValues(origin).Inc()
	return false
}

// RecordSuccess resets the failure count for origin.
func (g *Gate) RecordSuccess(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state, ok := g.origins[origin]; ok && state.failures > 0 {
		if state.failures >= g.threshold {
			g.logger.Info().
				Str("origin", origin).
				Msg("Origin recovered, gate closed")
		}
		state.failures = 0
	}
}

// RecordFailure counts one failure for origin and suspends it once the
// threshold is reached.
func (g *Gate) RecordFailure(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.origins[origin]
	if !ok {
		state = &originState{}
		g.origins[origin] = state
	}

	state.failures++
	if state.failures == g.threshold {
		state.openedAt = g.now()
		gateOpensTotal.WithLabelValues(origin).Inc()
		g.logger.Warn().
			Str("origin", origin).
			Int("failures", state.failures).
			Dur("cooldown", g.cooldown).
			Msg("Origin suspended after consecutive failures")
	}
}
