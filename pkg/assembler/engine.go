// Package assembler resolves ESI include directives in a document:
// fragments are fetched concurrently, slow or failing fragments degrade
// to empty content, and the assembled output always preserves the
// original document order.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/edgekit/esi-assembler/pkg/breaker"
	"github.com/edgekit/esi-assembler/pkg/cache"
	"github.com/edgekit/esi-assembler/pkg/directive"
	"github.com/edgekit/esi-assembler/pkg/fetcher"
)

// Prometheus metrics for document assembly.
var (
	documentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assembler_documents_total",
		Help: "Total documents assembled",
	})

	assemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assembler_assembly_duration_seconds",
		Help:    "Document assembly duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	fragmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assembler_fragments_total",
		Help: "Total fragment resolutions by result",
	}, []string{"result"})
)

// Fragment resolution results, used as metric label values.
const (
	resultOK           = "ok"
	resultTimeout      = "timeout"
	resultStatus       = "status_error"
	resultTransport    = "transport_error"
	resultMissingSrc   = "missing_src"
	resultUnresolvable = "unresolvable"
)

// Config holds engine configuration.
type Config struct {
	// BaseURL resolves relative directive sources. Must be an absolute
	// URL when set; may be empty if every directive carries an absolute
	// src.
	BaseURL string

	// Cache is the shared fragment cache. Nil disables caching: every
	// fragment fetch goes to origin. The engine holds a shared
	// reference; the cache's lifetime is the caller's business.
	Cache cache.Store

	// Fetcher overrides the network fetch capability, mainly for tests.
	// Nil means a production HTTP fetcher.
	Fetcher fetcher.Fetcher

	// Timeout bounds each individual fragment resolution. Zero means no
	// timeout.
	Timeout time.Duration

	// MaxConcurrency caps concurrent fragment resolutions per assembly
	// call. Zero means unlimited.
	MaxConcurrency int

	// Retry controls background revalidation backoff. Zero value means
	// defaults.
	Retry fetcher.RetryConfig
}

// Engine assembles documents. One engine is safe for concurrent use and
// shares its cache across all Process calls.
type Engine struct {
	baseScheme     string
	baseHost       string
	basePath       string
	hasBase        bool
	client         *fetcher.Client
	timeout        time.Duration
	maxConcurrency int
	logger         zerolog.Logger
}

// New creates an Engine. Configuration problems (an unparseable base
// URL, an unusable fetch capability) are the only errors this package
// ever returns; per-fragment failures degrade instead.
func New(cfg Config) (*Engine, error) {
	e := &Engine{
		timeout:        cfg.Timeout,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         log.With().Str("component", "assembler").Logger(),
	}

	if cfg.BaseURL != "" {
		scheme, host, path, err := splitBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		e.baseScheme, e.baseHost, e.basePath = scheme, host, path
		e.hasBase = true
	}

	f := cfg.Fetcher
	if f == nil {
		gate := breaker.New(breaker.DefaultThreshold, breaker.DefaultCooldown,
			log.With().Str("component", "breaker").Logger())
		f = fetcher.NewHTTPFetcherWithGate(gate)
	}

	client, err := fetcher.New(fetcher.Config{
		Fetcher: f,
		Store:   cfg.Cache,
		Retry:   cfg.Retry,
	})
	if err != nil {
		return nil, fmt.Errorf("create fetch client: %w", err)
	}
	e.client = client

	return e, nil
}

// Process assembles markup: every include directive is replaced by its
// fetched fragment, or by the empty string when that fragment times out,
// fails, or has no src. Non-directive content is preserved byte for
// byte. The call only fails for configuration-level faults, never for
// per-fragment network conditions.
func (e *Engine) Process(ctx context.Context, markup string) (string, error) {
	directives := directive.Scan(markup)
	if len(directives) == 0 {
		return markup, nil
	}

	start := time.Now()
	defer func() {
		documentsTotal.Inc()
		assemblyDuration.Observe(time.Since(start).Seconds())
	}()

	// Fan out: one resolution per directive, joined by original index so
	// completion order never affects output order.
	substitutions := make([]string, len(directives))

	g, gctx := errgroup.WithContext(ctx)
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, d := range directives {
		i, d := i, d
		g.Go(func() error {
			substitutions[i] = e.resolve(gctx, d)
			return nil
		})
	}
	// Resolutions degrade instead of erroring, so Wait cannot fail.
	_ = g.Wait()

	return splice(markup, directives, substitutions), nil
}

// WaitBackground blocks until in-flight background revalidations settle.
func (e *Engine) WaitBackground() {
	e.client.WaitBackground()
}

// resolve produces the substitution for one directive. Every failure
// mode collapses to the empty string: partial content beats a broken
// page.
func (e *Engine) resolve(ctx context.Context, d directive.Directive) string {
	if d.Source == "" {
		fragmentsTotal.WithLabelValues(resultMissingSrc).Inc()
		e.logger.Warn().
			Str("directive", d.Raw).
			Err(fetcher.ErrMissingSource).
			Msg("Degrading directive to empty content")
		return ""
	}

	absolute, err := e.resolveURL(d.Source)
	if err != nil {
		fragmentsTotal.WithLabelValues(resultUnresolvable).Inc()
		e.logger.Warn().Err(err).Str("src", d.Source).Msg("Degrading unresolvable directive")
		return ""
	}

	fctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Race the fetch against the deadline explicitly: an injected fetch
	// capability may ignore its context, and a late result must never
	// reach an already-assembled document. The buffered channel lets the
	// loser finish and be discarded.
	type outcome struct {
		body string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		body, err := e.client.Fetch(fctx, absolute)
		done <- outcome{body, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			fragmentsTotal.WithLabelValues(classify(res.err)).Inc()
			e.logger.Warn().Err(res.err).Str("url", absolute).Msg("Degrading failed fragment")
			return ""
		}
		fragmentsTotal.WithLabelValues(resultOK).Inc()
		return res.body
	case <-fctx.Done():
		fragmentsTotal.WithLabelValues(resultTimeout).Inc()
		e.logger.Warn().
			Str("url", absolute).
			Dur("timeout", e.timeout).
			Msg("Degrading timed-out fragment")
		return ""
	}
}

// classify maps a resolution error to its metric label.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return resultTimeout
	}
	var statusErr *fetcher.StatusError
	if errors.As(err, &statusErr) {
		return resultStatus
	}
	return resultTransport
}

// splice rebuilds the document, substituting each directive at its
// recorded span and copying all surrounding bytes untouched.
func splice(markup string, directives []directive.Directive, substitutions []string) string {
	var b strings.Builder
	b.Grow(len(markup))

	last := 0
	for i, d := range directives {
		b.WriteString(markup[last:d.Start])
		b.WriteString(substitutions[i])
		last = d.End
	}
	b.WriteString(markup[last:])

	return b.String()
}
