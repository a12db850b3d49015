// Package fetcher retrieves fragment bodies over HTTP, optionally
// through a freshness-aware cache with stale-while-revalidate refresh.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/edgekit/esi-assembler/pkg/breaker"
)

// Response is the outcome of one origin fetch. StatusCode is reported
// as-is; deciding what counts as success is the caller's business.
type Response struct {
	StatusCode int
	Body       string
	Header     http.Header
}

// Fetcher is the injectable fetch capability. HTTPFetcher is the
// production implementation; tests substitute deterministic doubles.
type Fetcher interface {
	// Get performs a GET against url. It returns an error only for
	// transport-level failures; non-2xx responses come back as a
	// Response with the origin's status code.
	Get(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

// Get implements Fetcher.
func (f FetcherFunc) Get(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// HTTPFetcher fetches fragments with net/http. Per-fragment deadlines
// come from the caller's context; the underlying client carries a hard
// ceiling so an undeadlined background refresh cannot hang forever.
type HTTPFetcher struct {
	client *http.Client
	gate   *breaker.Gate
}

// NewHTTPFetcher creates an HTTPFetcher without origin gating.
func NewHTTPFetcher() *HTTPFetcher {
	return NewHTTPFetcherWithGate(nil)
}

// NewHTTPFetcherWithGate creates an HTTPFetcher that consults gate
// before every request. A nil gate disables gating.
func NewHTTPFetcherWithGate(gate *breaker.Gate) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		gate: gate,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *HTTPFetcher) SetHTTPClient(client *http.Client) {
	f.client = client
}

// Get implements Fetcher.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	origin := originHost(rawURL)

	if f.gate != nil && origin != "" && !f.gate.Allow(origin) {
		return nil, &TransportError{URL: rawURL, Err: ErrOriginSuspended}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFailure(origin)
		originFetchesTotal.WithLabelValues("transport_error").Inc()
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.recordFailure(origin)
		originFetchesTotal.WithLabelValues("transport_error").Inc()
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	originFetchDuration.Observe(time.Since(start).Seconds())
	originFetchesTotal.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	if f.gate != nil && origin != "" {
		// 5xx counts against the origin's health; 4xx is the caller's
		// problem, not the origin's.
		if resp.StatusCode >= 500 {
			f.gate.RecordFailure(origin)
		} else {
			f.gate.RecordSuccess(origin)
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Header:     resp.Header,
	}, nil
}

func (f *HTTPFetcher) recordFailure(origin string) {
	if f.gate != nil && origin != "" {
		f.gate.RecordFailure(origin)
	}
}

func originHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
