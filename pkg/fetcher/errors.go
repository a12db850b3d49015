package fetcher

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by fragment resolution.
var (
	// ErrMissingSource marks an include directive without a src
	// attribute. The orchestrator degrades it exactly like a failed
	// fetch.
	ErrMissingSource = errors.New("include directive missing src attribute")

	// ErrOriginSuspended is returned when the origin gate is open and
	// the fetch was skipped entirely.
	ErrOriginSuspended = errors.New("origin suspended after repeated failures")
)

// TransportError is a connection-level failure: DNS, dial, TLS, or a
// request aborted by its context.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx origin response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// shouldRetry reports whether a background revalidation should retry
// after err. Transport failures and 5xx responses are transient; 4xx
// responses are not going to improve on their own.
func shouldRetry(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
