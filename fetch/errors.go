package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrExhaustedRetries wraps the last underlying error after the retry budget
// is spent without a success.
var ErrExhaustedRetries = errors.New("retries exhausted")

// HTTPError carries a non-2xx upstream status so the retry loop can classify
// it. Adapters wrap any unexpected status into one of these.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// Retryable classifies an error for the retry loop. Network-transport
// failures (reset, DNS, timeout, refused) and HTTP 5xx are retryable; HTTP
// 4xx client errors are permanent; anything unclassified defaults to
// retryable. Context cancellation is never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusTooManyRequests:
			return true
		case httpErr.Status >= 500:
			return true
		case httpErr.Status >= 400:
			return false
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return true
}
