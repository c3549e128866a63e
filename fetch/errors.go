package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// BadStatusError reports a non-200 response. Redirect statuses land here
// too: the site answers missing content with a redirect to its front page,
// so a 3xx is a failure signal, never something to follow.
type BadStatusError struct {
	URL    string
	Status int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Status)
}

// TransportError reports a network-level failure (DNS, connect, timeout).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorLabel maps a fetch error to a short classification label used in
// logs and metric labels.
func ErrorLabel(err error) string {
	if err == nil {
		return "none"
	}

	var bad *BadStatusError
	if errors.As(err, &bad) {
		switch {
		case bad.Status >= 300 && bad.Status < 400:
			return "redirect"
		case bad.Status == http.StatusForbidden:
			return "forbidden"
		case bad.Status == http.StatusNotFound:
			return "not_found"
		case bad.Status == http.StatusTooManyRequests:
			return "rate_limited"
		default:
			return "bad_status"
		}
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		if errors.Is(transport.Err, context.DeadlineExceeded) {
			return "timeout"
		}
		var netErr net.Error
		if errors.As(transport.Err, &netErr) && netErr.Timeout() {
			return "timeout"
		}
		var opErr *net.OpError
		if errors.As(transport.Err, &opErr) {
			return "connection"
		}
		return "transport"
	}

	return "other"
}
