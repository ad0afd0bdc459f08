package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/model"
)

// HTTPProbe is the lightweight default probe: a single GET with
// redirect-following and bounded connect-error retries at the transport
// layer. Availability is 200 <= status < 400.
type HTTPProbe struct {
	client  *http.Client
	retries int
	logger  *zap.Logger
}

// NewHTTPProbe builds an HTTPProbe with the given transport-level retry
// count for transient connect errors (retries never apply to HTTP status
// errors, per spec.md §4.2).
func NewHTTPProbe(retries int, logger *zap.Logger) *HTTPProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	return &HTTPProbe{
		client: &http.Client{
			Transport: &retryTransport{base: http.DefaultTransport, retries: retries},
			// CheckRedirect left nil: net/http follows redirects by default.
		},
		retries: retries,
		logger:  logger,
	}
}

// Check issues a single GET to target.URL, honoring ctx's deadline. It never
// returns a Go error: unexpected failures are folded into the Outcome with
// error-kind "unexpected" per spec.md §4.1 item 3.
func (p *HTTPProbe) Check(ctx context.Context, target model.Target) Outcome {
	observedAt := time.Now().UTC()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return Outcome{
			Available: false, ErrorKind: model.ErrorKindUnexpected,
			ErrorDetail: "build request: " + err.Error(), ObservedAt: observedAt,
		}
	}

	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Outcome{
			Available:      false,
			ResponseTimeMs: float64(elapsed.Microseconds()) / 1000,
			ErrorKind:      classifyHTTPError(err),
			ErrorDetail:    err.Error(),
			ObservedAt:     observedAt,
		}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	status := resp.StatusCode
	available := status >= 200 && status < 400
	out := Outcome{
		Available:      available,
		Status:         &status,
		ResponseTimeMs: float64(elapsed.Microseconds()) / 1000,
		ObservedAt:     observedAt,
	}
	if !available {
		out.ErrorDetail = resp.Status
	}
	return out
}

// classifyHTTPError maps a transport error to the spec.md §4.2 taxonomy:
// timeout, connect (refused/reset/DNS), or protocol (malformed response).
func classifyHTTPError(err error) model.ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrorKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.ErrorKindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return model.ErrorKindConnect
	}

	return model.ErrorKindProtocol
}

// retryTransport wraps an http.RoundTripper and retries a bounded number of
// times on transient connect errors only, not on HTTP status responses —
// any non-nil *http.Response is returned immediately regardless of status.
// Backoff shape mirrors the teacher's resolvedRetryPolicy.nextRetryDelay
// (internal/controlplane/jobs/retry.go), fixed to small linear steps here
// since these are reconnects inside one probe's own timeout budget, not
// scheduler-level re-dispatches.
type retryTransport struct {
	base    http.RoundTripper
	retries int
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransientConnectError(err) {
			return nil, err
		}
		if attempt == t.retries {
			break
		}
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func isTransientConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
