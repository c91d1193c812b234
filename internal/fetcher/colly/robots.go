package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsRetryDelays are the pauses between robots.txt retries.
var robotsRetryDelays = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport retries robots.txt requests that fail with a transient
// handshake error and answers allow-all once the retries run out. All other
// requests pass straight through to base.
type robotsTransport struct {
	base   http.RoundTripper
	delays []time.Duration
	logger *zap.Logger
}

func newRobotsTransport(base http.RoundTripper, logger *zap.Logger) *robotsTransport {
	return &robotsTransport{base: base, delays: robotsRetryDelays, logger: logger}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}

	var resp *http.Response
	attempts := 0
	operation := func() error {
		attempts++
		r, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err != nil {
			if !isTransientTLSError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}
	policy := backoff.WithContext(&scheduleBackOff{delays: t.delays}, req.Context())
	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		return resp, nil
	case req.Context().Err() == nil && isTransientTLSError(err):
		t.logger.Warn("robots.txt unreachable, treating as allow-all",
			zap.String("url", req.URL.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return allowAllResponse(req), nil
	default:
		return nil, fmt.Errorf("robots roundtrip: %w", err)
	}
}

// scheduleBackOff walks a fixed list of delays and then stops.
type scheduleBackOff struct {
	delays []time.Duration
	next   int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() {
	b.next = 0
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
