package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrRetryExhausted marks a scrape that failed on every attempt.
	ErrRetryExhausted = errors.New("scrape failed")
	// ErrTimeout marks a scrape abandoned by the caller's wall-clock bound.
	ErrTimeout = errors.New("scrape timeout - operation took too long")
)

// TransportError is a failed GET that never produced a response
// (timeout, connection reset, DNS failure).
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

// StatusError is a response with a status other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Kind groups errors by how a caller should report them.
type Kind string

// Error kinds returned by Classify.
const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindDNS        Kind = "dns"
	KindStatus     Kind = "status"
	KindUnknown    Kind = "unknown"
)

// Classify maps an error chain to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return KindStatus
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "socket hang up"):
		return KindConnection
	case strings.Contains(msg, "no such host"):
		return KindDNS
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	}
	return KindUnknown
}
