// Package collyfetcher implements scoped fetch sessions using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// DefaultUserAgent mimics a desktop Chrome browser.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultTimeout = 30 * time.Second

// ErrSessionClosed is returned by Fetch after Close.
var ErrSessionClosed = errors.New("fetch session closed")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Factory opens colly-backed sessions.
type Factory struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Factory.
func New(cfg Config, logger *zap.Logger) *Factory {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// NewSession returns a session with its own connection pool and cookie jar.
func (f *Factory) NewSession(_ context.Context) (scraper.Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	transport := newHTTPTransport()
	var rt http.RoundTripper = transport
	if f.cfg.RespectRobots {
		rt = newRobotsTransport(transport, f.logger)
	}
	return &Session{
		cfg:          f.cfg,
		transport:    transport,
		roundTripper: rt,
		jar:          jar,
		logger:       f.logger,
	}, nil
}

// Session issues sequential GETs that share one transport and cookie jar.
type Session struct {
	cfg          Config
	transport    *http.Transport
	roundTripper http.RoundTripper
	jar          http.CookieJar
	logger       *zap.Logger

	mu     sync.Mutex
	closed bool
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Fetch executes a single HTTP GET. Anything other than 200 OK is an error.
func (s *Session) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	if s.isClosed() {
		return scraper.FetchResponse{}, ErrSessionClosed
	}
	var (
		result   scraper.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := s.buildCollector(ctx, request)
	s.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	if err := runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		metrics.ObserveFetch(request.URL, "transport_error", time.Since(start))
		return scraper.FetchResponse{}, &scraper.TransportError{URL: request.URL, Err: err}
	}
	if result.StatusCode != http.StatusOK {
		metrics.ObserveFetch(request.URL, "status_error", time.Since(start))
		return scraper.FetchResponse{}, &scraper.StatusError{URL: request.URL, StatusCode: result.StatusCode}
	}
	metrics.ObserveFetch(request.URL, "ok", result.Duration)
	s.logger.Debug("page fetched",
		zap.String("url", result.URL),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// Close releases pooled connections. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.transport.CloseIdleConnections()
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// buildCollector creates a collector per request so timeouts and contexts
// never leak between requests; the transport and jar are shared.
func (s *Session) buildCollector(ctx context.Context, request scraper.FetchRequest) *colly.Collector {
	collector := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.StdlibContext(ctx),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
	)
	collector.IgnoreRobotsTxt = !s.cfg.RespectRobots
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(s.roundTripper)
	collector.SetCookieJar(s.jar)
	return collector
}

func (s *Session) configureCollectorHooks(
	hooks collectorHooks,
	request scraper.FetchRequest,
	start time.Time,
	result *scraper.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		setBrowserHeaders(r.Headers)
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = scraper.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// setBrowserHeaders sets the headers a desktop browser sends on navigation.
// Accept-Encoding is left to net/http so gzip is decoded transparently.
func setBrowserHeaders(h *http.Header) {
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
}

func copyHeaders(src http.Header, r *colly.Request) {
	for key, values := range src {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
