package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/config"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

func TestServer_Scrape_Succeeds(t *testing.T) {
	t.Parallel()

	fake := &fakeScraper{result: scraper.ScrapeResult{
		Success:     true,
		RunID:       "run-1",
		Attempts:    1,
		Tournaments: []scraper.Tournament{{ID: 1, Name: "Leeds Open"}, {ID: 2, Name: "York Classic"}},
		TotalCount:  2,
	}}
	server := newTestServer(fake, config.AuthConfig{})

	body := `{"searchParams":{"name":"Open","date":"2025-08-08"},"scrapeAllPages":true,"maxPages":3}`
	rec := postScrape(t, server, body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp scrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Successfully scraped 2 tournaments", resp.Message)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Len(t, resp.Data.Tournaments, 2)

	opts, d := fake.last()
	require.NotNil(t, opts.SearchParams)
	assert.Equal(t, "Open", opts.SearchParams.Name)
	assert.True(t, opts.ScrapeAllPages)
	assert.Equal(t, 3, opts.MaxPages)
	assert.Equal(t, 1, opts.Page)
	assert.True(t, opts.SaveResults)
	assert.Equal(t, time.Minute, d)
}

func TestServer_Scrape_AppliesDefaults(t *testing.T) {
	t.Parallel()

	fake := &fakeScraper{result: scraper.ScrapeResult{Success: true}}
	server := newTestServer(fake, config.AuthConfig{})

	rec := postScrape(t, server, `{"saveResults":false,"page":0,"maxPages":-2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	opts, _ := fake.last()
	assert.Nil(t, opts.SearchParams)
	assert.False(t, opts.SaveResults)
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, 10, opts.MaxPages)
	assert.Contains(t, rec.Body.String(), "Successfully scraped 0 tournaments")
}

func TestServer_Scrape_InvalidJSON(t *testing.T) {
	t.Parallel()

	fake := &fakeScraper{}
	server := newTestServer(fake, config.AuthConfig{})

	rec := postScrape(t, server, "{invalid", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
	assert.Zero(t, fake.callCount())
}

func TestServer_Scrape_FailureStatusMapping(t *testing.T) {
	t.Parallel()

	exhausted := func(err error) error {
		return fmt.Errorf("%w after 3 attempts: %w", scraper.ErrRetryExhausted, err)
	}
	dnsErr := &scraper.TransportError{
		URL: "https://www.dartsatlas.com",
		Err: &net.DNSError{Err: "no such host", Name: "www.dartsatlas.com", IsNotFound: true},
	}
	resetErr := &scraper.TransportError{URL: "https://www.dartsatlas.com", Err: syscall.ECONNRESET}
	statusErr := &scraper.StatusError{URL: "https://www.dartsatlas.com", StatusCode: http.StatusBadGateway}

	tests := []struct {
		name       string
		result     scraper.ScrapeResult
		err        error
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{
			name:       "timeout",
			err:        scraper.ErrTimeout,
			wantStatus: http.StatusRequestTimeout,
			wantError:  msgTimeout,
			wantMsg:    "Internal server error",
		},
		{
			name:       "dns failure",
			result:     failedResult(exhausted(dnsErr)),
			wantStatus: http.StatusServiceUnavailable,
			wantError:  msgDNS,
			wantMsg:    "Scraping failed",
		},
		{
			name:       "connection reset",
			result:     failedResult(exhausted(resetErr)),
			wantStatus: http.StatusServiceUnavailable,
			wantError:  msgConnection,
			wantMsg:    "Scraping failed",
		},
		{
			name:       "other failure",
			result:     failedResult(exhausted(statusErr)),
			wantStatus: http.StatusInternalServerError,
			wantError:  exhausted(statusErr).Error(),
			wantMsg:    "Scraping failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(&fakeScraper{result: tc.result, err: tc.err}, config.AuthConfig{})
			rec := postScrape(t, server, `{}`, nil)

			require.Equal(t, tc.wantStatus, rec.Code)
			var resp scrapeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tc.wantError, resp.Error)
			assert.Equal(t, tc.wantMsg, resp.Message)
			assert.Nil(t, resp.Data)
		})
	}
}

func TestServer_Describe(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{}, config.AuthConfig{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scrape", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Darts Atlas Scraper API", body["message"])
	example, ok := body["example"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, example["method"])
	assert.Contains(t, rec.Body.String(), `"radius":"50mi"`)
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{}, config.AuthConfig{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	notReady := NewServer(nil, config.Config{}, zap.NewNop())
	rec := httptest.NewRecorder()
	notReady.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{}, config.AuthConfig{})
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	fake := &fakeScraper{result: scraper.ScrapeResult{Success: true}}
	server := newTestServer(fake, config.AuthConfig{Enabled: true, APIKey: "secret"})

	rec := postScrape(t, server, `{}`, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, fake.callCount())

	rec = postScrape(t, server, `{}`, map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := newTestServer(panicScraper{}, config.AuthConfig{})
	rec := postScrape(t, server, `{}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{}, config.AuthConfig{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

// --- helpers/fakes ---

type fakeScraper struct {
	mu     sync.Mutex
	result scraper.ScrapeResult
	err    error
	calls  []scraper.Options
	limits []time.Duration
}

func (f *fakeScraper) ScrapeWithTimeout(_ context.Context, opts scraper.Options, d time.Duration) (scraper.ScrapeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	f.limits = append(f.limits, d)
	if f.err != nil {
		return scraper.ScrapeResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeScraper) last() (scraper.Options, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return scraper.Options{}, 0
	}
	return f.calls[len(f.calls)-1], f.limits[len(f.limits)-1]
}

func (f *fakeScraper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type panicScraper struct{}

func (panicScraper) ScrapeWithTimeout(context.Context, scraper.Options, time.Duration) (scraper.ScrapeResult, error) {
	panic("boom")
}

func failedResult(cause error) scraper.ScrapeResult {
	return scraper.ScrapeResult{
		Success:     false,
		Attempts:    3,
		Tournaments: []scraper.Tournament{},
		AllPages:    []scraper.PageResult{},
		Error:       cause.Error(),
		Cause:       cause,
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(scr Scraper, auth config.AuthConfig) *Server {
	cfg := config.Config{
		Auth: auth,
		Scraper: config.ScraperConfig{
			ScrapeTimeout:   time.Minute,
			MaxPagesDefault: 10,
		},
	}
	return NewServer(scr, cfg, zap.NewNop())
}

func postScrape(t *testing.T, server *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
