// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeAttemptsTotal        *prometheus.CounterVec
	scrapeRunsTotal            *prometheus.CounterVec
	pagesTotal                 *prometheus.CounterVec
	tournamentsExtractedTotal  prometheus.Counter
	entriesLookupsTotal        *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_attempts_total",
				Help: "Scrape attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Completed scrape invocations, labeled by status.",
			},
			[]string{"status"},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Result pages processed, labeled by status.",
			},
			[]string{"status"},
		)

		tournamentsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_tournaments_extracted_total",
				Help: "Tournament records extracted from result pages.",
			},
		)

		entriesLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_entries_lookups_total",
				Help: "Entries page lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies, labeled by site and status.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 300},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveAttempt counts one scrape attempt ("success" or "failure").
func ObserveAttempt(outcome string) {
	Init()
	scrapeAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun counts one finished scrape invocation.
func ObserveRun(status string) {
	Init()
	scrapeRunsTotal.WithLabelValues(status).Inc()
}

// ObservePage counts one processed result page and the records it yielded.
func ObservePage(status string, tournaments int) {
	Init()
	pagesTotal.WithLabelValues(status).Inc()
	if tournaments > 0 {
		tournamentsExtractedTotal.Add(float64(tournaments))
	}
}

// ObserveEntriesLookup counts one entries page lookup ("found", "missing" or "error").
func ObserveEntriesLookup(outcome string) {
	Init()
	entriesLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the latency of one outbound fetch.
func ObserveFetch(rawURL, status string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(SanitizeSite(rawURL), status).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
