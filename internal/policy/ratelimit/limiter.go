// Package ratelimit spaces outbound requests with a token bucket. It is the
// single place where delays between page and entries fetches are applied.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum spacing between requests. Zero disables limiting.
	Interval time.Duration
	Burst    int
}

// Limiter hands out one token per Interval.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Inf
	if cfg.Interval > 0 {
		r = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(metrics.SanitizeSite(rawURL), waited)
	}
	return nil
}

// Fetcher consults the limiter before every request it delegates.
type Fetcher struct {
	next    scraper.Fetcher
	limiter *Limiter
}

// Wrap returns next paced by l.
func Wrap(next scraper.Fetcher, l *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: l}
}

// Fetch waits for a token and then performs the request.
func (f *Fetcher) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, request.URL); err != nil {
		return scraper.FetchResponse{}, err
	}
	resp, err := f.next.Fetch(ctx, request)
	if err != nil {
		return scraper.FetchResponse{}, fmt.Errorf("paced fetch: %w", err)
	}
	return resp, nil
}
