// Package entries looks up participant counts on tournament entries pages.
package entries

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// Config holds enricher configuration.
type Config struct {
	// BaseURL supplies the origin that relative detail links resolve against.
	BaseURL        string
	RequestTimeout time.Duration
}

// Enricher adds entriesCount to tournament records.
type Enricher struct {
	cfg        Config
	strategies []strategy
	logger     *zap.Logger
}

// New creates a new Enricher.
func New(cfg Config, logger *zap.Logger) *Enricher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = scraper.DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{cfg: cfg, strategies: defaultStrategies(), logger: logger}
}

// EntriesURL returns the entries page address for a detail link.
func (e *Enricher) EntriesURL(link string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", link, err)
	}
	ref.Path = strings.TrimRight(ref.Path, "/") + "/entries"
	ref.RawQuery = ""
	ref.Fragment = ""
	return scraper.ResolveLink(e.cfg.BaseURL, ref.String())
}

// FetchEntriesCount fetches the entries page behind link and returns the
// first positive count produced by the strategy chain. A zero count with a
// nil error means no strategy found anything.
func (e *Enricher) FetchEntriesCount(ctx context.Context, f scraper.Fetcher, link string) (int, error) {
	entriesURL, err := e.EntriesURL(link)
	if err != nil {
		return 0, err
	}

	resp, err := f.Fetch(ctx, scraper.FetchRequest{URL: entriesURL, Timeout: e.cfg.RequestTimeout})
	if err != nil {
		return 0, fmt.Errorf("fetch entries page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return 0, fmt.Errorf("parse entries page: %w", err)
	}

	for _, s := range e.strategies {
		if n := s.count(doc); n > 0 {
			e.logger.Debug("entries counted", zap.String("url", entriesURL), zap.String("strategy", s.name), zap.Int("count", n))
			return n, nil
		}
	}
	return 0, nil
}

// Enrich returns a copy of records with EntriesCount filled in where a count
// could be found. Records without a link, and records whose lookup fails,
// are returned unchanged. The input slice is not modified.
func (e *Enricher) Enrich(ctx context.Context, f scraper.Fetcher, records []scraper.Tournament) []scraper.Tournament {
	out := make([]scraper.Tournament, len(records))
	copy(out, records)

	for i := range out {
		if out[i].Link == "" {
			continue
		}
		if ctx.Err() != nil {
			e.logger.Warn("entries enrichment interrupted", zap.Int("remaining", len(out)-i), zap.Error(ctx.Err()))
			break
		}

		n, err := e.FetchEntriesCount(ctx, f, out[i].Link)
		switch {
		case err != nil:
			metrics.ObserveEntriesLookup("error")
			e.logger.Warn("entries lookup failed",
				zap.String("tournament", out[i].Name),
				zap.String("link", out[i].Link),
				zap.Error(err),
			)
		case n > 0:
			metrics.ObserveEntriesLookup("found")
			count := n
			out[i].EntriesCount = &count
		default:
			metrics.ObserveEntriesLookup("missing")
		}
	}
	return out
}
