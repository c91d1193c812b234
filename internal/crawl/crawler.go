// Package crawl fetches search result pages and walks pagination.
package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/extract"
	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// DefaultMaxPages bounds a crawl when the caller does not.
const DefaultMaxPages = 10

// Config holds crawler configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Crawler scrapes single pages and whole result sets.
type Crawler struct {
	cfg       Config
	extractor *extract.Extractor
	logger    *zap.Logger
}

// New creates a new Crawler.
func New(cfg Config, extractor *extract.Extractor, logger *zap.Logger) *Crawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = scraper.DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, extractor: extractor, logger: logger}
}

// ScrapePage fetches page n of searchURL and extracts its records and paging
// state. On failure the returned PageResult still carries the page number,
// default pagination and the error message.
func (c *Crawler) ScrapePage(ctx context.Context, f scraper.Fetcher, searchURL string, n int) (scraper.PageResult, error) {
	if n < 1 {
		n = 1
	}
	result := scraper.PageResult{
		PageNumber:     n,
		URL:            searchURL,
		Tournaments:    []scraper.Tournament{},
		PaginationInfo: failedPagination(n),
	}

	pageURL, err := scraper.PageURL(searchURL, n)
	if err != nil {
		result.Error = err.Error()
		metrics.ObservePage("error", 0)
		return result, err
	}
	result.URL = pageURL

	c.logger.Info("scraping page", zap.Int("page", n), zap.String("url", pageURL))
	resp, err := f.Fetch(ctx, scraper.FetchRequest{URL: pageURL, Timeout: c.cfg.RequestTimeout})
	if err != nil {
		c.logger.Warn("page fetch failed", zap.Int("page", n), zap.String("url", pageURL), zap.Error(err))
		result.Error = err.Error()
		metrics.ObservePage("error", 0)
		return result, fmt.Errorf("scrape page %d: %w", n, err)
	}

	html := string(resp.Body)
	result.Tournaments = c.extractor.Tournaments(html)
	result.PaginationInfo = c.extractor.Pagination(html)
	metrics.ObservePage("ok", len(result.Tournaments))
	return result, nil
}

// ScrapeAllPages walks the result set for params starting at page 1. It stops
// when a page reports no next page, when the page counter reaches the
// reported total, after maxPages fetches, or on the first page failure. A
// failure is reported in CrawlResult.Error together with everything gathered
// so far.
func (c *Crawler) ScrapeAllPages(ctx context.Context, f scraper.Fetcher, params scraper.SearchParams, maxPages int) scraper.CrawlResult {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	result := scraper.CrawlResult{
		Tournaments: []scraper.Tournament{},
		Pages:       []scraper.PageResult{},
	}

	searchURL, err := scraper.BuildSearchURL(c.cfg.BaseURL, params)
	if err != nil {
		result.Error = err.Error()
		result.Cause = err
		return result
	}

	c.logger.Info("crawling result pages", zap.String("url", searchURL), zap.Int("max_pages", maxPages))
	for page := 1; ; page++ {
		pr, err := c.ScrapePage(ctx, f, searchURL, page)
		result.Pages = append(result.Pages, pr)
		result.Tournaments = append(result.Tournaments, pr.Tournaments...)
		if err != nil {
			result.Error = err.Error()
			result.Cause = err
			break
		}

		info := pr.PaginationInfo
		if !info.HasNextPage || page >= info.TotalPages || page >= maxPages {
			break
		}
	}

	result.TotalPages = len(result.Pages)
	result.TotalTournaments = len(result.Tournaments)
	c.logger.Info("crawl finished",
		zap.Int("pages", result.TotalPages),
		zap.Int("tournaments", result.TotalTournaments),
		zap.Bool("partial", result.Error != ""),
	)
	return result
}

func failedPagination(n int) scraper.PaginationInfo {
	info := scraper.DefaultPagination()
	info.CurrentPage = n
	return info
}
