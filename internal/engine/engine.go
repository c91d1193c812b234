// Package engine runs one scrape invocation end to end: it opens a fresh
// session per attempt, probes the target, dispatches to the right scrape
// mode and retries the whole attempt on failure.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/crawl"
	"github.com/JakeFAU/dartsatlas-scraper/internal/entries"
	"github.com/JakeFAU/dartsatlas-scraper/internal/extract"
	"github.com/JakeFAU/dartsatlas-scraper/internal/id/uuid"
	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// MaxAttempts is the fixed number of attempts per invocation.
const MaxAttempts = 3

const (
	defaultProbeTimeout  = 10 * time.Second
	defaultScrapeTimeout = 5 * time.Minute
)

// Config holds engine configuration.
type Config struct {
	BaseURL         string
	ProbeTimeout    time.Duration
	RequestTimeout  time.Duration
	RetryCooldown   time.Duration
	ScrapeTimeout   time.Duration
	MaxPagesDefault int
	RateLimit       ratelimit.Config
}

// Engine is the retry controller around a scrape invocation.
type Engine struct {
	cfg       Config
	sessions  scraper.SessionFactory
	extractor *extract.Extractor
	crawler   *crawl.Crawler
	enricher  *entries.Enricher
	sink      scraper.ResultSink
	ids       scraper.IDGenerator
	logger    *zap.Logger
}

// New creates a new Engine. sink may be nil, in which case results are never
// persisted.
func New(
	cfg Config,
	sessions scraper.SessionFactory,
	extractor *extract.Extractor,
	sink scraper.ResultSink,
	ids scraper.IDGenerator,
	logger *zap.Logger,
) *Engine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = scraper.DefaultBaseURL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = defaultScrapeTimeout
	}
	if cfg.MaxPagesDefault <= 0 {
		cfg.MaxPagesDefault = crawl.DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.New(nil, logger.Named("extract"))
	}
	if ids == nil {
		ids = uuid.New()
	}
	return &Engine{
		cfg:       cfg,
		sessions:  sessions,
		extractor: extractor,
		crawler:   crawl.New(crawl.Config{BaseURL: cfg.BaseURL, RequestTimeout: cfg.RequestTimeout}, extractor, logger.Named("crawl")),
		enricher:  entries.New(entries.Config{BaseURL: cfg.BaseURL, RequestTimeout: cfg.RequestTimeout}, logger.Named("entries")),
		sink:      sink,
		ids:       ids,
		logger:    logger,
	}
}

// Scrape runs up to MaxAttempts attempts of opts with a fixed cool-down in
// between. It never returns an error; failures are reported in the result.
func (e *Engine) Scrape(ctx context.Context, opts scraper.Options) scraper.ScrapeResult {
	runID, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("run id generation failed", zap.Error(err))
	}
	logger := e.logger.With(zap.String("run_id", runID))

	var (
		result  scraper.ScrapeResult
		attempt int
		lastErr error
	)
	operation := func() error {
		attempt++
		logger.Info("starting scrape attempt", zap.Int("attempt", attempt), zap.Int("max_attempts", MaxAttempts))
		res, err := e.attempt(ctx, opts, logger)
		if err != nil {
			metrics.ObserveAttempt("failure")
			lastErr = err
			return err
		}
		metrics.ObserveAttempt("success")
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("scrape attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("cooldown", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.RetryCooldown), MaxAttempts-1),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		cause := fmt.Errorf("%w after %d attempts: %w", scraper.ErrRetryExhausted, attempt, lastErr)
		logger.Error("scrape failed", zap.Int("attempts", attempt), zap.Error(lastErr))
		metrics.ObserveRun("failure")
		return failure(runID, attempt, cause)
	}

	result.RunID = runID
	result.Attempts = attempt
	if opts.SaveResults && e.sink != nil {
		result.SavedTo = e.save(ctx, runID, opts, result.Tournaments, logger)
	}

	status := "success"
	if result.PartialError != "" {
		status = "partial"
	}
	metrics.ObserveRun(status)
	logger.Info("scrape finished", zap.Int("attempts", attempt), zap.Int("tournaments", result.TotalCount), zap.String("status", status))
	return result
}

// ScrapeWithTimeout races Scrape against d. When d elapses first the scrape's
// context is canceled, aborting in-flight fetches, and scraper.ErrTimeout is
// returned. A non-positive d uses the configured scrape timeout.
func (e *Engine) ScrapeWithTimeout(ctx context.Context, opts scraper.Options, d time.Duration) (scraper.ScrapeResult, error) {
	if d <= 0 {
		d = e.cfg.ScrapeTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan scraper.ScrapeResult, 1)
	go func() {
		done <- e.Scrape(ctx, opts)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-done:
		return res, nil
	case <-timer.C:
		cancel()
		e.logger.Warn("scrape timed out", zap.Duration("timeout", d))
		metrics.ObserveRun("timeout")
		return scraper.ScrapeResult{}, scraper.ErrTimeout
	case <-ctx.Done():
		return scraper.ScrapeResult{}, fmt.Errorf("scrape aborted: %w", ctx.Err())
	}
}

// attempt runs one full scrape on a fresh session.
func (e *Engine) attempt(ctx context.Context, opts scraper.Options, logger *zap.Logger) (res scraper.ScrapeResult, err error) {
	session, err := e.sessions.NewSession(ctx)
	if err != nil {
		return scraper.ScrapeResult{}, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	f := ratelimit.Wrap(session, ratelimit.New(e.cfg.RateLimit))
	e.probe(ctx, f, logger)

	switch {
	case opts.ScrapeAllPages:
		res, err = e.scrapeAll(ctx, f, opts)
	case opts.SearchParams != nil:
		res, err = e.scrapeSearch(ctx, f, opts)
	default:
		res, err = e.scrapeDefault(ctx, f, opts)
	}
	if err != nil {
		return scraper.ScrapeResult{}, err
	}

	if opts.IncludeEntries && len(res.Tournaments) > 0 {
		res.Tournaments = e.enricher.Enrich(ctx, f, res.Tournaments)
	}
	res.Success = true
	res.TotalCount = len(res.Tournaments)
	return res, nil
}

// probe checks that the target answers. The outcome is only logged.
func (e *Engine) probe(ctx context.Context, f scraper.Fetcher, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	resp, err := f.Fetch(ctx, scraper.FetchRequest{URL: e.cfg.BaseURL, Timeout: e.cfg.ProbeTimeout})
	if err != nil {
		logger.Warn("target may not be accessible, continuing", zap.String("url", e.cfg.BaseURL), zap.Error(err))
		return
	}
	logger.Debug("connectivity probe ok", zap.Int("status", resp.StatusCode), zap.Duration("duration", resp.Duration))
}

func (e *Engine) scrapeAll(ctx context.Context, f scraper.Fetcher, opts scraper.Options) (scraper.ScrapeResult, error) {
	var params scraper.SearchParams
	if opts.SearchParams != nil {
		params = *opts.SearchParams
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = e.cfg.MaxPagesDefault
	}

	// A failed page, even the first, ends the crawl but not the attempt; the
	// failure travels in PartialError.
	crawled := e.crawler.ScrapeAllPages(ctx, f, params, maxPages)
	if err := ctx.Err(); err != nil {
		return scraper.ScrapeResult{}, fmt.Errorf("crawl aborted: %w", err)
	}

	pagination := scraper.DefaultPagination()
	pagination.TotalPages = max(crawled.TotalPages, 1)
	pagination.TotalTournaments = crawled.TotalTournaments
	for i := len(crawled.Pages) - 1; i >= 0; i-- {
		if crawled.Pages[i].Error == "" {
			pagination.TotalResults = crawled.Pages[i].PaginationInfo.TotalResults
			break
		}
	}

	return scraper.ScrapeResult{
		Tournaments:    crawled.Tournaments,
		PaginationInfo: &pagination,
		AllPages:       crawled.Pages,
		PartialError:   crawled.Error,
	}, nil
}

func (e *Engine) scrapeSearch(ctx context.Context, f scraper.Fetcher, opts scraper.Options) (scraper.ScrapeResult, error) {
	searchURL, err := scraper.BuildSearchURL(e.cfg.BaseURL, *opts.SearchParams)
	if err != nil {
		return scraper.ScrapeResult{}, err
	}
	page := max(opts.Page, 1)

	pr, err := e.crawler.ScrapePage(ctx, f, searchURL, page)
	if err != nil {
		return scraper.ScrapeResult{}, err
	}
	pagination := pr.PaginationInfo
	pagination.CurrentPage = page
	return scraper.ScrapeResult{
		Tournaments:    pr.Tournaments,
		PaginationInfo: &pagination,
		AllPages:       []scraper.PageResult{},
	}, nil
}

func (e *Engine) scrapeDefault(ctx context.Context, f scraper.Fetcher, opts scraper.Options) (scraper.ScrapeResult, error) {
	page := max(opts.Page, 1)
	pageURL, err := scraper.PageURL(e.cfg.BaseURL, page)
	if err != nil {
		return scraper.ScrapeResult{}, err
	}

	resp, err := f.Fetch(ctx, scraper.FetchRequest{URL: pageURL, Timeout: e.cfg.RequestTimeout})
	if err != nil {
		return scraper.ScrapeResult{}, fmt.Errorf("fetch default page: %w", err)
	}

	html := string(resp.Body)
	tournaments := e.extractor.Tournaments(html)
	metrics.ObservePage("ok", len(tournaments))
	info := e.extractor.PageInfo(html, pageURL)
	pagination := e.extractor.Pagination(html)
	pagination.CurrentPage = page
	return scraper.ScrapeResult{
		Tournaments:    tournaments,
		PageInfo:       &info,
		PaginationInfo: &pagination,
		AllPages:       []scraper.PageResult{},
	}, nil
}

// save persists results. A failure is logged and leaves the location empty.
func (e *Engine) save(ctx context.Context, runID string, opts scraper.Options, records []scraper.Tournament, logger *zap.Logger) string {
	uri, err := e.sink.Save(ctx, scraper.SaveRequest{
		RunID:       runID,
		Filename:    opts.Filename,
		Source:      e.cfg.BaseURL,
		Tournaments: records,
	})
	if err != nil {
		logger.Error("saving results failed", zap.Error(err))
		return ""
	}
	logger.Info("results saved", zap.String("uri", uri))
	return uri
}

func failure(runID string, attempts int, cause error) scraper.ScrapeResult {
	return scraper.ScrapeResult{
		Success:     false,
		RunID:       runID,
		Attempts:    attempts,
		Tournaments: []scraper.Tournament{},
		AllPages:    []scraper.PageResult{},
		Error:       cause.Error(),
		Cause:       cause,
	}
}
