package engine

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/extract"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

const base = "https://www.dartsatlas.com/search?scope=tournaments"

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, time.May, 10, 9, 0, 0, 0, time.UTC) }

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

// fakeFactory hands out sessions backed by a shared handler and counts
// session lifecycle events.
type fakeFactory struct {
	handler func(ctx context.Context, attempt int, rawURL string) (string, error)
	openErr error

	mu      sync.Mutex
	opened  int
	closed  int
	fetched []string
}

func (f *fakeFactory) NewSession(context.Context) (scraper.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeSession{factory: f, attempt: f.opened}, nil
}

type fakeSession struct {
	factory *fakeFactory
	attempt int
}

func (s *fakeSession) Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.FetchResponse, error) {
	s.factory.mu.Lock()
	s.factory.fetched = append(s.factory.fetched, req.URL)
	s.factory.mu.Unlock()

	body, err := s.factory.handler(ctx, s.attempt, req.URL)
	if err != nil {
		return scraper.FetchResponse{}, err
	}
	return scraper.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func (s *fakeSession) Close() error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	s.factory.closed++
	return nil
}

type fakeSink struct {
	err  error
	reqs []scraper.SaveRequest
}

func (s *fakeSink) Save(_ context.Context, req scraper.SaveRequest) (string, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return "", s.err
	}
	return "memory://results/" + req.Filename, nil
}

const listingPage = `<html><head><title>Darts Atlas</title></head><body>
<div class="results-count">2 results</div>
<section class="event">
  <div class="calendar-event-icon"><span>Sat</span><span>Aug</span><span>23</span></div>
  <h3>Summer Open</h3>
  <div class="venue-embed"><a href="/venues/kings-arms">Kings Arms</a> 123 High St</div>
  <a class="tournament event-link" href="/tournaments/summer-open">View</a>
</section>
<section class="event">
  <div class="calendar-event-icon"><span>Sun</span><span>Sep</span><span>7</span></div>
  <h3>Autumn Classic</h3>
  <div class="venue-embed"><a href="/venues/red-lion">Red Lion</a> 9 Market Square</div>
  <a class="tournament event-link" href="/tournaments/autumn-classic">View</a>
</section>
</body></html>`

func newTestEngine(factory scraper.SessionFactory, sink scraper.ResultSink) *Engine {
	return New(Config{BaseURL: base}, factory, extract.New(fixedClock{}, zap.NewNop()), sink, staticIDs{}, zap.NewNop())
}

func alwaysListing(context.Context, int, string) (string, error) { return listingPage, nil }

func TestScrapeDefaultPage(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{handler: alwaysListing}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 2, res.TotalCount)
	require.NotNil(t, res.PageInfo)
	assert.Equal(t, "Darts Atlas", res.PageInfo.Title)
	assert.Equal(t, "2 results", res.PageInfo.TotalResults)
	require.NotNil(t, res.PaginationInfo)
	assert.Equal(t, 1, res.PaginationInfo.CurrentPage)
	assert.Equal(t, 2, res.PaginationInfo.TotalResults)
	assert.NotNil(t, res.AllPages)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, factory.opened)
	assert.Equal(t, 1, factory.closed)
	// probe plus the page itself
	assert.Len(t, factory.fetched, 2)
}

func TestScrapePermanentFailureExhaustsAttempts(t *testing.T) {
	t.Parallel()

	dnsErr := &net.DNSError{Err: "no such host", Name: "www.dartsatlas.com", IsNotFound: true}
	factory := &fakeFactory{handler: func(_ context.Context, _ int, rawURL string) (string, error) {
		return "", &scraper.TransportError{URL: rawURL, Err: dnsErr}
	}}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{})

	assert.False(t, res.Success)
	assert.Equal(t, MaxAttempts, res.Attempts)
	assert.True(t, strings.HasPrefix(res.Error, "scrape failed after 3 attempts: "), res.Error)
	assert.True(t, errors.Is(res.Cause, scraper.ErrRetryExhausted))
	assert.Equal(t, scraper.KindDNS, scraper.Classify(res.Cause))
	assert.Empty(t, res.Tournaments)
	assert.Nil(t, res.PageInfo)
	assert.Nil(t, res.PaginationInfo)
	assert.Equal(t, 3, factory.opened)
	assert.Equal(t, 3, factory.closed)
}

func TestScrapeRecoversOnRetry(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{handler: func(_ context.Context, attempt int, rawURL string) (string, error) {
		if attempt == 1 {
			return "", &scraper.StatusError{URL: rawURL, StatusCode: 502}
		}
		return listingPage, nil
	}}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{})

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, factory.opened)
	assert.Equal(t, 2, factory.closed)
}

func TestScrapeSessionOpenFailureCountsAsAttempt(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{openErr: errors.New("no browser")}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{})
	assert.False(t, res.Success)
	assert.Equal(t, 3, factory.opened)
	assert.Contains(t, res.Error, "no browser")
}

func TestScrapeSearchSinglePage(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{handler: alwaysListing}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{
		SearchParams: &scraper.SearchParams{Location: "Leeds", Date: "2025-08-23", StartDate: "2025-08-01"},
		Page:         3,
	})

	require.True(t, res.Success)
	assert.Nil(t, res.PageInfo)
	require.NotNil(t, res.PaginationInfo)
	assert.Equal(t, 3, res.PaginationInfo.CurrentPage)

	pageURL, err := url.Parse(factory.fetched[len(factory.fetched)-1])
	require.NoError(t, err)
	q := pageURL.Query()
	assert.Equal(t, "Leeds", q.Get("location"))
	assert.Equal(t, "2025-08-23", q.Get("date"))
	assert.Empty(t, q.Get("startDate"))
	assert.Equal(t, "3", q.Get("page"))
}

func TestScrapeAllPagesPartialIsSuccess(t *testing.T) {
	t.Parallel()

	nav := `<ul class="pagination"><li class="active">1</li><li><a href="?page=4">4</a></li><li><a class="next" href="?page=2">Next</a></li></ul>`
	factory := &fakeFactory{handler: func(_ context.Context, _ int, rawURL string) (string, error) {
		if strings.Contains(rawURL, "page=2") {
			return "", &scraper.StatusError{URL: rawURL, StatusCode: 500}
		}
		return strings.Replace(listingPage, "</body>", nav+"</body>", 1), nil
	}}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{ScrapeAllPages: true})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, res.AllPages, 2)
	assert.Equal(t, 2, res.TotalCount)
	assert.Contains(t, res.PartialError, "500")
	require.NotNil(t, res.PaginationInfo)
	assert.Equal(t, 2, res.PaginationInfo.TotalPages)
	assert.Equal(t, 2, res.PaginationInfo.TotalTournaments)
}

func TestScrapeAllPagesFirstPageFailureIsPartial(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{handler: func(_ context.Context, _ int, rawURL string) (string, error) {
		return "", &scraper.StatusError{URL: rawURL, StatusCode: 503}
	}}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{ScrapeAllPages: true, MaxPages: 2})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Tournaments)
	assert.Equal(t, 0, res.TotalCount)
	require.Len(t, res.AllPages, 1)
	assert.NotEmpty(t, res.AllPages[0].Error)
	assert.Contains(t, res.PartialError, "503")
	require.NotNil(t, res.PaginationInfo)
	assert.Equal(t, 1, res.PaginationInfo.TotalPages)
}

func TestScrapeIncludeEntries(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{handler: func(_ context.Context, _ int, rawURL string) (string, error) {
		switch {
		case strings.HasSuffix(rawURL, "/tournaments/summer-open/entries"):
			return `<html><body><p>32 players</p></body></html>`, nil
		case strings.HasSuffix(rawURL, "/entries"):
			return "", &scraper.StatusError{URL: rawURL, StatusCode: 404}
		}
		return listingPage, nil
	}}
	res := newTestEngine(factory, nil).Scrape(context.Background(), scraper.Options{IncludeEntries: true})

	require.True(t, res.Success)
	require.Len(t, res.Tournaments, 2)
	require.NotNil(t, res.Tournaments[0].EntriesCount)
	assert.Equal(t, 32, *res.Tournaments[0].EntriesCount)
	assert.Nil(t, res.Tournaments[1].EntriesCount)
}

func TestScrapeSavesResults(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	res := newTestEngine(&fakeFactory{handler: alwaysListing}, sink).Scrape(context.Background(), scraper.Options{
		SaveResults: true,
		Filename:    "out.json",
	})
	require.True(t, res.Success)
	assert.Equal(t, "memory://results/out.json", res.SavedTo)
	require.Len(t, sink.reqs, 1)
	assert.Equal(t, "run-1", sink.reqs[0].RunID)
	assert.Equal(t, base, sink.reqs[0].Source)
	assert.Len(t, sink.reqs[0].Tournaments, 2)
}

func TestScrapeSaveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{err: errors.New("bucket missing")}
	res := newTestEngine(&fakeFactory{handler: alwaysListing}, sink).Scrape(context.Background(), scraper.Options{SaveResults: true})
	assert.True(t, res.Success)
	assert.Empty(t, res.SavedTo)
	assert.Equal(t, 1, res.Attempts)
}

func TestScrapeWithTimeoutCancelsInFlightFetch(t *testing.T) {
	t.Parallel()

	var aborted atomic.Bool
	factory := &fakeFactory{handler: func(ctx context.Context, _ int, _ string) (string, error) {
		<-ctx.Done()
		aborted.Store(true)
		return "", ctx.Err()
	}}
	e := New(Config{BaseURL: base, ProbeTimeout: time.Hour}, factory, nil, nil, staticIDs{}, zap.NewNop())

	start := time.Now()
	_, err := e.ScrapeWithTimeout(context.Background(), scraper.Options{}, 50*time.Millisecond)
	require.ErrorIs(t, err, scraper.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Eventually(t, aborted.Load, time.Second, 10*time.Millisecond)
}

func TestScrapeWithTimeoutReturnsResult(t *testing.T) {
	t.Parallel()

	res, err := newTestEngine(&fakeFactory{handler: alwaysListing}, nil).
		ScrapeWithTimeout(context.Background(), scraper.Options{}, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Success)
}
