package scraper

import (
	"net/http"
	"time"
)

// Tournament is one listing extracted from a search results page.
// ID is a page-local sequence number and resets on every page.
type Tournament struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	Time             string `json:"time"`
	Structure        string `json:"structure"`
	Status           string `json:"status"`
	Description      string `json:"description"`
	Link             string `json:"link"`
	Image            string `json:"image"`
	Date             string `json:"date,omitempty"`
	Day              string `json:"day,omitempty"`
	Month            string `json:"month,omitempty"`
	FullDate         string `json:"fullDate,omitempty"`
	Venue            string `json:"venue,omitempty"`
	VenueURL         string `json:"venueUrl,omitempty"`
	VenueAddress     string `json:"venueAddress,omitempty"`
	VenueFullAddress string `json:"venueFullAddress,omitempty"`
	EntriesCount     *int   `json:"entriesCount,omitempty"`
	RawHTMLSnippet   string `json:"rawHtmlSnippet"`
}

// PaginationInfo describes the paging state inferred from a results page.
type PaginationInfo struct {
	CurrentPage      int  `json:"currentPage"`
	TotalPages       int  `json:"totalPages"`
	HasNextPage      bool `json:"hasNextPage"`
	HasPrevPage      bool `json:"hasPrevPage"`
	TotalResults     int  `json:"totalResults"`
	TotalTournaments int  `json:"totalTournaments,omitempty"`
}

// DefaultPagination returns the paging state used when no signal is found.
func DefaultPagination() PaginationInfo {
	return PaginationInfo{CurrentPage: 1, TotalPages: 1}
}

// PageInfo carries descriptive metadata about the default search page.
type PageInfo struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Timestamp      string   `json:"timestamp"`
	TotalResults   string   `json:"totalResults"`
	CurrentFilters []string `json:"currentFilters"`
}

// PageResult is the outcome of scraping a single results page.
type PageResult struct {
	PageNumber     int            `json:"pageNumber"`
	URL            string         `json:"url"`
	Tournaments    []Tournament   `json:"tournaments"`
	PaginationInfo PaginationInfo `json:"paginationInfo"`
	Error          string         `json:"error,omitempty"`
}

// CrawlResult aggregates a multi-page crawl.
type CrawlResult struct {
	Tournaments      []Tournament `json:"tournaments"`
	Pages            []PageResult `json:"pages"`
	TotalPages       int          `json:"totalPages"`
	TotalTournaments int          `json:"totalTournaments"`
	Error            string       `json:"error,omitempty"`

	// Cause is the error that stopped the crawl, if any.
	Cause error `json:"-"`
}

// ScrapeResult is the envelope returned by one scrape invocation.
type ScrapeResult struct {
	Success        bool            `json:"success"`
	RunID          string          `json:"runId,omitempty"`
	Attempts       int             `json:"attempts"`
	Tournaments    []Tournament    `json:"tournaments"`
	PageInfo       *PageInfo       `json:"pageInfo"`
	PaginationInfo *PaginationInfo `json:"paginationInfo"`
	AllPages       []PageResult    `json:"allPages"`
	TotalCount     int             `json:"totalCount"`
	PartialError   string          `json:"partialError,omitempty"`
	SavedTo        string          `json:"savedTo,omitempty"`
	Error          string          `json:"error,omitempty"`

	// Cause is the last attempt error of a failed scrape.
	Cause error `json:"-"`
}

// Options selects what a scrape invocation fetches.
type Options struct {
	SearchParams   *SearchParams `json:"searchParams,omitempty"`
	ScrapeAllPages bool          `json:"scrapeAllPages"`
	MaxPages       int           `json:"maxPages"`
	Page           int           `json:"page"`
	IncludeEntries bool          `json:"includeEntries"`
	SaveResults    bool          `json:"saveResults"`
	Filename       string        `json:"filename,omitempty"`
}

// FetchRequest describes a single outbound GET.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
	Headers http.Header
}

// FetchResponse is the body and metadata of a successful GET.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// SaveRequest is handed to a ResultSink when results should be persisted.
type SaveRequest struct {
	RunID       string
	Filename    string
	Source      string
	Tournaments []Tournament
}
