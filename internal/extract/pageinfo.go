package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

const (
	totalResultsSelector = ".results-count, .total-results"
	filterSelector       = ".filter, .active-filter"
	unknownTotal         = "Unknown"
)

// PageInfo summarizes the page title, result count text and active filters.
func (e *Extractor) PageInfo(html, pageURL string) scraper.PageInfo {
	info := scraper.PageInfo{
		URL:            pageURL,
		Timestamp:      e.clock.Now().UTC().Format(time.RFC3339),
		TotalResults:   unknownTotal,
		CurrentFilters: []string{},
	}
	doc, err := parse(html)
	if err != nil {
		e.logger.Warn("page info html unparseable", zap.Error(err))
		return info
	}

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if total := strings.TrimSpace(doc.Find(totalResultsSelector).First().Text()); total != "" {
		info.TotalResults = total
	}
	doc.Find(filterSelector).Each(func(_ int, s *goquery.Selection) {
		info.CurrentFilters = append(info.CurrentFilters, strings.TrimSpace(s.Text()))
	})
	return info
}
