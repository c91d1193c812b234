package extract

import (
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

var (
	paginationRules = cascade{
		".pagination",
		".pager",
		`[class*="pagination"]`,
		`[class*="pager"]`,
		`nav[aria-label*="pagination"]`,
		`nav[aria-label*="Pagination"]`,
		`nav[aria-label*="pager"]`,
	}
	resultsCountRules = cascade{
		".results-count",
		".total-results",
		`[class*="results-count"]`,
		`[class*="total-results"]`,
		".count",
		`[class*="count"]`,
	}
)

const (
	currentPageSelector = `.current, .active, [aria-current="page"]`
	pageLinkSelector    = `a[href*="page"], a[href*="p="], .page-link, .pager-item`
	nextSelector        = `.next, .next-page, [aria-label*="next"], [aria-label*="Next"], [rel="next"]`
	prevSelector        = `.prev, .prev-page, [aria-label*="previous"], [aria-label*="Previous"], [rel="prev"]`
)

// Pagination infers paging state from html. Every signal is optional; the
// result starts from scraper.DefaultPagination and only improves on it.
func (e *Extractor) Pagination(html string) scraper.PaginationInfo {
	info := scraper.DefaultPagination()
	doc, err := parse(html)
	if err != nil {
		e.logger.Warn("pagination html unparseable", zap.Error(err))
		return info
	}

	if nav, _, ok := paginationRules.first(doc.Selection); ok {
		if n, found := firstInt(nav.Find(currentPageSelector).First().Text()); found && n > 0 {
			info.CurrentPage = n
		}
		nav.Find(pageLinkSelector).Each(func(_ int, s *goquery.Selection) {
			if n, found := firstInt(s.Text()); found && n > info.TotalPages {
				info.TotalPages = n
			}
		})
		if info.TotalPages < info.CurrentPage {
			info.TotalPages = info.CurrentPage
		}
		info.HasNextPage = available(nav.Find(nextSelector))
		info.HasPrevPage = available(nav.Find(prevSelector))
	}

	for _, selector := range resultsCountRules {
		if n, found := firstInt(doc.Find(selector).Text()); found {
			info.TotalResults = n
			break
		}
	}

	e.logger.Debug("pagination analyzed",
		zap.Int("current_page", info.CurrentPage),
		zap.Int("total_pages", info.TotalPages),
		zap.Bool("has_next", info.HasNextPage),
		zap.Int("total_results", info.TotalResults),
	)
	return info
}

// available reports whether a next/prev control exists and is not disabled.
func available(control *goquery.Selection) bool {
	if control.Length() == 0 {
		return false
	}
	first := control.First()
	if first.HasClass("disabled") || first.Parent().HasClass("disabled") {
		return false
	}
	if v, ok := first.Attr("aria-disabled"); ok && v == "true" {
		return false
	}
	_, disabled := first.Attr("disabled")
	return !disabled
}
