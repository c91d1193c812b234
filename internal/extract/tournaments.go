package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// Most specific first; generic block elements last.
var containerRules = cascade{
	"section.event",
	`[data-testid*="tournament"]`,
	".tournament-item",
	".search-result-item",
	`div[class*="tournament"]`,
	`div[class*="event"]`,
	".card",
	".item",
	".search-result",
	`[class*="result"]`,
	"article",
	"section",
}

const fallbackContainers = "div, article, section"

const (
	calendarIconSelector = ".calendar-event-icon"
	venueEmbedSelector   = ".venue-embed"
	minContainerRunes    = 10
	minRetainRunes       = 20
)

var (
	nameRules = cascade{
		"h1", "h2", "h3", "h4", ".title", ".name",
		`[class*="title"]`, `[class*="name"]`, "strong", "b",
	}
	locationRules = cascade{
		".location", ".venue", `[class*="location"]`, `[class*="venue"]`, ".address",
	}
	timeRules = cascade{
		".date", ".time", `[class*="date"]`, `[class*="time"]`, "time",
	}
	structureRules = cascade{
		".structure", ".format", `[class*="structure"]`, `[class*="format"]`,
	}
	statusRules = cascade{
		".status", ".state", `[class*="status"]`, `[class*="state"]`,
	}
	descriptionRules = cascade{
		".description", ".details", `[class*="description"]`, `[class*="details"]`, "p",
	}
	linkRules  = cascade{"a.tournament.event-link[href]", `a[href*="/tournaments/"]`}
	imageRules = cascade{"img[src]"}
)

// Tournaments extracts every tournament listing found in html.
// It never fails; unparseable or empty input yields an empty slice.
func (e *Extractor) Tournaments(html string) []scraper.Tournament {
	records := make([]scraper.Tournament, 0)
	doc, err := parse(html)
	if err != nil {
		e.logger.Warn("tournament html unparseable", zap.Error(err))
		return records
	}

	containers, selector := e.containers(doc)
	for i, container := range containers {
		rec := e.tournament(container, i+1)
		if !retain(rec, container) {
			continue
		}
		records = append(records, rec)
	}

	e.logger.Debug("tournaments extracted",
		zap.String("container_selector", selector),
		zap.Int("candidates", len(containers)),
		zap.Int("records", len(records)),
	)
	return records
}

// containers locates candidate listings and drops wrapper elements that show
// no sign of being a single tournament.
func (e *Extractor) containers(doc *goquery.Document) ([]*goquery.Selection, string) {
	candidates, selector, ok := containerRules.first(doc.Selection)
	if !ok {
		candidates = doc.Find(fallbackContainers)
		selector = fallbackContainers
	}

	var kept []*goquery.Selection
	candidates.Each(func(_ int, s *goquery.Selection) {
		if looksLikeTournament(s) {
			kept = append(kept, s)
		}
	})
	return kept, selector
}

func looksLikeTournament(s *goquery.Selection) bool {
	text := strings.TrimSpace(s.Text())
	if runeLen(text) <= minContainerRunes {
		return false
	}
	if s.Find(calendarIconSelector).Length() > 0 || s.Find(venueEmbedSelector).Length() > 0 {
		return true
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "tournament") || strings.Contains(lower, "event")
}

func (e *Extractor) tournament(container *goquery.Selection, id int) scraper.Tournament {
	rec := scraper.Tournament{
		ID:          id,
		Name:        nameRules.text(container),
		Location:    locationRules.text(container),
		Time:        timeRules.text(container),
		Structure:   structureRules.text(container),
		Status:      statusRules.text(container),
		Description: descriptionRules.text(container),
		Link:        linkRules.attr(container, "href"),
		Image:       imageRules.attr(container, "src"),
	}

	if d := parseDateIcon(container, e.clock.Now().Year()); d != nil {
		rec.Date = d.Date
		rec.Day = d.Day
		rec.Month = d.Month
		rec.FullDate = d.FullDate
	}
	if v := parseVenue(container); v != nil {
		rec.Venue = v.Name
		rec.VenueURL = v.URL
		rec.VenueAddress = v.Address
		rec.VenueFullAddress = v.FullAddress
	}

	if inner, err := container.Html(); err == nil {
		rec.RawHTMLSnippet = truncateRunes(inner, MaxSnippetRunes)
	}
	return rec
}

// retain guards against false positives from generic fallback containers.
func retain(rec scraper.Tournament, container *goquery.Selection) bool {
	if rec.Name != "" || rec.Location != "" || rec.Time != "" || rec.Date != "" || rec.Venue != "" {
		return true
	}
	return runeLen(strings.TrimSpace(container.Text())) > minRetainRunes
}
