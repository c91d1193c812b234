// Package extract turns tournament search HTML into structured records
// using ordered selector cascades. Parsing is best-effort: missing markup
// degrades to empty values and never produces an error.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/clock/system"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// MaxSnippetRunes bounds the raw HTML kept on each record.
const MaxSnippetRunes = 500

// Extractor parses search result pages.
type Extractor struct {
	clock  scraper.Clock
	logger *zap.Logger
}

// New builds an Extractor. A nil clock falls back to the system clock.
func New(clock scraper.Clock, logger *zap.Logger) *Extractor {
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{clock: clock, logger: logger}
}

func parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
