package entries

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// strategy is one way of counting participants; the chain stops at the first
// positive count.
type strategy struct {
	name  string
	count func(doc *goquery.Document) int
}

const (
	namedTableSelector = "table.entries-table, table#entries, table.results-table, table.entrants-table"
	playerLinkSelector = `a[href*="/players/"], a[href*="player"]`
	countSelector      = `.entries-count, .entrants-count, .participants-count, [class*="entries-count"], [class*="entrant-count"]`
	listSelector       = `.entries-list, .participants-list, .entrants-list, ul[class*="entries"], ul[class*="participants"], ol[class*="entries"], ol[class*="participants"]`
)

var (
	letterPattern     = regexp.MustCompile(`\pL`)
	intPattern        = regexp.MustCompile(`\d+`)
	vocabularyPattern = regexp.MustCompile(`(?i)entr(y|ies|ants?)|players?|participants?`)
	phrasePattern     = regexp.MustCompile(`(?i)(\d+)\s*(players?|participants?|entries|entry|entrants?)`)
)

func defaultStrategies() []strategy {
	return []strategy{
		{name: "named_table", count: countNamedTable},
		{name: "participant_table", count: countParticipantTable},
		{name: "count_text", count: countText},
		{name: "entries_list", count: countListItems},
		{name: "page_text", count: countPagePhrase},
	}
}

// bodyRows returns the data rows of a table (rows holding at least one td).
func bodyRows(table *goquery.Selection) *goquery.Selection {
	return table.Find("tbody tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Find("td").Length() > 0
	})
}

func countNamedTable(doc *goquery.Document) int {
	n := 0
	doc.Find(namedTableSelector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
		n = bodyRows(table).Length()
		return n == 0
	})
	return n
}

func countParticipantTable(doc *goquery.Document) int {
	n := 0
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := bodyRows(table)
		participants := rows.FilterFunction(func(_ int, tr *goquery.Selection) bool {
			if tr.Find(playerLinkSelector).Length() > 0 {
				return true
			}
			alpha := false
			tr.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
				alpha = letterPattern.MatchString(td.Text())
				return !alpha
			})
			return alpha
		})
		if participants.Length() > 0 {
			n = rows.Length()
		}
		return n == 0
	})
	return n
}

func countText(doc *goquery.Document) int {
	n := 0
	doc.Find(countSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n = firstInt(s.Text())
		return n == 0
	})
	if n > 0 {
		return n
	}
	doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if vocabularyPattern.MatchString(text) {
			n = firstInt(text)
		}
		return n == 0
	})
	return n
}

func countListItems(doc *goquery.Document) int {
	n := 0
	doc.Find(listSelector).EachWithBreak(func(_ int, list *goquery.Selection) bool {
		n = list.Find("li").Length()
		return n == 0
	})
	return n
}

func countPagePhrase(doc *goquery.Document) int {
	m := phrasePattern.FindStringSubmatch(doc.Find("body").Text())
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func firstInt(s string) int {
	m := intPattern.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
