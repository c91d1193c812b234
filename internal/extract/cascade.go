package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// cascade is an ordered list of selectors evaluated until one yields a result.
type cascade []string

// first returns the matches of the first selector that finds any element.
func (c cascade) first(root *goquery.Selection) (*goquery.Selection, string, bool) {
	for _, selector := range c {
		if found := root.Find(selector); found.Length() > 0 {
			return found, selector, true
		}
	}
	return nil, "", false
}

// text returns the first non-empty trimmed text among all matches, in rule order.
func (c cascade) text(root *goquery.Selection) string {
	for _, selector := range c {
		var value string
		root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = strings.TrimSpace(s.Text())
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

// attr returns the first non-empty attribute value among all matches, in rule order.
func (c cascade) attr(root *goquery.Selection, name string) string {
	for _, selector := range c {
		var value string
		root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr(name)
			value = strings.TrimSpace(v)
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

var intPattern = regexp.MustCompile(`\d+`)

// firstInt extracts the first embedded non-negative integer from s.
func firstInt(s string) (int, bool) {
	m := intPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
