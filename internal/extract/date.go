package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var monthNumbers = map[string]string{
	"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04",
	"May": "05", "Jun": "06", "Jul": "07", "Aug": "08",
	"Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
}

type dateInfo struct {
	Day      string
	Month    string
	Date     string
	FullDate string
}

// parseDateIcon reads the day-of-week, month and day-of-month fragments of a
// calendar icon. The year is always the supplied one; the icon carries none.
func parseDateIcon(container *goquery.Selection, year int) *dateInfo {
	spans := container.Find(calendarIconSelector).Find("span")
	if spans.Length() < 3 {
		return nil
	}
	day := strings.TrimSpace(spans.Eq(0).Text())
	month := strings.TrimSpace(spans.Eq(1).Text())
	dayOfMonth := strings.TrimSpace(spans.Eq(2).Text())

	return &dateInfo{
		Day:      day,
		Month:    month,
		Date:     fmt.Sprintf("%d-%s-%s", year, monthNumber(month), padDay(dayOfMonth)),
		FullDate: fmt.Sprintf("%s %s %s", day, month, dayOfMonth),
	}
}

// monthNumber maps an exact three-letter month abbreviation ("Aug") to its
// two-digit number. Anything else is "01".
func monthNumber(abbr string) string {
	if n, ok := monthNumbers[abbr]; ok {
		return n
	}
	return "01"
}

func padDay(day string) string {
	for len(day) < 2 {
		day = "0" + day
	}
	return day
}
