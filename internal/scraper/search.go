package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the tournament search listing.
const DefaultBaseURL = "https://www.dartsatlas.com/search?scope=tournaments"

// SearchParams are the filters accepted by the tournament search.
// Radius is passed through as-is; its unit is whatever the caller sends.
type SearchParams struct {
	Name      string `json:"name,omitempty"`
	Location  string `json:"location,omitempty"`
	Radius    string `json:"radius,omitempty"`
	Date      string `json:"date,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	Structure string `json:"structure,omitempty"`
}

// BuildSearchURL appends the non-empty search filters to base.
// Date takes precedence over StartDate.
func BuildSearchURL(base string, params SearchParams) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	add := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			q.Add(key, v)
		}
	}
	add("name", params.Name)
	add("location", params.Location)
	add("radius", params.Radius)
	if strings.TrimSpace(params.Date) != "" {
		add("date", params.Date)
	} else {
		add("startDate", params.StartDate)
	}
	add("structure", params.Structure)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageURL returns base with the page query parameter set for pages after the first.
func PageURL(base string, page int) (string, error) {
	if page <= 1 {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveLink turns a relative detail link into an absolute URL against base.
func ResolveLink(base, link string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", link, err)
	}
	return b.ResolveReference(ref).String(), nil
}
