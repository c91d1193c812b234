package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type venueInfo struct {
	Name        string
	URL         string
	Address     string
	FullAddress string
}

// parseVenue reads the embedded venue block. The address is the block text
// with the venue name removed and whitespace collapsed.
func parseVenue(container *goquery.Selection) *venueInfo {
	embed := container.Find(venueEmbedSelector).First()
	if embed.Length() == 0 {
		return nil
	}
	link := embed.Find("a").First()
	name := strings.TrimSpace(link.Text())
	href, _ := link.Attr("href")
	text := strings.TrimSpace(embed.Text())

	address := text
	if name != "" {
		address = strings.Replace(address, name, "", 1)
	}
	return &venueInfo{
		Name:        name,
		URL:         strings.TrimSpace(href),
		Address:     collapseSpace(address),
		FullAddress: text,
	}
}
