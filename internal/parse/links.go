package parse

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reddot-watch/hncrawler/internal/models"
)

// Anchor zones of a detail page: the story header and the comment bodies.
var linkZones = []string{
	"table.fatitem a[href]",
	".comment-tree span.commtext a[href]",
}

// ParseLinks collects absolute http(s) links from an item's detail page.
// Links are deduplicated by URL keeping the first occurrence.
func ParseLinks(itemID int64, body []byte) []models.DiscussionLink {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []models.DiscussionLink
	seen := make(map[string]struct{})

	for _, zone := range linkZones {
		doc.Find(zone).Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if !isAbsoluteWebURL(href) {
				return
			}
			if _, dup := seen[href]; dup {
				return
			}
			seen[href] = struct{}{}
			links = append(links, models.DiscussionLink{
				ItemID: itemID,
				URL:    href,
				Text:   strings.TrimSpace(a.Text()),
			})
		})
	}

	return links
}

func isAbsoluteWebURL(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
