// Package parse turns Hacker News markup into listing and link records.
// The parsers never fail: markup that does not match the expected structure
// yields empty or partial results.
package parse

import (
	"bytes"
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reddot-watch/hncrawler/internal/models"
)

// itemHrefPrefix marks links that point back at a discussion page.
const itemHrefPrefix = "item?id="

var digits = regexp.MustCompile(`\d+`)

// ParseListing extracts up to limit listings from front page markup, in
// document order. Rows without a usable id are skipped, as are repeated ids.
func ParseListing(body []byte, limit int) []models.Listing {
	if limit <= 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	listings := make([]models.Listing, 0, limit)
	seen := make(map[int64]struct{})

	doc.Find("tr.athing").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		id, ok := parseID(row)
		if !ok {
			return true
		}
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}

		listing := models.Listing{ID: id}
		extractTitle(row, &listing)
		extractSubtext(row.NextAllFiltered("tr").First(), &listing)

		listings = append(listings, listing)
		return len(listings) < limit
	})

	return listings
}

func parseID(row *goquery.Selection) (int64, bool) {
	raw, exists := row.Attr("id")
	if !exists {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func extractTitle(row *goquery.Selection, listing *models.Listing) {
	anchor := row.Find("span.titleline a").First()
	if anchor.Length() == 0 {
		return
	}
	listing.Title = strings.TrimSpace(anchor.Text())

	href := strings.TrimSpace(anchor.AttrOr("href", ""))
	// Text posts link back to their own discussion page.
	if href == "" || strings.HasPrefix(href, itemHrefPrefix) {
		return
	}
	listing.URL = sql.NullString{String: href, Valid: true}
}

func extractSubtext(row *goquery.Selection, listing *models.Listing) {
	sub := row.Find("td.subtext").First()
	if sub.Length() == 0 {
		return
	}

	if user := sub.Find("a.hnuser").First(); user.Length() > 0 {
		listing.Author = sql.NullString{String: strings.TrimSpace(user.Text()), Valid: true}
	}

	if score := sub.Find("span.score").First(); score.Length() > 0 {
		if n, ok := firstNumber(score.Text()); ok {
			listing.Score = sql.NullInt64{Int64: n, Valid: true}
		}
	}

	if last := sub.Find("a").Last(); last.Length() > 0 {
		text := last.Text()
		if strings.Contains(text, "comment") {
			if n, ok := firstNumber(text); ok {
				listing.CommentCount = sql.NullInt64{Int64: n, Valid: true}
			}
		}
	}
}

func firstNumber(s string) (int64, bool) {
	m := digits.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
