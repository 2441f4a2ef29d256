// Package feed turns fetched RSS/Atom documents and HTML listing pages into candidate items.
package feed

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const untitled = "Untitled"

// Item is one parsed entry before scoring.
type Item struct {
	Title       string
	Link        string
	GUID        string
	Snippet     string
	PublishedAt time.Time
	Categories  []string
	Raw         map[string]any
}

// Dated reports whether the item carries a publication time.
func (i Item) Dated() bool {
	return !i.PublishedAt.IsZero()
}

var htmlMarker = regexp.MustCompile(`(?i)<html|<!doctype html`)

// LooksLikeHTML reports whether a response is an HTML page rather than a feed.
func LooksLikeHTML(contentType, body string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html") || htmlMarker.MatchString(body)
}

// ParseFeed parses an RSS, Atom, or JSON feed document. Items without a link are dropped.
func ParseFeed(text string) ([]Item, error) {
	parsed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("decode feed document: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		link := strings.TrimSpace(entry.Link)
		if link == "" && len(entry.Links) > 0 {
			link = strings.TrimSpace(entry.Links[0])
		}
		if link == "" {
			link = strings.TrimSpace(entry.GUID)
		}
		if link == "" {
			continue
		}

		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = strings.TrimSpace(entry.Published)
		}
		if title == "" {
			title = untitled
		}

		snippet := plainText(entry.Description)
		if snippet == "" {
			snippet = plainText(entry.Content)
		}

		var published time.Time
		switch {
		case entry.PublishedParsed != nil:
			published = entry.PublishedParsed.UTC()
		case entry.UpdatedParsed != nil:
			published = entry.UpdatedParsed.UTC()
		}

		categories := make([]string, 0, len(entry.Categories))
		for _, c := range entry.Categories {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}

		items = append(items, Item{
			Title:       title,
			Link:        link,
			GUID:        entry.GUID,
			Snippet:     snippet,
			PublishedAt: published,
			Categories:  categories,
			Raw: map[string]any{
				"guid":       nullable(entry.GUID),
				"published":  nullable(entry.Published),
				"updated":    nullable(entry.Updated),
				"categories": categories,
			},
		})
	}
	return items, nil
}

// plainText strips markup from feed summaries and collapses whitespace.
func plainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return collapseSpace(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
