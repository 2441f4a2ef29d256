package feed

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Page limits for the HTML fallback.
const (
	DefaultMaxPages = 3
	MaxPagesCap     = 10
)

var pagePath = regexp.MustCompile(`/page/\d+/`)

// ClampMaxPages bounds the configured page count to [1, MaxPagesCap]; non-positive values use
// DefaultMaxPages.
func ClampMaxPages(n int) int {
	if n <= 0 {
		return DefaultMaxPages
	}
	if n > MaxPagesCap {
		return MaxPagesCap
	}
	return n
}

// NextPageURL derives the URL of page n of a listing. It prefers an existing "paged" or "page"
// query parameter, then a /page/N/ path segment, and otherwise appends paged=N.
func NextPageURL(base string, page int) (string, bool) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	q := u.Query()
	n := strconv.Itoa(page)
	switch {
	case q.Has("paged"):
		q.Set("paged", n)
	case q.Has("page"):
		q.Set("page", n)
	case pagePath.MatchString(u.Path):
		u.Path = pagePath.ReplaceAllLiteralString(u.Path, "/page/"+n+"/")
		u.RawPath = ""
		return u.String(), true
	default:
		q.Set("paged", n)
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}

// Prepare keeps dated items, orders them newest first, truncates to maxPerSource, and drops
// anything published before now minus lookbackDays.
func Prepare(items []Item, now time.Time, lookbackDays, maxPerSource int) []Item {
	dated := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Dated() {
			dated = append(dated, item)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].PublishedAt.After(dated[j].PublishedAt)
	})
	if maxPerSource > 0 && len(dated) > maxPerSource {
		dated = dated[:maxPerSource]
	}
	cutoff := now.Add(-time.Duration(lookbackDays) * 24 * time.Hour)
	kept := dated[:0]
	for _, item := range dated {
		if !item.PublishedAt.Before(cutoff) {
			kept = append(kept, item)
		}
	}
	return kept
}

// MergeByLink appends items whose link has not been seen, up to limit total entries.
func MergeByLink(dst []Item, seen map[string]struct{}, items []Item, limit int) []Item {
	for _, item := range items {
		if item.Link == "" || (limit > 0 && len(dst) >= limit) {
			continue
		}
		if _, ok := seen[item.Link]; ok {
			continue
		}
		seen[item.Link] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}
