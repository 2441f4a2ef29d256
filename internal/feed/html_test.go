package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const articleListing = `<!doctype html>
<html><body>
<article>
  <h2><a href="/blog/first-post">First&nbsp;post</a></h2>
  <time datetime="2024-03-05T09:30:00Z">March 5</time>
  <p>Intro paragraph.</p>
</article>
<article>
  <h3>Second post</h3>
  <a href="https://example.com/2024/02/10/second"><img src="cover.png"></a>
  <span class="post-date">Feb 10, 2024</span>
</article>
<article>
  <h2>No link here</h2>
</article>
</body></html>`

const genericListing = `<html><body>
<div class="entry-card">
  <a href="/p/1">Card one</a>
  <div class="meta">2024.01.15</div>
</div>
<div class="entry-card">
  <a href="/p/20240116-two">Card two</a>
</div>
</body></html>`

const woowahanListing = `<html><body>
<div class="post-item">
  <a href="/12345/"><h2 class="post-title">배민 API 개선기</h2></a>
  <p class="post-excerpt">성능 개선 이야기</p>
  <span class="post-author-date">Dec.26.2025</span>
</div>
</body></html>`

func TestParseHTMLArticles(t *testing.T) {
	t.Parallel()

	items := ParseHTML(articleListing, "https://example.com/blog/")
	require.Len(t, items, 2)

	require.Equal(t, "First post", items[0].Title)
	require.Equal(t, "https://example.com/blog/first-post", items[0].Link)
	require.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), items[0].PublishedAt)
	require.Equal(t, "Intro paragraph.", items[0].Snippet)
	require.Equal(t, "html", items[0].Raw["sourceType"])
	require.Equal(t, "First post", items[0].Raw["linkText"])

	require.Equal(t, "Second post", items[1].Title)
	require.Equal(t, "https://example.com/2024/02/10/second", items[1].Link)
	require.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), items[1].PublishedAt)
}

func TestParseHTMLGenericContainers(t *testing.T) {
	t.Parallel()

	items := ParseHTML(genericListing, "https://blog.example.org/")
	require.Len(t, items, 2)
	require.Equal(t, "Card one", items[0].Title)
	require.Equal(t, "https://blog.example.org/p/1", items[0].Link)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), items[0].PublishedAt)
	require.False(t, items[1].Dated())
}

func TestParseHTMLHostRule(t *testing.T) {
	t.Parallel()

	items := ParseHTML(woowahanListing, "https://techblog.woowahan.com/")
	require.Len(t, items, 1)
	require.Equal(t, "배민 API 개선기", items[0].Title)
	require.Equal(t, "https://techblog.woowahan.com/12345/", items[0].Link)
	require.Equal(t, "성능 개선 이야기", items[0].Snippet)
	require.Equal(t, time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), items[0].PublishedAt)
}

func TestParseDateText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-12-11", time.Date(2025, 12, 11, 0, 0, 0, 0, time.UTC), true},
		{"Posted 2025.1.5 by admin", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"2025/03/07", time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), true},
		{"December 3, 2024", time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC), true},
		{"Sept 9 2024", time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC), true},
		{"20251211", time.Date(2025, 12, 11, 0, 0, 0, 0, time.UTC), true},
		{"2025-13-40", time.Time{}, false},
		{"2025-02-30", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range tests {
		got, ok := parseDateText(tc.in)
		require.Equal(t, tc.ok, ok, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseDateFromURL(t *testing.T) {
	t.Parallel()

	got, ok := parseDateFromURL("https://example.com/2023/7/4/independence")
	require.True(t, ok)
	require.Equal(t, time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC), got)

	got, ok = parseDateFromURL("https://example.com/posts/2023-07-05-notes")
	require.True(t, ok)
	require.Equal(t, time.Date(2023, 7, 5, 0, 0, 0, 0, time.UTC), got)

	_, ok = parseDateFromURL("https://example.com/posts/latest")
	require.False(t, ok)
}
