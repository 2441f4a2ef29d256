package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextPageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		page int
		want string
	}{
		{"paged param", "https://example.com/blog?paged=1", 2, "https://example.com/blog?paged=2"},
		{"page param", "https://example.com/blog?page=1&tag=go", 3, "https://example.com/blog?page=3&tag=go"},
		{"page path", "https://example.com/blog/page/1/", 2, "https://example.com/blog/page/2/"},
		{"no hint", "https://example.com/blog/", 2, "https://example.com/blog/?paged=2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NextPageURL(tc.base, tc.page)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}

	_, ok := NextPageURL("::not a url", 2)
	require.False(t, ok)
}

func TestClampMaxPages(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultMaxPages, ClampMaxPages(0))
	require.Equal(t, 1, ClampMaxPages(1))
	require.Equal(t, MaxPagesCap, ClampMaxPages(50))
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	items := []Item{
		{Link: "old", PublishedAt: now.Add(-20 * 24 * time.Hour)},
		{Link: "undated"},
		{Link: "new", PublishedAt: now.Add(-time.Hour)},
		{Link: "mid", PublishedAt: now.Add(-48 * time.Hour)},
		{Link: "newer", PublishedAt: now.Add(-30 * time.Minute)},
	}

	prepared := Prepare(items, now, 14, 2)
	require.Len(t, prepared, 2)
	require.Equal(t, "newer", prepared[0].Link)
	require.Equal(t, "new", prepared[1].Link)

	prepared = Prepare(items, now, 14, 50)
	links := make([]string, 0, len(prepared))
	for _, item := range prepared {
		links = append(links, item.Link)
	}
	require.Equal(t, []string{"newer", "new", "mid"}, links)
}

func TestMergeByLink(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	merged := MergeByLink(nil, seen, []Item{{Link: "a"}, {Link: "b"}}, 3)
	merged = MergeByLink(merged, seen, []Item{{Link: "b"}, {Link: ""}, {Link: "c"}, {Link: "d"}}, 3)
	require.Len(t, merged, 3)
	require.Equal(t, "c", merged[2].Link)
}
