package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techradar/internal/radar"
)

func TestScore(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.InDelta(t, 130.0, Score(now.Add(-time.Hour), now, 1.5, 2, 5), 1e-9)
	// Freshness bottoms out at zero after 50 hours.
	require.InDelta(t, 10.0, Score(now.Add(-100*time.Hour), now, 1, 0, 0), 1e-9)
}

func TestScoreIsMonotonicInFreshness(t *testing.T) {
	t.Parallel()

	now := time.Now()
	prev := Score(now, now, 1, 1, 0)
	for h := 1; h <= 72; h++ {
		cur := Score(now.Add(-time.Duration(h)*time.Hour), now, 1, 1, 0)
		require.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestDedupeKeepsHigherScore(t *testing.T) {
	t.Parallel()

	items := []radar.FetchedItem{
		{Title: "low", URL: "https://ex.com/a?utm_source=x", Score: 40},
		{Title: "high", URL: "https://ex.com/a", Score: 55},
	}

	for _, ordering := range [][]radar.FetchedItem{items, {items[1], items[0]}} {
		out := Dedupe(ordering)
		require.Len(t, out, 1)
		require.Equal(t, "high", out[0].Title)
		require.InDelta(t, 55.0, out[0].Score, 1e-9)
		require.Equal(t, "https://ex.com/a", out[0].URL)
		require.Equal(t, "https://ex.com/a", out[0].Raw[RawOriginalLink])
		require.Equal(t, "https://ex.com/a", out[0].Raw[RawCanonicalURL])
	}
}

func TestDedupePreservesOriginalLink(t *testing.T) {
	t.Parallel()

	out := Dedupe([]radar.FetchedItem{
		{URL: "https://Ex.com/b/#top", Score: 10},
		{URL: "https://ex.com/c", Score: 1, Raw: map[string]any{RawOriginalLink: "https://mirror.example/c"}},
	})
	require.Len(t, out, 2)
	require.Equal(t, "https://ex.com/b", out[0].URL)
	require.Equal(t, "https://Ex.com/b/#top", out[0].Raw[RawOriginalLink])
	require.Equal(t, "https://mirror.example/c", out[1].Raw[RawOriginalLink])
}

func TestDedupeTieKeepsFirst(t *testing.T) {
	t.Parallel()

	out := Dedupe([]radar.FetchedItem{
		{Title: "first", URL: "https://ex.com/a", Score: 10},
		{Title: "second", URL: "https://ex.com/a/", Score: 10},
	})
	require.Len(t, out, 1)
	require.Equal(t, "first", out[0].Title)
}

func TestDedupeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	raw := map[string]any{"guid": "1"}
	in := []radar.FetchedItem{{URL: "https://ex.com/a#x", Score: 1, Raw: raw}}
	_ = Dedupe(in)
	require.Equal(t, "https://ex.com/a#x", in[0].URL)
	require.NotContains(t, raw, RawCanonicalURL)
}

func TestLimitByCategory(t *testing.T) {
	t.Parallel()

	items := []radar.FetchedItem{
		{Title: "ai-1", Category: radar.CategoryAI, Score: 10},
		{Title: "be-1", Category: radar.CategoryBE, Score: 50},
		{Title: "ai-2", Category: radar.CategoryAI, Score: 30},
		{Title: "ai-3", Category: radar.CategoryAI, Score: 20},
		{Title: "fe-1", Category: radar.CategoryFE, Score: 99},
	}
	out := LimitByCategory(items, map[radar.Category]int{
		radar.CategoryAI: 2,
		radar.CategoryBE: 5,
		radar.CategoryFE: 0,
	})

	titles := make([]string, 0, len(out))
	for _, item := range out {
		titles = append(titles, item.Title)
	}
	require.Equal(t, []string{"ai-2", "ai-3", "be-1"}, titles)
}
