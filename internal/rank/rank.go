// Package rank scores items, collapses duplicates by canonical URL, and applies per-category limits.
package rank

import (
	"math"
	"sort"
	"time"

	"github.com/JakeFAU/techradar/internal/canon"
	"github.com/JakeFAU/techradar/internal/radar"
)

// Score weights.
const (
	freshnessCeiling   = 100.0
	freshnessPerHour   = 2.0
	weightMultiplier   = 10.0
	signalContribution = 6.0
)

// Raw keys written during deduplication.
const (
	RawOriginalLink = "originalLink"
	RawCanonicalURL = "canonicalUrl"
)

// Score combines freshness, source weight, signal count, and rule boost.
// Freshness decays by two points per hour from 100 and never goes negative.
func Score(publishedAt, now time.Time, weight float64, signals int, boost float64) float64 {
	ageHours := now.Sub(publishedAt).Hours()
	freshness := math.Max(0, freshnessCeiling-ageHours*freshnessPerHour)
	return freshness + weight*weightMultiplier + float64(signals)*signalContribution + boost
}

// Dedupe keeps one item per canonical URL. The highest score wins and ties keep the item seen
// first. Survivors carry the canonical URL, with the pre-canonical link kept in Raw.
// Output order follows the first appearance of each canonical URL.
func Dedupe(items []radar.FetchedItem) []radar.FetchedItem {
	index := make(map[string]int, len(items))
	out := make([]radar.FetchedItem, 0, len(items))
	for _, item := range items {
		key := canon.Canonicalize(item.URL)
		pos, ok := index[key]
		if ok && item.Score <= out[pos].Score {
			continue
		}
		winner := withCanonicalURL(item, key)
		if ok {
			out[pos] = winner
			continue
		}
		index[key] = len(out)
		out = append(out, winner)
	}
	return out
}

func withCanonicalURL(item radar.FetchedItem, canonical string) radar.FetchedItem {
	raw := make(map[string]any, len(item.Raw)+2)
	for k, v := range item.Raw {
		raw[k] = v
	}
	if existing, ok := raw[RawOriginalLink].(string); !ok || existing == "" {
		raw[RawOriginalLink] = item.URL
	}
	raw[RawCanonicalURL] = canonical
	item.Raw = raw
	item.URL = canonical
	return item
}

// LimitByCategory keeps the top limits[c] items of each category by score. Categories without a
// positive limit contribute nothing. The result is ordered by category priority, then score.
func LimitByCategory(items []radar.FetchedItem, limits map[radar.Category]int) []radar.FetchedItem {
	grouped := make(map[radar.Category][]radar.FetchedItem, len(radar.Categories))
	for _, item := range items {
		grouped[item.Category] = append(grouped[item.Category], item)
	}

	var out []radar.FetchedItem
	for _, category := range radar.Categories {
		limit := limits[category]
		group := grouped[category]
		if limit <= 0 || len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Score > group[j].Score
		})
		if len(group) > limit {
			group = group[:limit]
		}
		out = append(out, group...)
	}
	return out
}
