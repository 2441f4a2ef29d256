package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techradar/internal/radar"
)

func TestUpdateComputesAggregates(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	stat := Update("example.com", nil, radar.DomainSample{OK: true, LatencyMs: 100, Status: 200}, 0, now)
	stat = Update("example.com", &stat, radar.DomainSample{OK: false, LatencyMs: 301, Status: 500}, 0, now)
	stat = Update("example.com", &stat, radar.DomainSample{OK: false, LatencyMs: 0}, 0, now)

	require.Equal(t, DefaultWindowSize, stat.WindowSize)
	require.Len(t, stat.Samples, 3)
	require.Equal(t, int64(134), stat.AvgLatencyMs)
	require.InDelta(t, 2.0/3.0, stat.FailRate, 1e-9)
	require.Equal(t, 2, stat.ConsecutiveFailures)
	require.Equal(t, now, stat.LastUpdatedAt)
	require.Equal(t, now, stat.Samples[2].At)
}

func TestUpdateTrimsWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	var stat *radar.DomainStat
	for i := 0; i < 25; i++ {
		next := Update("example.com", stat, radar.DomainSample{OK: i%2 == 0, LatencyMs: int64(i)}, 4, now)
		stat = &next
		require.LessOrEqual(t, len(stat.Samples), 4)
	}
	require.Len(t, stat.Samples, 4)
	require.Equal(t, int64(21), stat.Samples[0].LatencyMs)
	require.Equal(t, int64(24), stat.Samples[3].LatencyMs)
	require.Zero(t, stat.ConsecutiveFailures)
}

func TestUpdateResetsTrailingFailuresOnSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stat := radar.DomainStat{
		WindowSize: 10,
		Samples: []radar.DomainSample{
			{OK: false}, {OK: false}, {OK: false},
		},
	}
	next := Update("example.com", &stat, radar.DomainSample{OK: true, LatencyMs: 10}, 0, now)
	require.Zero(t, next.ConsecutiveFailures)
	require.InDelta(t, 0.75, next.FailRate, 1e-9)
}

func TestConcurrencyDecision(t *testing.T) {
	t.Parallel()

	levels := DefaultLevels()
	tests := []struct {
		name string
		stat *radar.DomainStat
		want int
	}{
		{name: "no prior stat", stat: nil, want: 2},
		{name: "healthy", stat: &radar.DomainStat{FailRate: 0.1, AvgLatencyMs: 300}, want: 2},
		{name: "high fail rate with low latency", stat: &radar.DomainStat{FailRate: 0.35, AvgLatencyMs: 50}, want: 1},
		{name: "slow", stat: &radar.DomainStat{AvgLatencyMs: 5000}, want: 1},
		{name: "consecutive failures", stat: &radar.DomainStat{FailRate: 0.1, ConsecutiveFailures: 3}, want: 1},
		{name: "hysteresis band fail rate", stat: &radar.DomainStat{FailRate: 0.25, AvgLatencyMs: 100}, want: 1},
		{name: "hysteresis band latency", stat: &radar.DomainStat{AvgLatencyMs: 4500}, want: 1},
		{name: "single trailing failure", stat: &radar.DomainStat{FailRate: 0.1, ConsecutiveFailures: 1}, want: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Concurrency(tc.stat, levels))
		})
	}
}

func TestConcurrencyStaysWithinLevels(t *testing.T) {
	t.Parallel()

	for _, levels := range []Levels{{}, {Base: 1, Degraded: 3}, {Base: 4, Degraded: 0}} {
		norm := levels.normalized()
		for _, stat := range []*radar.DomainStat{nil, {FailRate: 1}, {FailRate: 0.25}} {
			got := Concurrency(stat, levels)
			require.GreaterOrEqual(t, got, 1)
			require.LessOrEqual(t, got, norm.Base)
		}
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	stats := map[string]radar.DomainStat{
		"slow.example.com": {FailRate: 0.35},
	}
	plan := Plan([]string{"slow.example.com", "new.example.com"}, stats, DefaultLevels())
	require.Equal(t, map[string]int{"slow.example.com": 1, "new.example.com": 2}, plan)
}
