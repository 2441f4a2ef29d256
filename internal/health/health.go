// Package health tracks rolling per-hostname fetch outcomes and derives domain concurrency.
package health

import (
	"math"
	"time"

	"github.com/JakeFAU/techradar/internal/radar"
)

// DefaultWindowSize is the number of samples retained per hostname.
const DefaultWindowSize = 10

// Thresholds for the concurrency decision.
const (
	degradeFailRate     = 0.3
	degradeLatencyMs    = 5000
	degradeConsecutive  = 3
	recoverFailRate     = 0.2
	recoverLatencyMs    = 4000
	recoverConsecutive  = 0
	defaultBaseLevel    = 2
	defaultDegradeLevel = 1
)

// Levels holds the two concurrency classes a hostname can be in.
type Levels struct {
	Base     int
	Degraded int
}

// DefaultLevels returns base=2, degraded=1.
func DefaultLevels() Levels {
	return Levels{Base: defaultBaseLevel, Degraded: defaultDegradeLevel}
}

func (l Levels) normalized() Levels {
	if l.Base < 1 {
		l.Base = defaultBaseLevel
	}
	if l.Degraded < 1 {
		l.Degraded = 1
	}
	if l.Degraded > l.Base {
		l.Degraded = l.Base
	}
	return l
}

// Update appends sample to prev's window, trims it, and recomputes the aggregates.
// A nil prev starts a new window of windowSize (DefaultWindowSize when <= 0).
func Update(hostname string, prev *radar.DomainStat, sample radar.DomainSample, windowSize int, now time.Time) radar.DomainStat {
	size := windowSize
	var samples []radar.DomainSample
	if prev != nil {
		if prev.WindowSize > 0 {
			size = prev.WindowSize
		}
		samples = append(samples, prev.Samples...)
	}
	if size <= 0 {
		size = DefaultWindowSize
	}
	if sample.At.IsZero() {
		sample.At = now
	}
	samples = append(samples, sample)
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}

	stat := radar.DomainStat{
		Hostname:      hostname,
		WindowSize:    size,
		Samples:       samples,
		LastUpdatedAt: now,
	}
	var (
		totalLatency int64
		failures     int
	)
	for _, s := range samples {
		totalLatency += s.LatencyMs
		if !s.OK {
			failures++
		}
	}
	stat.AvgLatencyMs = int64(math.Round(float64(totalLatency) / float64(len(samples))))
	stat.FailRate = float64(failures) / float64(len(samples))
	stat.ConsecutiveFailures = trailingFailures(samples)
	return stat
}

func trailingFailures(samples []radar.DomainSample) int {
	count := 0
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].OK {
			break
		}
		count++
	}
	return count
}

// Concurrency decides how many simultaneous fetches a hostname gets on the next run.
// The band between the recover and degrade thresholds stays degraded.
func Concurrency(stat *radar.DomainStat, levels Levels) int {
	levels = levels.normalized()
	if stat == nil {
		return levels.Base
	}
	if stat.FailRate >= degradeFailRate ||
		stat.AvgLatencyMs >= degradeLatencyMs ||
		stat.ConsecutiveFailures >= degradeConsecutive {
		return levels.Degraded
	}
	if stat.FailRate < recoverFailRate &&
		stat.AvgLatencyMs < recoverLatencyMs &&
		stat.ConsecutiveFailures == recoverConsecutive {
		return levels.Base
	}
	return levels.Degraded
}

// Plan maps every hostname to its concurrency using the previously stored stats.
func Plan(hostnames []string, stats map[string]radar.DomainStat, levels Levels) map[string]int {
	plan := make(map[string]int, len(hostnames))
	for _, host := range hostnames {
		if stat, ok := stats[host]; ok {
			plan[host] = Concurrency(&stat, levels)
			continue
		}
		plan[host] = Concurrency(nil, levels)
	}
	return plan
}
