package hostlimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func runConcurrent(t *testing.T, p *Pool, hosts []string, hold time.Duration) (maxGlobal int64, maxPerHost map[string]int64) {
	t.Helper()

	var (
		global  atomic.Int64
		mu      sync.Mutex
		current = map[string]int64{}
		wg      sync.WaitGroup
	)
	maxPerHost = map[string]int64{}
	for _, host := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			err := p.Do(context.Background(), host, func(context.Context) error {
				g := global.Add(1)
				mu.Lock()
				if g > maxGlobal {
					maxGlobal = g
				}
				current[host]++
				if current[host] > maxPerHost[host] {
					maxPerHost[host] = current[host]
				}
				mu.Unlock()

				time.Sleep(hold)

				mu.Lock()
				current[host]--
				mu.Unlock()
				global.Add(-1)
				return nil
			})
			require.NoError(t, err)
		}(host)
	}
	wg.Wait()
	return maxGlobal, maxPerHost
}

func TestPoolBoundsGlobalAndPerHost(t *testing.T) {
	t.Parallel()

	p := New(Config{Global: 3, DefaultPerHost: 2}, map[string]int{"slow.example.com": 1})
	hosts := []string{
		"slow.example.com", "slow.example.com", "slow.example.com",
		"fast.example.com", "fast.example.com", "fast.example.com",
		"other.example.com", "other.example.com",
	}
	maxGlobal, maxPerHost := runConcurrent(t, p, hosts, 20*time.Millisecond)

	require.LessOrEqual(t, maxGlobal, int64(3))
	require.Equal(t, int64(1), maxPerHost["slow.example.com"])
	require.LessOrEqual(t, maxPerHost["fast.example.com"], int64(2))
	require.Equal(t, 1, p.Permits("slow.example.com"))
	require.Equal(t, 2, p.Permits("fast.example.com"))
	require.Zero(t, p.InFlight("slow.example.com"))
}

func TestPoolReportsInFlight(t *testing.T) {
	t.Parallel()

	p := New(Config{Global: 2, DefaultPerHost: 2}, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), "example.com", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	require.Equal(t, 1, p.InFlight("example.com"))
	close(release)
	require.NoError(t, <-done)
	require.Zero(t, p.InFlight("example.com"))
}

func TestPoolHonorsContextWhileWaiting(t *testing.T) {
	t.Parallel()

	p := New(Config{Global: 1, DefaultPerHost: 1}, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), "a.example.com", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := p.Do(ctx, "b.example.com", func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)
	close(release)
}

func TestPoolPacesPerHost(t *testing.T) {
	t.Parallel()

	p := New(Config{Global: 2, DefaultPerHost: 1, HostRPS: 10, HostBurst: 1}, nil)
	ctx := context.Background()
	noop := func(context.Context) error { return nil }

	require.NoError(t, p.Do(ctx, "paced.example.com", noop))
	start := time.Now()
	require.NoError(t, p.Do(ctx, "paced.example.com", noop))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	require.NoError(t, p.Do(ctx, "other.example.com", noop))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}
