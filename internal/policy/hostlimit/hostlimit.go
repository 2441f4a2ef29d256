// Package hostlimit bounds concurrent fetches globally and per host, with optional per-host pacing.
package hostlimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/techradar/internal/metrics"
)

// Config holds pool sizing and pacing.
type Config struct {
	// Global caps the number of tasks running at once across all hosts.
	Global int
	// DefaultPerHost is used for hosts without an explicit plan entry.
	DefaultPerHost int
	// HostRPS paces requests per host; <= 0 disables pacing.
	HostRPS   float64
	HostBurst int
}

type hostSlot struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	permits  int
	inFlight int
}

// Pool nests a per-host semaphore inside a global one.
type Pool struct {
	global *semaphore.Weighted

	mu             sync.Mutex
	hosts          map[string]*hostSlot
	defaultPerHost int
	rate           rate.Limit
	burst          int
}

// New creates a Pool. Per-host permits come from plan (missing hosts use cfg.DefaultPerHost).
func New(cfg Config, plan map[string]int) *Pool {
	global := cfg.Global
	if global <= 0 {
		global = 1
	}
	perHost := cfg.DefaultPerHost
	if perHost <= 0 {
		perHost = 1
	}
	r := rate.Limit(cfg.HostRPS)
	if cfg.HostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.HostBurst
	if burst <= 0 {
		burst = 1
	}
	p := &Pool{
		global:         semaphore.NewWeighted(int64(global)),
		hosts:          make(map[string]*hostSlot, len(plan)),
		defaultPerHost: perHost,
		rate:           r,
		burst:          burst,
	}
	for host, permits := range plan {
		p.slotLocked(host, permits)
	}
	return p
}

// slotLocked returns the slot for host, creating it with permits when absent. Callers hold mu
// or own p exclusively.
func (p *Pool) slotLocked(host string, permits int) *hostSlot {
	if slot, ok := p.hosts[host]; ok {
		return slot
	}
	if permits <= 0 {
		permits = p.defaultPerHost
	}
	slot := &hostSlot{
		sem:     semaphore.NewWeighted(int64(permits)),
		limiter: rate.NewLimiter(p.rate, p.burst),
		permits: permits,
	}
	p.hosts[host] = slot
	return slot
}

func (p *Pool) slot(host string) *hostSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotLocked(host, 0)
}

// Permits reports the per-host permit count applied to host.
func (p *Pool) Permits(host string) int {
	return p.slot(host).permits
}

// InFlight reports the number of tasks currently running for host.
func (p *Pool) InFlight(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok := p.hosts[host]; ok {
		return slot.inFlight
	}
	return 0
}

func (p *Pool) track(host string, slot *hostSlot, delta int) {
	p.mu.Lock()
	slot.inFlight += delta
	n := slot.inFlight
	p.mu.Unlock()
	metrics.SetHostInFlight(host, n)
}

// Do runs fn once a global permit and then a host permit are held. It returns ctx's error if
// either acquisition is abandoned.
func (p *Pool) Do(ctx context.Context, host string, fn func(context.Context) error) error {
	if err := p.global.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire global permit: %w", err)
	}
	defer p.global.Release(1)

	slot := p.slot(host)
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire host permit for %s: %w", host, err)
	}
	defer slot.sem.Release(1)

	p.track(host, slot, 1)
	defer p.track(host, slot, -1)

	if err := p.pace(ctx, host, slot); err != nil {
		return err
	}
	return fn(ctx)
}

func (p *Pool) pace(ctx context.Context, host string, slot *hostSlot) error {
	if slot.limiter.Limit() == rate.Inf {
		return nil
	}
	start := time.Now()
	if err := slot.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
