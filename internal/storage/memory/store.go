package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/techradar/internal/radar"
)

// leaseExpired is recorded on jobs reclaimed after their worker stopped renewing them.
const leaseExpired = "job lease expired"

// Store is an in-memory radar.Store for development and tests. All mutations happen under one
// lock, so multi-row operations are atomic.
type Store struct {
	mu      sync.RWMutex
	runs    map[string]radar.Run
	jobs    map[string]radar.Job
	sources map[string]radar.Source
	order   []string
	presets map[string]radar.Preset
	rules   []radar.Rule
	stats   map[string]radar.DomainStat
	items   map[string]radar.FetchedItem
	itemSeq []string
}

var _ radar.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		runs:    make(map[string]radar.Run),
		jobs:    make(map[string]radar.Job),
		sources: make(map[string]radar.Source),
		presets: make(map[string]radar.Preset),
		stats:   make(map[string]radar.DomainStat),
		items:   make(map[string]radar.FetchedItem),
	}
}

// AddSource inserts or replaces a source.
func (s *Store) AddSource(src radar.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[src.ID]; !ok {
		s.order = append(s.order, src.ID)
	}
	s.sources[src.ID] = src
}

// AddPreset inserts or replaces a preset.
func (s *Store) AddPreset(p radar.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.ID] = p
}

// AddRule appends a rule.
func (s *Store) AddRule(r radar.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

// SetDomainStat seeds a domain stat.
func (s *Store) SetDomainStat(stat radar.DomainStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stat.Hostname] = stat
}

// Source returns a copy of a stored source.
func (s *Store) Source(id string) (radar.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	return src, ok
}

// Job returns a copy of a stored job.
func (s *Store) Job(id string) (radar.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// Items returns stored items in insertion order.
func (s *Store) Items() []radar.FetchedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.FetchedItem, 0, len(s.itemSeq))
	for _, url := range s.itemSeq {
		out = append(out, s.items[url])
	}
	return out
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// CreateRun stores a run and its job together.
func (s *Store) CreateRun(_ context.Context, run radar.Run, job radar.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.runs[run.ID] = run
	s.jobs[job.ID] = job
	return nil
}

// ClaimNext leases the oldest queued job that still has attempts left.
func (s *Store) ClaimNext(_ context.Context, now time.Time) (radar.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		picked radar.Job
		found  bool
	)
	for _, job := range s.jobs {
		if job.Status != radar.JobStatusQueued || job.Attempts >= job.MaxAttempts {
			continue
		}
		if !found || job.CreatedAt.Before(picked.CreatedAt) ||
			(job.CreatedAt.Equal(picked.CreatedAt) && job.ID < picked.ID) {
			picked = job
			found = true
		}
	}
	if !found {
		return radar.Job{}, false, nil
	}
	picked.Status = radar.JobStatusRunning
	picked.Attempts++
	picked.LockedAt = pointerTime(now)
	s.jobs[picked.ID] = picked
	return picked, true, nil
}

// MarkJobSuccess completes a job.
func (s *Store) MarkJobSuccess(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, radar.ErrNotFound)
	}
	job.Status = radar.JobStatusSuccess
	job.LockedAt = nil
	job.Error = ""
	s.jobs[jobID] = job
	return nil
}

// RequeueJob returns a job to the queue with its last error.
func (s *Store) RequeueJob(_ context.Context, jobID string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, radar.ErrNotFound)
	}
	job.Status = radar.JobStatusQueued
	job.LockedAt = nil
	job.Error = errText
	s.jobs[jobID] = job
	return nil
}

// FailJob fails the job and, when still running, its run.
func (s *Store) FailJob(_ context.Context, job radar.Job, errText string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failJobLocked(job.ID, errText, now)
}

func (s *Store) failJobLocked(jobID, errText string, now time.Time) error {
	stored, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, radar.ErrNotFound)
	}
	stored.Status = radar.JobStatusFailed
	stored.LockedAt = nil
	stored.Error = errText
	s.jobs[jobID] = stored

	run, ok := s.runs[stored.RunID]
	if !ok || run.Status != radar.RunStatusRunning {
		return nil
	}
	run.Status = radar.RunStatusFailed
	run.Error = errText
	run.DurationMs = now.Sub(run.RequestedAt).Milliseconds()
	s.runs[run.ID] = run
	return nil
}

// ReclaimStale requeues (or fails, when out of attempts) running jobs locked before cutoff.
func (s *Store) ReclaimStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for id, job := range s.jobs {
		if job.Status != radar.JobStatusRunning || job.LockedAt == nil || !job.LockedAt.Before(cutoff) {
			continue
		}
		reclaimed++
		if job.Attempts >= job.MaxAttempts {
			if err := s.failJobLocked(id, leaseExpired, cutoff); err != nil {
				return reclaimed, err
			}
			continue
		}
		job.Status = radar.JobStatusQueued
		job.LockedAt = nil
		job.Error = leaseExpired
		s.jobs[id] = job
	}
	return reclaimed, nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(_ context.Context, runID string) (radar.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return radar.Run{}, fmt.Errorf("run %s: %w", runID, radar.ErrNotFound)
	}
	return run, nil
}

// UpdateRun finalizes a run. Terminal runs are not rewritten.
func (s *Store) UpdateRun(_ context.Context, runID string, update radar.RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, radar.ErrNotFound)
	}
	if run.Status != radar.RunStatusRunning {
		return fmt.Errorf("run %s already %s", runID, run.Status)
	}
	run.Status = update.Status
	run.Result = update.Result
	run.Error = update.Error
	run.DurationMs = update.DurationMs
	s.runs[runID] = run
	return nil
}

// ListSources resolves the query. Unknown presets yield radar.ErrNotFound.
func (s *Store) ListSources(_ context.Context, query radar.SourceQuery) ([]radar.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case len(query.IDs) > 0:
		return s.byIDsLocked(query.IDs), nil
	case query.PresetID != "":
		preset, ok := s.presets[query.PresetID]
		if !ok {
			return nil, fmt.Errorf("preset %s: %w", query.PresetID, radar.ErrNotFound)
		}
		return s.byIDsLocked(preset.SourceIDs), nil
	case query.DefaultPreset:
		for _, preset := range s.sortedPresetsLocked() {
			if preset.IsDefault {
				return s.byIDsLocked(preset.SourceIDs), nil
			}
		}
		return nil, fmt.Errorf("default preset: %w", radar.ErrNotFound)
	default:
		out := make([]radar.Source, 0, len(s.order))
		for _, id := range s.order {
			if src := s.sources[id]; src.Enabled {
				out = append(out, src)
			}
		}
		return out, nil
	}
}

func (s *Store) byIDsLocked(ids []string) []radar.Source {
	out := make([]radar.Source, 0, len(ids))
	for _, id := range ids {
		if src, ok := s.sources[id]; ok {
			out = append(out, src)
		}
	}
	return out
}

func (s *Store) sortedPresetsLocked() []radar.Preset {
	presets := make([]radar.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		presets = append(presets, p)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].ID < presets[j].ID })
	return presets
}

// DisableSources switches the given sources off.
func (s *Store) DisableSources(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if src, ok := s.sources[id]; ok {
			src.Enabled = false
			s.sources[id] = src
		}
	}
	return nil
}

// ListEnabledRules returns a snapshot of enabled rules.
func (s *Store) ListEnabledRules(context.Context) ([]radar.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetDomainStats returns stored stats for the requested hostnames.
func (s *Store) GetDomainStats(_ context.Context, hostnames []string) (map[string]radar.DomainStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]radar.DomainStat, len(hostnames))
	for _, host := range hostnames {
		if stat, ok := s.stats[host]; ok {
			stat.Samples = append([]radar.DomainSample(nil), stat.Samples...)
			out[host] = stat
		}
	}
	return out, nil
}

// ApplyHealth writes domain stats and source outcomes under one lock.
func (s *Store) ApplyHealth(_ context.Context, batch radar.HealthBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, upd := range batch.Sources {
		if _, ok := s.sources[upd.SourceID]; !ok {
			return fmt.Errorf("source %s: %w", upd.SourceID, radar.ErrNotFound)
		}
	}
	for _, stat := range batch.Stats {
		stat.Samples = append([]radar.DomainSample(nil), stat.Samples...)
		s.stats[stat.Hostname] = stat
	}
	for _, upd := range batch.Sources {
		src := s.sources[upd.SourceID]
		src.LastFetchedAt = pointerTime(upd.FetchedAt)
		src.LastStatus = copyInt(upd.Status)
		if upd.Success {
			src.ConsecutiveFailures = 0
			src.LastError = ""
			if upd.ETag != "" {
				src.ETag = upd.ETag
			}
			if upd.LastModified != "" {
				src.LastModified = upd.LastModified
			}
		} else {
			src.ConsecutiveFailures++
			src.LastError = upd.Error
			if upd.DisableAt > 0 && src.ConsecutiveFailures >= upd.DisableAt {
				src.Enabled = false
			}
		}
		s.sources[upd.SourceID] = src
	}
	return nil
}

// FindExistingItems maps already stored URLs to their item IDs.
func (s *Store) FindExistingItems(_ context.Context, urls []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, url := range urls {
		if item, ok := s.items[url]; ok {
			out[url] = item.ID
		}
	}
	return out, nil
}

// BulkInsertItems inserts items whose URL is not yet stored and reports how many were added.
func (s *Store) BulkInsertItems(_ context.Context, items []radar.FetchedItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, item := range items {
		if _, exists := s.items[item.URL]; exists {
			continue
		}
		s.items[item.URL] = item
		s.itemSeq = append(s.itemSeq, item.URL)
		created++
	}
	return created, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
