// Package dispatcher fans worker loops out over the job store and creates new runs.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/worker"
)

// DefaultMaxAttempts is used when a request does not set max attempts.
const DefaultMaxAttempts = 3

// Runner is one polling loop.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher runs a pool of workers and enqueues runs for them.
type Dispatcher struct {
	jobs    radar.JobStore
	ids     radar.IDGenerator
	clock   radar.Clock
	workers []Runner
}

var _ Runner = (*worker.Worker)(nil)

// New creates a Dispatcher.
func New(jobs radar.JobStore, ids radar.IDGenerator, clock radar.Clock, workers []Runner) *Dispatcher {
	return &Dispatcher{
		jobs:    jobs,
		ids:     ids,
		clock:   clock,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every worker returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueued identifies a newly created run and its job.
type Enqueued struct {
	RunID string `json:"run_id"`
	JobID string `json:"job_id"`
}

// Enqueue validates params and atomically creates a running Run with a queued Job.
func (d *Dispatcher) Enqueue(ctx context.Context, params radar.RunParams, maxAttempts int) (Enqueued, error) {
	if err := params.Validate(); err != nil {
		return Enqueued{}, err
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	runID, err := d.ids.NewID()
	if err != nil {
		return Enqueued{}, fmt.Errorf("generate run id: %w", err)
	}
	jobID, err := d.ids.NewID()
	if err != nil {
		return Enqueued{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	run := radar.Run{
		ID:          runID,
		Params:      params,
		Status:      radar.RunStatusRunning,
		RequestedAt: now,
	}
	job := radar.Job{
		ID:          jobID,
		RunID:       runID,
		Status:      radar.JobStatusQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
	}
	if err := d.jobs.CreateRun(ctx, run, job); err != nil {
		return Enqueued{}, fmt.Errorf("create run: %w", err)
	}
	return Enqueued{RunID: runID, JobID: jobID}, nil
}
