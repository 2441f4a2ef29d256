// Package worker implements the job polling loop: reclaim stale leases, claim the next job,
// run it, and record the outcome.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/metrics"
	"github.com/JakeFAU/techradar/internal/radar"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultLeaseTimeout = 15 * time.Minute
	outcomeTimeout      = 10 * time.Second
)

// Executor runs the Run behind a claimed job.
type Executor interface {
	Execute(ctx context.Context, runID string) error
}

// Config controls Worker behavior.
type Config struct {
	PollInterval time.Duration
	// LeaseTimeout is how long a running job may hold its lease before it is reclaimed.
	LeaseTimeout time.Duration
}

// Worker polls the job store and executes claimed jobs one at a time.
type Worker struct {
	jobs     radar.JobStore
	executor Executor
	clock    radar.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(jobs radar.JobStore, executor Executor, clock radar.Clock, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		jobs:     jobs,
		executor: executor,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("worker"),
	}
}

// Run blocks, claiming and executing jobs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for ctx.Err() == nil {
		processed, err := w.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("poll failed", zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// Poll reclaims stale leases and processes at most one job. It reports whether a job was claimed.
func (w *Worker) Poll(ctx context.Context) (bool, error) {
	now := w.clock.Now()
	reclaimed, err := w.jobs.ReclaimStale(ctx, now.Add(-w.cfg.LeaseTimeout))
	if err != nil {
		return false, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if reclaimed > 0 {
		w.logger.Warn("reclaimed stale jobs", zap.Int("count", reclaimed))
		metrics.ObserveJob("reclaimed")
	}

	job, ok, err := w.jobs.ClaimNext(ctx, now)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if !ok {
		return false, nil
	}
	metrics.ObserveJob("claimed")
	w.logger.Debug("claimed job",
		zap.String("job_id", job.ID),
		zap.String("run_id", job.RunID),
		zap.Int("attempt", job.Attempts),
	)
	w.processJob(ctx, job)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job radar.Job) {
	runErr := w.executor.Execute(ctx, job.RunID)

	// Record the outcome even when ctx was cancelled mid-run so the job is not left leased.
	outCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeTimeout)
	defer cancel()

	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("run_id", job.RunID))
	if runErr == nil {
		if err := w.jobs.MarkJobSuccess(outCtx, job.ID); err != nil {
			logger.Error("mark job success failed", zap.Error(err))
			return
		}
		metrics.ObserveJob(string(radar.JobStatusSuccess))
		logger.Info("job succeeded")
		return
	}

	if job.Attempts < job.MaxAttempts {
		if err := w.jobs.RequeueJob(outCtx, job.ID, runErr.Error()); err != nil {
			logger.Error("requeue job failed", zap.Error(err))
			return
		}
		metrics.ObserveJob(string(radar.JobStatusQueued))
		logger.Warn("job failed, requeued",
			zap.Int("attempt", job.Attempts),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Error(runErr),
		)
		return
	}

	if err := w.jobs.FailJob(outCtx, job, runErr.Error(), w.clock.Now()); err != nil {
		logger.Error("fail job failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(radar.JobStatusFailed))
	logger.Error("job failed permanently",
		zap.Int("attempts", job.Attempts),
		zap.NamedError("cause", radar.ErrJobExhausted),
		zap.Error(runErr),
	)
}
