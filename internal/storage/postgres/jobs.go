package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/techradar/internal/radar"
)

const leaseExpired = "job lease expired"

const insertRunSQL = `
INSERT INTO runs (id, params, status, requested_at)
VALUES ($1, $2, $3, $4)`

const insertJobSQL = `
INSERT INTO jobs (id, run_id, status, attempts, max_attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// claimJobSQL flips the oldest claimable job to running. SKIP LOCKED lets concurrent workers
// pass over a row another transaction is claiming instead of blocking on it.
const claimJobSQL = `
UPDATE jobs SET status = 'running', attempts = attempts + 1, locked_at = $1
WHERE id = (
	SELECT id FROM jobs
	WHERE status = 'queued' AND attempts < max_attempts
	ORDER BY created_at, id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, run_id, status, attempts, max_attempts, locked_at, COALESCE(error, ''), created_at`

const markJobSuccessSQL = `
UPDATE jobs SET status = 'success', locked_at = NULL, error = NULL WHERE id = $1`

const requeueJobSQL = `
UPDATE jobs SET status = 'queued', locked_at = NULL, error = $2 WHERE id = $1`

const failJobSQL = `
UPDATE jobs SET status = 'failed', locked_at = NULL, error = $2 WHERE id = $1
RETURNING run_id`

const failRunSQL = `
UPDATE runs SET status = 'failed', error = $2,
	duration_ms = GREATEST(0, (EXTRACT(EPOCH FROM ($3::timestamptz - requested_at)) * 1000)::bigint)
WHERE id = ANY($1) AND status = 'running'`

const expireExhaustedSQL = `
UPDATE jobs SET status = 'failed', locked_at = NULL, error = $2
WHERE status = 'running' AND locked_at < $1 AND attempts >= max_attempts
RETURNING run_id`

const requeueStaleSQL = `
UPDATE jobs SET status = 'queued', locked_at = NULL, error = $2
WHERE status = 'running' AND locked_at < $1`

const selectRunSQL = `
SELECT id, params, status, result, COALESCE(error, ''), duration_ms, requested_at
FROM runs WHERE id = $1`

const updateRunSQL = `
UPDATE runs SET status = $2, result = $3, error = NULLIF($4, ''), duration_ms = $5
WHERE id = $1 AND status = 'running'`

// CreateRun inserts the run and its job in one transaction.
func (s *Store) CreateRun(ctx context.Context, run radar.Run, job radar.Job) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal run params: %w", err)
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRunSQL, run.ID, params, string(run.Status), run.RequestedAt); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if _, err := tx.Exec(ctx, insertJobSQL,
			job.ID, job.RunID, string(job.Status), job.Attempts, job.MaxAttempts, job.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
}

// ClaimNext leases the oldest queued job. The boolean is false when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (radar.Job, bool, error) {
	var (
		job    radar.Job
		status string
	)
	err := s.pool.QueryRow(ctx, claimJobSQL, now).Scan(
		&job.ID, &job.RunID, &status, &job.Attempts, &job.MaxAttempts, &job.LockedAt, &job.Error, &job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return radar.Job{}, false, nil
	}
	if err != nil {
		return radar.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	job.Status = radar.JobStatus(status)
	return job, true, nil
}

// MarkJobSuccess completes a job.
func (s *Store) MarkJobSuccess(ctx context.Context, jobID string) error {
	return s.execOne(ctx, "mark job success", jobID, markJobSuccessSQL, jobID)
}

// RequeueJob returns a job to the queue with the failure recorded.
func (s *Store) RequeueJob(ctx context.Context, jobID string, errText string) error {
	return s.execOne(ctx, "requeue job", jobID, requeueJobSQL, jobID, errText)
}

// FailJob fails the job and, when still running, its run.
func (s *Store) FailJob(ctx context.Context, job radar.Job, errText string, now time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var runID string
		if err := tx.QueryRow(ctx, failJobSQL, job.ID, errText).Scan(&runID); err != nil {
			return notFound(err, "fail job %s", job.ID)
		}
		if _, err := tx.Exec(ctx, failRunSQL, []string{runID}, errText, now); err != nil {
			return fmt.Errorf("fail run %s: %w", runID, err)
		}
		return nil
	})
}

// ReclaimStale requeues running jobs locked before cutoff, failing those without attempts left.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	reclaimed := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, expireExhaustedSQL, cutoff, leaseExpired)
		if err != nil {
			return fmt.Errorf("expire exhausted jobs: %w", err)
		}
		runIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("expire exhausted jobs: %w", err)
		}
		if len(runIDs) > 0 {
			if _, err := tx.Exec(ctx, failRunSQL, runIDs, leaseExpired, cutoff); err != nil {
				return fmt.Errorf("fail expired runs: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, requeueStaleSQL, cutoff, leaseExpired)
		if err != nil {
			return fmt.Errorf("requeue stale jobs: %w", err)
		}
		reclaimed = len(runIDs) + int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reclaimed, nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (radar.Run, error) {
	var (
		run            radar.Run
		status         string
		params, result []byte
	)
	err := s.pool.QueryRow(ctx, selectRunSQL, runID).Scan(
		&run.ID, &params, &status, &result, &run.Error, &run.DurationMs, &run.RequestedAt,
	)
	if err != nil {
		return radar.Run{}, notFound(err, "get run %s", runID)
	}
	run.Status = radar.RunStatus(status)
	if err := json.Unmarshal(params, &run.Params); err != nil {
		return radar.Run{}, fmt.Errorf("decode run params: %w", err)
	}
	if len(result) > 0 {
		run.Result = &radar.RunResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return radar.Run{}, fmt.Errorf("decode run result: %w", err)
		}
	}
	return run, nil
}

// UpdateRun finalizes a running run. Finalized runs are never rewritten.
func (s *Store) UpdateRun(ctx context.Context, runID string, update radar.RunUpdate) error {
	var result []byte
	if update.Result != nil {
		encoded, err := json.Marshal(update.Result)
		if err != nil {
			return fmt.Errorf("marshal run result: %w", err)
		}
		result = encoded
	}
	tag, err := s.pool.Exec(ctx, updateRunSQL, runID, string(update.Status), result, update.Error, update.DurationMs)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: not running or %w", runID, radar.ErrNotFound)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, op, id, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, id, radar.ErrNotFound)
	}
	return nil
}
