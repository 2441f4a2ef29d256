package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/techradar/internal/radar"
)

const sourceColumns = `s.id, s.key, s.name, s.category_default, s.locale, s.tags, s.weight, s.enabled,
	COALESCE(s.etag, ''), COALESCE(s.last_modified, ''), s.last_fetched_at, s.last_status,
	COALESCE(s.last_error, ''), s.consecutive_failures`

const selectSourcesByIDSQL = `SELECT ` + sourceColumns + ` FROM sources s WHERE s.id = ANY($1)`

const selectPresetSQL = `SELECT id FROM presets WHERE id = $1`

const selectDefaultPresetSQL = `SELECT id FROM presets WHERE is_default ORDER BY id LIMIT 1`

const selectPresetSourcesSQL = `SELECT ` + sourceColumns + `
FROM preset_sources ps JOIN sources s ON s.id = ps.source_id
WHERE ps.preset_id = $1
ORDER BY ps.position, s.id`

const selectEnabledSourcesSQL = `SELECT ` + sourceColumns + `
FROM sources s WHERE s.enabled ORDER BY s.created_at, s.id`

const disableSourcesSQL = `UPDATE sources SET enabled = FALSE WHERE id = ANY($1)`

const selectEnabledRulesSQL = `
SELECT id, type, pattern, action, weight, enabled FROM rules WHERE enabled ORDER BY created_at, id`

const selectDomainStatsSQL = `
SELECT hostname, window_size, samples, avg_latency_ms, fail_rate, consecutive_failures, last_updated_at
FROM domain_stats WHERE hostname = ANY($1)`

const upsertDomainStatSQL = `
INSERT INTO domain_stats (hostname, window_size, samples, avg_latency_ms, fail_rate, consecutive_failures, last_updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (hostname) DO UPDATE SET
	window_size = EXCLUDED.window_size,
	samples = EXCLUDED.samples,
	avg_latency_ms = EXCLUDED.avg_latency_ms,
	fail_rate = EXCLUDED.fail_rate,
	consecutive_failures = EXCLUDED.consecutive_failures,
	last_updated_at = EXCLUDED.last_updated_at`

const sourceSuccessSQL = `
UPDATE sources SET
	last_fetched_at = $2,
	last_status = $3,
	last_error = NULL,
	consecutive_failures = 0,
	etag = COALESCE(NULLIF($4, ''), etag),
	last_modified = COALESCE(NULLIF($5, ''), last_modified)
WHERE id = $1`

const sourceFailureSQL = `
UPDATE sources SET
	last_fetched_at = $2,
	last_status = $3,
	last_error = $4,
	consecutive_failures = consecutive_failures + 1,
	enabled = CASE WHEN $5 > 0 AND consecutive_failures + 1 >= $5 THEN FALSE ELSE enabled END
WHERE id = $1`

// ListSources resolves the query. Unknown presets yield radar.ErrNotFound.
func (s *Store) ListSources(ctx context.Context, query radar.SourceQuery) ([]radar.Source, error) {
	switch {
	case len(query.IDs) > 0:
		found, err := s.querySources(ctx, selectSourcesByIDSQL, query.IDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]radar.Source, len(found))
		for _, src := range found {
			byID[src.ID] = src
		}
		out := make([]radar.Source, 0, len(found))
		for _, id := range query.IDs {
			if src, ok := byID[id]; ok {
				out = append(out, src)
				delete(byID, id)
			}
		}
		return out, nil
	case query.PresetID != "":
		var id string
		if err := s.pool.QueryRow(ctx, selectPresetSQL, query.PresetID).Scan(&id); err != nil {
			return nil, notFound(err, "preset %s", query.PresetID)
		}
		return s.querySources(ctx, selectPresetSourcesSQL, id)
	case query.DefaultPreset:
		var id string
		if err := s.pool.QueryRow(ctx, selectDefaultPresetSQL).Scan(&id); err != nil {
			return nil, notFound(err, "default preset")
		}
		return s.querySources(ctx, selectPresetSourcesSQL, id)
	default:
		return s.querySources(ctx, selectEnabledSourcesSQL)
	}
}

func (s *Store) querySources(ctx context.Context, sql string, args ...any) ([]radar.Source, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	sources, err := pgx.CollectRows(rows, scanSource)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func scanSource(row pgx.CollectableRow) (radar.Source, error) {
	var (
		src      radar.Source
		category string
	)
	err := row.Scan(
		&src.ID, &src.Key, &src.Name, &category, &src.Locale, &src.Tags, &src.Weight, &src.Enabled,
		&src.ETag, &src.LastModified, &src.LastFetchedAt, &src.LastStatus,
		&src.LastError, &src.ConsecutiveFailures,
	)
	src.CategoryDefault = radar.Category(category)
	return src, err
}

// DisableSources turns sources off without touching their counters.
func (s *Store) DisableSources(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, disableSourcesSQL, ids); err != nil {
		return fmt.Errorf("disable sources: %w", err)
	}
	return nil
}

// ListEnabledRules returns every enabled rule.
func (s *Store) ListEnabledRules(ctx context.Context) ([]radar.Rule, error) {
	rows, err := s.pool.Query(ctx, selectEnabledRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (radar.Rule, error) {
		var (
			rule         radar.Rule
			kind, action string
		)
		err := row.Scan(&rule.ID, &kind, &rule.Pattern, &action, &rule.Weight, &rule.Enabled)
		rule.Type = radar.RuleType(kind)
		rule.Action = radar.RuleAction(action)
		return rule, err
	})
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// GetDomainStats returns stored stats for the hostnames that have any.
func (s *Store) GetDomainStats(ctx context.Context, hostnames []string) (map[string]radar.DomainStat, error) {
	out := make(map[string]radar.DomainStat, len(hostnames))
	if len(hostnames) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, selectDomainStatsSQL, hostnames)
	if err != nil {
		return nil, fmt.Errorf("get domain stats: %w", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (radar.DomainStat, error) {
		var (
			stat    radar.DomainStat
			samples []byte
		)
		if err := row.Scan(
			&stat.Hostname, &stat.WindowSize, &samples, &stat.AvgLatencyMs, &stat.FailRate,
			&stat.ConsecutiveFailures, &stat.LastUpdatedAt,
		); err != nil {
			return stat, err
		}
		if len(samples) > 0 {
			if err := json.Unmarshal(samples, &stat.Samples); err != nil {
				return stat, fmt.Errorf("decode samples for %s: %w", stat.Hostname, err)
			}
		}
		return stat, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get domain stats: %w", err)
	}
	for _, stat := range stats {
		out[stat.Hostname] = stat
	}
	return out, nil
}

// ApplyHealth writes domain stats and source updates in one transaction. An unknown source
// rolls back the whole batch.
func (s *Store) ApplyHealth(ctx context.Context, batch radar.HealthBatch) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, stat := range batch.Stats {
			samples, err := json.Marshal(stat.Samples)
			if err != nil {
				return fmt.Errorf("marshal samples for %s: %w", stat.Hostname, err)
			}
			if _, err := tx.Exec(ctx, upsertDomainStatSQL,
				stat.Hostname, stat.WindowSize, samples, stat.AvgLatencyMs, stat.FailRate,
				stat.ConsecutiveFailures, stat.LastUpdatedAt,
			); err != nil {
				return fmt.Errorf("upsert domain stat %s: %w", stat.Hostname, err)
			}
		}
		for _, upd := range batch.Sources {
			if err := updateSource(ctx, tx, upd); err != nil {
				return err
			}
		}
		return nil
	})
}

func updateSource(ctx context.Context, tx pgx.Tx, upd radar.SourceUpdate) error {
	var (
		sql  string
		args []any
	)
	if upd.Success {
		sql = sourceSuccessSQL
		args = []any{upd.SourceID, upd.FetchedAt, upd.Status, upd.ETag, upd.LastModified}
	} else {
		sql = sourceFailureSQL
		args = []any{upd.SourceID, upd.FetchedAt, upd.Status, upd.Error, upd.DisableAt}
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update source %s: %w", upd.SourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", upd.SourceID, radar.ErrNotFound)
	}
	return nil
}
