package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/canon"
	"github.com/JakeFAU/techradar/internal/health"
	"github.com/JakeFAU/techradar/internal/metrics"
	"github.com/JakeFAU/techradar/internal/radar"
)

// sourceQuery picks the first populated selector: explicit IDs, then the requested preset,
// then the default preset.
func sourceQuery(params radar.RunParams) radar.SourceQuery {
	switch {
	case len(params.SourceIDs) > 0:
		ids := params.SourceIDs
		if len(ids) > radar.MaxSourceIDs {
			ids = ids[:radar.MaxSourceIDs]
		}
		return radar.SourceQuery{IDs: ids}
	case params.PresetID != "":
		return radar.SourceQuery{PresetID: params.PresetID}
	default:
		return radar.SourceQuery{DefaultPreset: true}
	}
}

// resolveSources loads the candidate sources, applies the locale filter, disables sources
// over the failure threshold, and returns the rest ordered by weight.
func (o *Orchestrator) resolveSources(ctx context.Context, params radar.RunParams, logger *zap.Logger) ([]radar.Source, error) {
	query := sourceQuery(params)
	sources, err := o.store.ListSources(ctx, query)
	if err != nil {
		if !query.DefaultPreset || !isNotFound(err) {
			return nil, fmt.Errorf("list sources: %w", err)
		}
		sources, err = o.store.ListSources(ctx, radar.SourceQuery{AllEnabled: true})
		if err != nil {
			return nil, fmt.Errorf("list sources: %w", err)
		}
	}

	if params.Locale != "" && params.Locale != radar.LocaleAll {
		filtered := sources[:0:0]
		for _, src := range sources {
			if src.Locale == params.Locale {
				filtered = append(filtered, src)
			}
		}
		sources = filtered
	}

	var disable []string
	active := make([]radar.Source, 0, len(sources))
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		if src.ConsecutiveFailures >= o.cfg.DisableThreshold {
			disable = append(disable, src.ID)
			continue
		}
		active = append(active, src)
	}
	if len(disable) > 0 {
		if err := o.store.DisableSources(ctx, disable); err != nil {
			return nil, fmt.Errorf("disable sources: %w", err)
		}
		metrics.ObserveSourcesDisabled(len(disable))
		logger.Info("disabled failing sources", zap.Strings("source_ids", disable))
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Weight > active[j].Weight
	})
	if len(active) > o.cfg.MaxSourcesPerRun {
		active = active[:o.cfg.MaxSourcesPerRun]
	}
	return active, nil
}

// domainPlan maps each source hostname to its concurrency using stored health.
func (o *Orchestrator) domainPlan(ctx context.Context, sources []radar.Source) (map[string]int, map[string]radar.DomainStat, error) {
	seen := make(map[string]struct{}, len(sources))
	hostnames := make([]string, 0, len(sources))
	for _, src := range sources {
		host := canon.HostnameOrUnknown(src.Key)
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hostnames = append(hostnames, host)
	}
	stats, err := o.store.GetDomainStats(ctx, hostnames)
	if err != nil {
		return nil, nil, fmt.Errorf("get domain stats: %w", err)
	}
	return health.Plan(hostnames, stats, o.cfg.Levels), stats, nil
}

// appliedConcurrency clamps a planned value to [1, base].
func appliedConcurrency(planned, base int) int {
	if planned < 1 {
		planned = 1
	}
	if planned > base {
		return base
	}
	return planned
}
