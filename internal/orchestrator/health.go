package orchestrator

import (
	"time"

	"github.com/JakeFAU/techradar/internal/health"
	"github.com/JakeFAU/techradar/internal/radar"
)

// healthBatch folds one sample per report into the stored domain stats and builds the source
// updates. Reports for the same hostname are applied in report order.
func (o *Orchestrator) healthBatch(reports []radar.SourceReport, stored map[string]radar.DomainStat) radar.HealthBatch {
	now := o.clock.Now()
	current := make(map[string]radar.DomainStat, len(stored))
	for host, stat := range stored {
		current[host] = stat
	}
	touched := make(map[string]bool, len(reports))
	var order []string

	batch := radar.HealthBatch{Sources: make([]radar.SourceUpdate, 0, len(reports))}
	for _, report := range reports {
		sample := radar.DomainSample{
			OK:        report.OK(),
			LatencyMs: report.LatencyMs,
			Status:    report.Status,
			At:        now,
		}
		var prev *radar.DomainStat
		if stat, ok := current[report.Hostname]; ok {
			prev = &stat
		}
		if !touched[report.Hostname] {
			touched[report.Hostname] = true
			order = append(order, report.Hostname)
		}
		current[report.Hostname] = health.Update(report.Hostname, prev, sample, o.cfg.DomainWindow, now)

		batch.Sources = append(batch.Sources, sourceUpdate(report, now, o.cfg.DisableThreshold))
	}

	batch.Stats = make([]radar.DomainStat, 0, len(order))
	for _, host := range order {
		batch.Stats = append(batch.Stats, current[host])
	}
	return batch
}

func sourceUpdate(report radar.SourceReport, now time.Time, disableAt int) radar.SourceUpdate {
	upd := radar.SourceUpdate{
		SourceID:  report.SourceID,
		FetchedAt: now,
		DisableAt: disableAt,
	}
	if report.Status != 0 {
		status := report.Status
		upd.Status = &status
	}
	if report.OK() {
		upd.Success = true
		upd.ETag = report.ETag
		upd.LastModified = report.LastModified
		return upd
	}
	upd.Error = report.Error
	if upd.Error == "" {
		upd.Error = "fetch failed"
	}
	return upd
}
