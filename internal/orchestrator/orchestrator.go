// Package orchestrator executes one Run end to end: resolve sources, fetch them under domain
// limits, score and rank the items, persist them, and finalize the Run.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/feed"
	"github.com/JakeFAU/techradar/internal/fetcher/httpfetch"
	"github.com/JakeFAU/techradar/internal/health"
	"github.com/JakeFAU/techradar/internal/metrics"
	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/rank"
)

// ErrAllSourcesFailed is the Run error when no source answered and nothing was stored.
var ErrAllSourcesFailed = errors.New("all sources failed")

const (
	defaultGlobalConcurrency = 6
	defaultFetchTimeout      = 10 * time.Second
	defaultMaxItemsPerSource = 50
	defaultMaxSourcesPerRun  = 50
	defaultDisableThreshold  = 5
	archiveContentType       = "application/json"
)

// Fetcher performs one logical fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req httpfetch.Request) httpfetch.Result
}

// Config controls run execution.
type Config struct {
	GlobalConcurrency int
	Levels            health.Levels
	HostRPS           float64
	HostBurst         int
	FetchTimeout      time.Duration
	FetchRetries      int
	MaxItemsPerSource int
	HTMLMaxPages      int
	MaxSourcesPerRun  int
	DisableThreshold  int
	DomainWindow      int
	Defaults          radar.ParamDefaults
	// ArchivePrefix is prepended to <runID>.json when archiving finished runs.
	ArchivePrefix string
	// Topic receives run-finished events; empty uses the publisher default.
	Topic string
}

func (c Config) withDefaults() Config {
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = defaultGlobalConcurrency
	}
	defaults := health.DefaultLevels()
	if c.Levels.Base < 1 {
		c.Levels.Base = defaults.Base
	}
	if c.Levels.Degraded < 1 {
		c.Levels.Degraded = defaults.Degraded
	}
	if c.Levels.Degraded > c.Levels.Base {
		c.Levels.Degraded = c.Levels.Base
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.MaxItemsPerSource <= 0 {
		c.MaxItemsPerSource = defaultMaxItemsPerSource
	}
	c.HTMLMaxPages = feed.ClampMaxPages(c.HTMLMaxPages)
	if c.MaxSourcesPerRun <= 0 || c.MaxSourcesPerRun > radar.MaxSourceIDs {
		c.MaxSourcesPerRun = defaultMaxSourcesPerRun
	}
	if c.DisableThreshold <= 0 {
		c.DisableThreshold = defaultDisableThreshold
	}
	if c.DomainWindow <= 0 {
		c.DomainWindow = health.DefaultWindowSize
	}
	if c.Defaults.LookbackDays <= 0 {
		c.Defaults.LookbackDays = 14
	}
	return c
}

// Orchestrator runs fetch runs against a store.
type Orchestrator struct {
	store      radar.Store
	fetcher    Fetcher
	classifier radar.Classifier
	clock      radar.Clock
	ids        radar.IDGenerator
	archive    radar.BlobStore
	publisher  radar.Publisher
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New constructs an Orchestrator. archive and publisher are optional.
func New(
	store radar.Store,
	fetcher Fetcher,
	classifier radar.Classifier,
	clock radar.Clock,
	ids radar.IDGenerator,
	archive radar.BlobStore,
	publisher radar.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		classifier: classifier,
		clock:      clock,
		ids:        ids,
		archive:    archive,
		publisher:  publisher,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("orchestrator"),
		tracer:     otel.Tracer("github.com/JakeFAU/techradar/internal/orchestrator"),
	}
}

// outcome is what a mode produces before persistence.
type outcome struct {
	items   []radar.FetchedItem
	reports []radar.SourceReport
	fetched int
}

// Execute runs the Run identified by runID. Runs that are no longer running are skipped.
// Returned errors are infrastructure failures; per-source failures are recorded on the Run.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != radar.RunStatusRunning {
		o.logger.Info("run already finished, skipping", zap.String("run_id", runID), zap.String("status", string(run.Status)))
		return nil
	}

	params := run.Params.Normalize(o.cfg.Defaults)
	ctx, span := o.tracer.Start(ctx, "orchestrator.Execute", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", string(params.Mode)),
	))
	defer span.End()

	start := o.clock.Now()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("mode", string(params.Mode)))
	logger.Info("run started")

	res, err := o.collect(ctx, runID, params, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	update, err := o.persist(ctx, runID, params, res, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := o.store.UpdateRun(ctx, runID, update); err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}

	duration := time.Duration(update.DurationMs) * time.Millisecond
	metrics.ObserveRun(string(params.Mode), string(update.Status), duration)
	span.SetAttributes(
		attribute.String("status", string(update.Status)),
		attribute.Int("stored", update.Result.Counts.TotalStored),
	)
	logger.Info("run finished",
		zap.String("status", string(update.Status)),
		zap.Int("fetched", update.Result.Counts.TotalFetched),
		zap.Int("stored", update.Result.Counts.TotalStored),
		zap.Int("seen", len(update.Result.SeenItemIDs)),
		zap.Int64("duration_ms", update.DurationMs),
	)

	o.archiveRun(ctx, runID, logger)
	o.notify(ctx, runID, update, logger)
	return nil
}

func (o *Orchestrator) collect(ctx context.Context, runID string, params radar.RunParams, logger *zap.Logger) (outcome, error) {
	ruleSet, err := o.store.ListEnabledRules(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("list rules: %w", err)
	}
	sources, err := o.resolveSources(ctx, params, logger)
	if err != nil {
		return outcome{}, err
	}
	engine := newRuleEngine(ruleSet)

	if params.Mode == radar.ModeDummy {
		return o.dummy(runID, params, sources, engine)
	}
	return o.real(ctx, runID, params, sources, engine, logger)
}

// persist dedupes, limits, and stores items, and builds the Run completion fields.
func (o *Orchestrator) persist(
	ctx context.Context,
	runID string,
	params radar.RunParams,
	res outcome,
	start time.Time,
) (radar.RunUpdate, error) {
	ranked := rank.LimitByCategory(rank.Dedupe(res.items), params.Limits)
	metrics.ObserveItems("ranked", len(ranked))

	urls := make([]string, 0, len(ranked))
	for _, item := range ranked {
		urls = append(urls, item.URL)
	}
	existing, err := o.store.FindExistingItems(ctx, urls)
	if err != nil {
		return radar.RunUpdate{}, fmt.Errorf("find existing items: %w", err)
	}

	seen := make([]string, 0, len(existing))
	fresh := make([]radar.FetchedItem, 0, len(ranked))
	for _, item := range ranked {
		if id, ok := existing[item.URL]; ok {
			seen = append(seen, id)
			continue
		}
		item.RunID = runID
		fresh = append(fresh, item)
	}

	created, err := o.store.BulkInsertItems(ctx, fresh)
	if err != nil {
		return radar.RunUpdate{}, fmt.Errorf("store items: %w", err)
	}
	metrics.ObserveItems("stored", created)
	metrics.ObserveItems("seen", len(seen))

	counts := radar.RunCounts{TotalFetched: res.fetched, TotalStored: created}
	anyOK := false
	for _, report := range res.reports {
		switch {
		case report.OK() && report.Status == 304:
			counts.SourceNotModified++
			anyOK = true
		case report.OK():
			counts.SourceSuccess++
			anyOK = true
		default:
			counts.SourceFailures++
		}
	}

	update := radar.RunUpdate{
		Status: radar.RunStatusSuccess,
		Result: &radar.RunResult{
			Sources:     reportsOrEmpty(res.reports),
			SeenItemIDs: seen,
			Counts:      counts,
		},
		DurationMs: o.clock.Now().Sub(start).Milliseconds(),
	}
	if !anyOK && created == 0 {
		update.Status = radar.RunStatusFailed
		update.Error = ErrAllSourcesFailed.Error()
	}
	return update, nil
}

func reportsOrEmpty(reports []radar.SourceReport) []radar.SourceReport {
	if reports == nil {
		return []radar.SourceReport{}
	}
	return reports
}

// archiveRun writes the finalized Run as JSON. Failures are logged only.
func (o *Orchestrator) archiveRun(ctx context.Context, runID string, logger *zap.Logger) {
	if o.archive == nil {
		return
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		logger.Warn("archive: reload run failed", zap.Error(err))
		return
	}
	body, err := json.Marshal(run)
	if err != nil {
		logger.Warn("archive: encode run failed", zap.Error(err))
		return
	}
	objectPath := archivePath(o.cfg.ArchivePrefix, runID)
	uri, err := o.archive.PutObject(ctx, objectPath, archiveContentType, bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive run failed", zap.String("path", objectPath), zap.Error(err))
		return
	}
	logger.Debug("run archived", zap.String("uri", uri))
}

func archivePath(prefix, runID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return runID + ".json"
	}
	return path.Join(prefix, runID+".json")
}

// notify publishes the run-finished event. Failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, runID string, update radar.RunUpdate, logger *zap.Logger) {
	if o.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":      runID,
		"status":      update.Status,
		"stored":      update.Result.Counts.TotalStored,
		"duration_ms": update.DurationMs,
	}
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
		return
	}
	logger.Debug("run event published", zap.String("message_id", id))
}
