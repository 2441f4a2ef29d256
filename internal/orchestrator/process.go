package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/canon"
	"github.com/JakeFAU/techradar/internal/classify"
	"github.com/JakeFAU/techradar/internal/feed"
	"github.com/JakeFAU/techradar/internal/fetcher/httpfetch"
	"github.com/JakeFAU/techradar/internal/policy/hostlimit"
	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/rank"
	"github.com/JakeFAU/techradar/internal/rules"
)

// Raw keys added to every fetched item.
const (
	rawSourceURL = "sourceUrl"
	rawSourceKey = "sourceKey"
	rawGUID      = "guid"
)

const parseFailureStatus = http.StatusInternalServerError

type sourceResult struct {
	report radar.SourceReport
	items  []radar.FetchedItem
}

func isNotFound(err error) bool {
	return errors.Is(err, radar.ErrNotFound)
}

func newRuleEngine(ruleSet []radar.Rule) *rules.Engine {
	return rules.New(ruleSet)
}

// real fetches every source under the global and per-host limits, then writes health.
func (o *Orchestrator) real(
	ctx context.Context,
	runID string,
	params radar.RunParams,
	sources []radar.Source,
	engine *rules.Engine,
	logger *zap.Logger,
) (outcome, error) {
	plan, stats, err := o.domainPlan(ctx, sources)
	if err != nil {
		return outcome{}, err
	}
	pool := hostlimit.New(hostlimit.Config{
		Global:         o.cfg.GlobalConcurrency,
		DefaultPerHost: o.cfg.Levels.Base,
		HostRPS:        o.cfg.HostRPS,
		HostBurst:      o.cfg.HostBurst,
	}, clampPlan(plan, o.cfg.Levels.Base))

	results := make([]sourceResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src radar.Source) {
			defer wg.Done()
			host := canon.HostnameOrUnknown(src.Key)
			applied := appliedConcurrency(plan[host], o.cfg.Levels.Base)
			err := pool.Do(ctx, host, func(ctx context.Context) error {
				logger.Debug("fetching source",
					zap.String("source_id", src.ID),
					zap.String("hostname", host),
					zap.Int("in_flight", pool.InFlight(host)),
				)
				results[i] = o.processSource(ctx, runID, params, src, host, applied, engine)
				return nil
			})
			if err != nil {
				results[i] = sourceResult{report: radar.SourceReport{
					SourceID:                 src.ID,
					Name:                     src.Name,
					Hostname:                 host,
					DomainConcurrencyApplied: applied,
					Error:                    err.Error(),
					ErrorKind:                radar.ErrorKindNetwork,
				}}
			}
		}(i, src)
	}
	wg.Wait()

	var out outcome
	out.reports = make([]radar.SourceReport, 0, len(results))
	for _, res := range results {
		out.reports = append(out.reports, res.report)
		out.items = append(out.items, res.items...)
		if !res.report.OK() {
			logger.Warn("source failed",
				zap.String("source_id", res.report.SourceID),
				zap.String("hostname", res.report.Hostname),
				zap.Int("status", res.report.Status),
				zap.Int64("latency_ms", res.report.LatencyMs),
				zap.String("error", res.report.Error),
			)
		}
	}
	out.fetched = len(out.items)

	if len(out.reports) > 0 {
		batch := o.healthBatch(out.reports, stats)
		if err := o.store.ApplyHealth(ctx, batch); err != nil {
			return outcome{}, err
		}
	}
	return out, nil
}

func clampPlan(plan map[string]int, base int) map[string]int {
	out := make(map[string]int, len(plan))
	for host, n := range plan {
		out[host] = appliedConcurrency(n, base)
	}
	return out
}

// processSource fetches and parses one source. Failures are returned in the report.
func (o *Orchestrator) processSource(
	ctx context.Context,
	runID string,
	params radar.RunParams,
	src radar.Source,
	host string,
	applied int,
	engine *rules.Engine,
) sourceResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.processSource", trace.WithAttributes(
		attribute.String("source_id", src.ID),
		attribute.String("hostname", host),
	))
	defer span.End()

	report := radar.SourceReport{
		SourceID:                 src.ID,
		Name:                     src.Name,
		Hostname:                 host,
		DomainConcurrencyApplied: applied,
	}
	started := time.Now()
	res := o.fetcher.Fetch(ctx, httpfetch.Request{
		URL:          src.Key,
		ETag:         src.ETag,
		LastModified: src.LastModified,
		Timeout:      o.cfg.FetchTimeout,
		Retries:      o.cfg.FetchRetries,
		Kind:         httpfetch.KindFeed,
	})
	report.LatencyMs = time.Since(started).Milliseconds()
	report.Status = res.Status
	report.ETag = res.ETag
	report.LastModified = res.LastModified
	report.FinalURL = res.FinalURL

	if res.NotModified() {
		return sourceResult{report: report}
	}
	if res.Err != nil || res.Status != http.StatusOK || res.Body == "" {
		setFailure(&report, res)
		span.SetAttributes(attribute.String("error_kind", string(report.ErrorKind)))
		return sourceResult{report: report}
	}

	parsed, usedHTML, parseErr := o.parse(ctx, src, res, params.FallbackEnabled())
	if parseErr != nil {
		setParseFailure(&report, parseErr)
		span.RecordError(parseErr)
		return sourceResult{report: report}
	}
	report.UsedHTMLFallback = usedHTML

	now := o.clock.Now()
	prepared := feed.Prepare(parsed, now, params.LookbackDays, o.cfg.MaxItemsPerSource)
	items := make([]radar.FetchedItem, 0, len(prepared))
	for _, entry := range prepared {
		item, keep := o.scoreItem(runID, src, entry, now, engine)
		if keep {
			items = append(items, item)
		}
	}
	report.FetchedCount = len(items)
	return sourceResult{report: report, items: items}
}

func setFailure(report *radar.SourceReport, res httpfetch.Result) {
	if res.Err != nil {
		if res.Err.Kind == radar.ErrorKindParse {
			setParseFailure(report, res.Err)
			return
		}
		report.Error = res.Err.Error()
		report.ErrorKind = res.Err.Kind
		return
	}
	if res.Status != http.StatusOK {
		fe := radar.NewHTTPError(res.FinalURL, res.Status)
		report.Error = fe.Error()
		report.ErrorKind = fe.Kind
		return
	}
	setParseFailure(report, errors.New("empty response body"))
}

// setParseFailure records an unusable 200 body as a 500 failure.
func setParseFailure(report *radar.SourceReport, err error) {
	report.Status = parseFailureStatus
	report.Error = err.Error()
	report.ErrorKind = radar.KindOf(err)
	if report.ErrorKind == "" {
		report.ErrorKind = radar.ErrorKindParse
	}
}

// parse reads the feed and falls back to HTML scraping when the feed is unusable.
func (o *Orchestrator) parse(ctx context.Context, src radar.Source, res httpfetch.Result, fallback bool) ([]feed.Item, bool, error) {
	baseURL := res.FinalURL
	if baseURL == "" {
		baseURL = src.Key
	}
	items, err := feed.ParseFeed(res.Body)
	if err == nil && len(items) > 0 {
		return items, false, nil
	}
	if !fallback {
		if err != nil {
			return nil, false, radar.NewParseError(baseURL, err)
		}
		return items, false, nil
	}

	var htmlText string
	if feed.LooksLikeHTML(res.ContentType, res.Body) {
		htmlText = res.Body
	} else {
		htmlText, baseURL = o.fetchHTML(ctx, baseURL)
	}
	if htmlText == "" {
		if err != nil {
			return nil, false, radar.NewParseError(baseURL, err)
		}
		return items, false, nil
	}

	items = feed.ParseHTML(htmlText, baseURL)
	if o.cfg.HTMLMaxPages > 1 && len(items) < o.cfg.MaxItemsPerSource {
		items = o.paginate(ctx, baseURL, items)
	}
	return items, true, nil
}

// fetchHTML loads url as a page and returns its body when it looks like HTML.
func (o *Orchestrator) fetchHTML(ctx context.Context, url string) (string, string) {
	res := o.fetcher.Fetch(ctx, httpfetch.Request{
		URL:     url,
		Timeout: o.cfg.FetchTimeout,
		Retries: o.cfg.FetchRetries,
		Kind:    httpfetch.KindHTML,
	})
	if res.Err != nil || res.Body == "" || !feed.LooksLikeHTML(res.ContentType, res.Body) {
		return "", url
	}
	if res.FinalURL != "" {
		url = res.FinalURL
	}
	return res.Body, url
}

// paginate walks pages 2..HTMLMaxPages, stopping on a revisit, an empty page, or a full source.
func (o *Orchestrator) paginate(ctx context.Context, baseURL string, first []feed.Item) []feed.Item {
	seen := make(map[string]struct{}, len(first))
	collected := feed.MergeByLink(nil, seen, first, o.cfg.MaxItemsPerSource)
	visited := map[string]struct{}{baseURL: {}}

	for page := 2; page <= o.cfg.HTMLMaxPages && len(collected) < o.cfg.MaxItemsPerSource; page++ {
		next, ok := feed.NextPageURL(baseURL, page)
		if !ok {
			break
		}
		if _, dup := visited[next]; dup {
			break
		}
		visited[next] = struct{}{}

		res := o.fetcher.Fetch(ctx, httpfetch.Request{
			URL:     next,
			Timeout: o.cfg.FetchTimeout,
			Retries: o.cfg.FetchRetries,
			Kind:    httpfetch.KindHTML,
		})
		if res.Err != nil || res.Body == "" {
			continue
		}
		pageURL := res.FinalURL
		if pageURL == "" {
			pageURL = next
		}
		pageItems := feed.ParseHTML(res.Body, pageURL)
		if len(pageItems) == 0 {
			break
		}
		collected = feed.MergeByLink(collected, seen, pageItems, o.cfg.MaxItemsPerSource)
	}
	return collected
}

// scoreItem classifies, scores, and applies rules to one parsed entry. It reports false when a
// mute rule matched.
func (o *Orchestrator) scoreItem(
	runID string,
	src radar.Source,
	entry feed.Item,
	now time.Time,
	engine *rules.Engine,
) (radar.FetchedItem, bool) {
	signals := o.classifier.DetectSignals(entry.Title + " " + entry.Snippet)
	item := radar.FetchedItem{
		RunID:       runID,
		Category:    classify.InferCategory(entry.Title, entry.Snippet, entry.Categories, src.CategoryDefault),
		SourceID:    src.ID,
		Title:       entry.Title,
		URL:         entry.Link,
		PublishedAt: entry.PublishedAt,
		Snippet:     entry.Snippet,
		ContentTypeHint: o.classifier.Classify(radar.ClassifyInput{
			Title:      entry.Title,
			URL:        entry.Link,
			Snippet:    entry.Snippet,
			SourceName: src.Name,
			SourceTags: src.Tags,
		}),
		Signals: signals,
		Score:   rank.Score(entry.PublishedAt, now, src.Weight, len(signals), 0),
		Raw:     itemRaw(src, entry),
	}

	outcome := engine.Apply(rules.Target{Title: item.Title, Snippet: item.Snippet, URL: item.URL}, &src)
	if outcome.Muted {
		return radar.FetchedItem{}, false
	}
	item.Score += outcome.Delta

	id, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("generate item id failed", zap.String("url", item.URL), zap.Error(err))
		return radar.FetchedItem{}, false
	}
	item.ID = id
	return item, true
}

func itemRaw(src radar.Source, entry feed.Item) map[string]any {
	raw := map[string]any{
		rawSourceURL:         src.Key,
		rawSourceKey:         src.Key,
		rank.RawOriginalLink: entry.Link,
		rawGUID:              nullableString(entry.GUID),
	}
	for k, v := range entry.Raw {
		raw[k] = v
	}
	return raw
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
