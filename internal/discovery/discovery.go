// Package discovery finds RSS/Atom feeds for a site URL.
//
// A page that is itself a feed wins, then <link rel="alternate"> tags, then a bounded set of
// conventional feed paths probed in parallel. Results are cached per input URL.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/techradar/internal/metrics"
	"github.com/JakeFAU/techradar/internal/radar"
)

// Defaults applied when Config fields are zero.
const (
	DefaultUserAgent        = "techradar/0.1"
	DefaultTimeout          = 8 * time.Second
	DefaultProbeTimeout     = 6 * time.Second
	DefaultProbeConcurrency = 5
	DefaultMaxGuesses       = 12
	DefaultCacheTTL         = 10 * time.Minute
)

const cacheKeyPrefix = "discovery:"

var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/xml",
	"text/xml",
	"application/feed+xml",
}

var feedBodyPattern = regexp.MustCompile(`(?i)<rss\b|<feed\b|<rdf:RDF\b`)

// Config controls discovery behavior.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	MaxGuesses       int
	CacheTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = DefaultProbeConcurrency
	}
	if c.MaxGuesses <= 0 {
		c.MaxGuesses = DefaultMaxGuesses
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Result lists the feeds found for a URL.
type Result struct {
	Feeds    []string `json:"feeds"`
	FinalURL string   `json:"finalUrl"`
}

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

// Discoverer finds feeds for site URLs.
type Discoverer struct {
	cfg    Config
	cache  radar.Cache
	logger *zap.Logger
	base   *colly.Collector
}

// New builds a Discoverer. cache may be nil to disable caching.
func New(cfg Config, cache radar.Cache, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	timeout := cfg.Timeout
	if cfg.ProbeTimeout > timeout {
		timeout = cfg.ProbeTimeout
	}
	return &Discoverer{
		cfg:    cfg,
		cache:  cache,
		logger: logger.Named("discovery"),
		base:   newBaseCollector(cfg.UserAgent, timeout),
	}
}

// Discover returns the feeds advertised by or guessed for rawURL.
func (d *Discoverer) Discover(ctx context.Context, rawURL string) (Result, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return Result{}, fmt.Errorf("%w %q", ErrInvalidURL, rawURL)
	}
	key := cacheKeyPrefix + target.String()
	if cached, ok := d.lookup(ctx, key); ok {
		return cached, nil
	}

	p, err := visit(ctx, d.base, target.String(), d.cfg.Timeout)
	if err != nil {
		return Result{}, err
	}
	finalURL := p.FinalURL
	if finalURL == "" {
		finalURL = target.String()
	}

	var result Result
	switch {
	case looksLikeFeed(p):
		result = Result{Feeds: []string{finalURL}, FinalURL: finalURL}
	case len(p.FeedLinks) > 0:
		result = Result{Feeds: p.FeedLinks, FinalURL: finalURL}
	default:
		guesses := Guesses(finalURL, d.cfg.MaxGuesses)
		result = Result{Feeds: d.probe(ctx, guesses), FinalURL: finalURL}
	}

	d.logger.Debug("feeds discovered",
		zap.String("url", target.String()),
		zap.String("final_url", finalURL),
		zap.Int("feeds", len(result.Feeds)),
	)
	d.store(ctx, key, result)
	return result, nil
}

// probe visits guesses concurrently and returns the ones serving a feed, in guess order.
// Probe failures are expected and ignored.
func (d *Discoverer) probe(ctx context.Context, guesses []string) []string {
	found := make([]string, len(guesses))
	var g errgroup.Group
	g.SetLimit(d.cfg.ProbeConcurrency)
	for i, candidate := range guesses {
		g.Go(func() error {
			p, err := visit(ctx, d.base, candidate, d.cfg.ProbeTimeout)
			if err != nil || !looksLikeFeed(p) {
				return nil
			}
			found[i] = p.FinalURL
			if found[i] == "" {
				found[i] = candidate
			}
			return nil
		})
	}
	_ = g.Wait()

	feeds := []string{}
	for _, feedURL := range found {
		if feedURL != "" {
			feeds = appendUnique(feeds, feedURL)
		}
	}
	return feeds
}

func (d *Discoverer) lookup(ctx context.Context, key string) (Result, bool) {
	if d.cache == nil {
		return Result{}, false
	}
	raw, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		d.logger.Warn("discovery cache read failed", zap.Error(err))
		return Result{}, false
	}
	var result Result
	if ok {
		if err := json.Unmarshal(raw, &result); err != nil {
			d.logger.Warn("discovery cache entry corrupt", zap.String("key", key), zap.Error(err))
			ok = false
		}
	}
	metrics.ObserveDiscoveryCache(ok)
	return result, ok
}

func (d *Discoverer) store(ctx context.Context, key string, result Result) {
	if d.cache == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, raw, d.cfg.CacheTTL); err != nil {
		d.logger.Warn("discovery cache write failed", zap.Error(err))
	}
}

func looksLikeFeed(p page) bool {
	if p.Status >= 400 {
		return false
	}
	contentType := strings.ToLower(p.ContentType)
	matched := false
	for _, feedType := range feedContentTypes {
		if strings.Contains(contentType, feedType) {
			matched = true
			break
		}
	}
	return matched && feedBodyPattern.Match(p.Body)
}
