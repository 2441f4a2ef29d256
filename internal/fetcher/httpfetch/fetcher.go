// Package httpfetch performs conditional GETs of feeds and pages with manual redirect handling,
// immediate retries, and a mirror fallback for retired feed hosts.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/canon"
	"github.com/JakeFAU/techradar/internal/metrics"
	"github.com/JakeFAU/techradar/internal/radar"
)

// Accept headers by request kind.
const (
	FeedAccept = "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8"
	HTMLAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

const (
	defaultUserAgent    = "techradar/0.1"
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultMaxRedirects = 5
	golangBlogHost      = "blog.golang.org"
	golangBlogFeed      = "blog.golang.org/feed.atom"
	golangMirrorFeed    = "https://go.dev/blog/feed.atom"
)

// ErrBodyTooLarge marks a 2xx body longer than Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Kind selects the Accept header.
type Kind string

// Request kinds.
const (
	KindFeed Kind = "feed"
	KindHTML Kind = "html"
)

// Request describes one logical fetch.
type Request struct {
	URL          string
	ETag         string
	LastModified string
	// Timeout bounds each attempt; zero uses the fetcher default.
	Timeout time.Duration
	// Retries is the number of additional attempts after a network or 5xx failure.
	Retries int
	Kind    Kind
}

// Result is the outcome of a fetch. Err is nil for 2xx and 304 responses.
type Result struct {
	Status       int
	Body         string
	ContentType  string
	ETag         string
	LastModified string
	FinalURL     string
	Err          *radar.FetchError
}

// NotModified reports a 304 response.
func (r Result) NotModified() bool {
	return r.Status == http.StatusNotModified && r.Err == nil
}

// OK reports a 200 or 304 response.
func (r Result) OK() bool {
	return r.Err == nil && (r.Status == http.StatusOK || r.Status == http.StatusNotModified)
}

// Config configures a Fetcher.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRedirects int
}

// Fetcher executes Requests.
type Fetcher struct {
	client    *http.Client
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
	mirrorFor func(rawURL string) (string, bool)
}

// New builds a Fetcher. A nil client uses a fresh http.Client; its redirect policy is replaced
// so redirects can be walked manually.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var c http.Client
	if client != nil {
		c = *client
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Fetcher{
		client:    &c,
		cfg:       cfg,
		logger:    logger.Named("httpfetch"),
		tracer:    otel.Tracer("github.com/JakeFAU/techradar/internal/fetcher/httpfetch"),
		mirrorFor: golangMirror,
	}
}

// golangMirror maps the retired Go blog feed to its go.dev location.
func golangMirror(rawURL string) (string, bool) {
	if strings.Contains(rawURL, golangBlogFeed) {
		return golangMirrorFeed, true
	}
	return "", false
}

// Fetch runs the request with mirror fallback and retries. It never returns a Go error; failures
// are described by Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	ctx, span := f.tracer.Start(ctx, "httpfetch.Fetch", trace.WithAttributes(
		attribute.String("url", req.URL),
		attribute.String("kind", string(req.Kind)),
	))
	defer span.End()

	host := canon.HostnameOrUnknown(req.URL)
	start := time.Now()

	res := f.attempt(ctx, req)
	if res.Err != nil && (res.Status == 0 || res.Status >= http.StatusBadRequest) &&
		strings.Contains(req.URL, golangBlogHost) {
		if mirror, ok := f.mirrorFor(req.URL); ok {
			mirrorReq := req
			mirrorReq.URL = mirror
			mres := f.attempt(ctx, mirrorReq)
			if mres.OK() {
				f.logger.Info("served from mirror", zap.String("url", req.URL), zap.String("mirror", mirror))
				f.observe(host, mres, start, span)
				return mres
			}
		}
	}

	for attempt := 0; attempt < req.Retries && res.Err != nil && res.Err.Retryable(); attempt++ {
		f.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("status", res.Status),
			zap.Int("attempt", attempt+1),
			zap.Error(res.Err),
		)
		res = f.attempt(ctx, req)
	}

	f.observe(host, res, start, span)
	return res
}

func (f *Fetcher) observe(host string, res Result, start time.Time, span trace.Span) {
	metrics.ObserveFetch(host, res.Status, time.Since(start), len(res.Body))
	span.SetAttributes(attribute.Int("http.status_code", res.Status))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
}

// attempt walks the redirect chain once, bounded by the per-attempt timeout.
func (f *Fetcher) attempt(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	current := req.URL
	conditional := true
	lastStatus := 0
	for hop := 0; hop <= f.cfg.MaxRedirects; hop++ {
		resp, err := f.do(ctx, current, req, conditional)
		if err != nil {
			return Result{FinalURL: current, Err: radar.NewNetworkError(current, err)}
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drain(resp.Body)
			if location == "" {
				return f.finish(ctx, current, resp)
			}
			next, err := resolve(current, location)
			if err != nil {
				return Result{
					Status:   resp.StatusCode,
					FinalURL: current,
					Err: &radar.FetchError{
						Kind:    radar.ErrorKindRedirect,
						Status:  resp.StatusCode,
						URL:     current,
						Message: fmt.Sprintf("invalid redirect location %q", location),
						Cause:   err,
					},
				}
			}
			lastStatus = resp.StatusCode
			current = next
			// Validators belong to the originally requested resource.
			conditional = false
			continue
		}
		return f.finish(ctx, current, resp)
	}

	return Result{
		Status:   lastStatus,
		FinalURL: current,
		Err: &radar.FetchError{
			Kind:    radar.ErrorKindRedirect,
			Status:  lastStatus,
			URL:     req.URL,
			Message: "too many redirects",
		},
	}
}

func (f *Fetcher) do(ctx context.Context, target string, req Request, conditional bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	if req.Kind == KindHTML {
		httpReq.Header.Set("Accept", HTMLAccept)
	} else {
		httpReq.Header.Set("Accept", FeedAccept)
	}
	if conditional {
		if req.ETag != "" {
			httpReq.Header.Set("If-None-Match", req.ETag)
		}
		if req.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", req.LastModified)
		}
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

// finish converts a terminal (non-redirect) response into a Result and closes its body.
func (f *Fetcher) finish(ctx context.Context, finalURL string, resp *http.Response) Result {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("close response body", zap.Error(err))
		}
	}()

	res := Result{
		Status:       resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     finalURL,
	}
	if resp.StatusCode == http.StatusNotModified {
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = radar.NewHTTPError(finalURL, resp.StatusCode)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		res.Status = 0
		res.Err = radar.NewNetworkError(finalURL, fmt.Errorf("read body: %w", err))
		return res
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		f.logger.Warn("response body over limit",
			zap.String("url", finalURL),
			zap.Int64("max_body_bytes", f.cfg.MaxBodyBytes),
		)
		res.Err = &radar.FetchError{
			Kind:    radar.ErrorKindParse,
			Status:  resp.StatusCode,
			URL:     finalURL,
			Message: fmt.Sprintf("response body exceeds %d bytes", f.cfg.MaxBodyBytes),
			Cause:   ErrBodyTooLarge,
		}
		return res
	}
	res.Body = string(body)
	return res
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func resolve(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
