// Package metrics exposes Prometheus collectors for the techradar service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	hostInFlight               *prometheus.GaugeVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	itemsTotal                 *prometheus.CounterVec
	sourcesDisabledTotal       prometheus.Counter
	discoveryCacheTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techradar_fetch_total",
				Help: "Total number of source fetches, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "techradar_fetch_duration_seconds",
				Help:    "Histogram of source fetch latencies including retries, labeled by host.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techradar_fetch_bytes_total",
				Help: "Total number of body bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		hostInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "techradar_host_in_flight",
				Help: "Number of fetches currently in flight per host.",
			},
			[]string{"host"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "techradar_rate_limit_delays_seconds",
				Help:    "Histogram of per-host pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techradar_jobs_total",
				Help: "Total number of job transitions, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "techradar_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techradar_runs_total",
				Help: "Total number of finished runs, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "techradar_run_duration_seconds",
				Help:    "Histogram of run durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techradar_items_total",
				Help: "Total number of ranked items, labeled by disposition (stored, seen, muted).",
			},
			[]string{"disposition"},
		)

		sourcesDisabledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "techradar_sources_disabled_total",
				Help: "Total number of sources auto-disabled after repeated failures.",
			},
		)

		discoveryCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "techradar_discovery_cache_total",
				Help: "Discovery cache lookups, labeled by result (hit, miss).",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveFetch records one source fetch. Status 0 is reported as "network".
func ObserveFetch(host string, status int, duration time.Duration, bytesFetched int) {
	Init()
	outcome := "network"
	if status > 0 {
		outcome = strconv.Itoa(status)
	}
	fetchTotal.WithLabelValues(host, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// SetHostInFlight publishes the number of in-flight fetches for host.
func SetHostInFlight(host string, n int) {
	Init()
	hostInFlight.WithLabelValues(host).Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRun records a finished run.
func ObserveRun(mode, status string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(mode, status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveItems adds n items to the given disposition.
func ObserveItems(disposition string, n int) {
	Init()
	if n <= 0 {
		return
	}
	itemsTotal.WithLabelValues(disposition).Add(float64(n))
}

// ObserveSourcesDisabled counts sources switched off by the failure threshold.
func ObserveSourcesDisabled(n int) {
	Init()
	if n <= 0 {
		return
	}
	sourcesDisabledTotal.Add(float64(n))
}

// ObserveDiscoveryCache records a discovery cache lookup.
func ObserveDiscoveryCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	discoveryCacheTotal.WithLabelValues(result).Inc()
}
