// Package config loads and validates techradar configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// WorkerConfig governs the job polling loops.
type WorkerConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	PollIntervalMs      int `mapstructure:"poll_interval_ms"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	LeaseTimeoutSeconds int `mapstructure:"lease_timeout_seconds"`
}

// FetchConfig governs outbound HTTP fetches and per-domain concurrency.
type FetchConfig struct {
	Concurrency    int     `mapstructure:"concurrency"`
	DomainBase     int     `mapstructure:"domain_base"`
	DomainDegraded int     `mapstructure:"domain_degraded"`
	TimeoutMs      int     `mapstructure:"timeout_ms"`
	Retries        int     `mapstructure:"retries"`
	UserAgent      string  `mapstructure:"user_agent"`
	MaxBodyBytes   int64   `mapstructure:"max_body_bytes"`
	MaxRedirects   int     `mapstructure:"max_redirects"`
	DomainRPS      float64 `mapstructure:"domain_rps"`
	DomainBurst    int     `mapstructure:"domain_burst"`
}

// PipelineConfig holds run defaults and source health thresholds.
type PipelineConfig struct {
	LookbackDays      int  `mapstructure:"lookback_days"`
	MaxItemsPerSource int  `mapstructure:"max_items_per_source"`
	HTMLFallback      bool `mapstructure:"html_fallback"`
	HTMLMaxPages      int  `mapstructure:"html_max_pages"`
	MaxSourcesPerRun  int  `mapstructure:"max_sources_per_run"`
	DisableThreshold  int  `mapstructure:"disable_threshold"`
	DomainWindow      int  `mapstructure:"domain_window"`
}

// DiscoveryConfig tunes feed discovery.
type DiscoveryConfig struct {
	CacheTTLSeconds     int `mapstructure:"cache_ttl_seconds"`
	TimeoutSeconds      int `mapstructure:"timeout_seconds"`
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds"`
	ProbeConcurrency    int `mapstructure:"probe_concurrency"`
	MaxGuesses          int `mapstructure:"max_guesses"`
}

// CacheConfig selects the discovery cache backend.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// ArchiveConfig selects where finished run results are archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-finished notifications. An empty project publishes in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig describes the tracer provider.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Cache and archive backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// searchPaths are consulted in order when Load is called without a path.
var searchPaths = []string{".", "/etc/techradar", "$HOME/.techradar"}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TECHRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		// Without an explicit path, a techradar.yaml in a well-known location is optional.
		v.SetConfigName("techradar")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key, including empty ones, so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.poll_interval_ms", 2000)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.lease_timeout_seconds", 900)
	v.SetDefault("fetch.concurrency", 6)
	v.SetDefault("fetch.domain_base", 2)
	v.SetDefault("fetch.domain_degraded", 1)
	v.SetDefault("fetch.timeout_ms", 10000)
	v.SetDefault("fetch.retries", 1)
	v.SetDefault("fetch.user_agent", "techradar/0.1 (+https://github.com/JakeFAU/techradar)")
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.domain_rps", 0)
	v.SetDefault("fetch.domain_burst", 1)
	v.SetDefault("pipeline.lookback_days", 14)
	v.SetDefault("pipeline.max_items_per_source", 50)
	v.SetDefault("pipeline.html_fallback", true)
	v.SetDefault("pipeline.html_max_pages", 3)
	v.SetDefault("pipeline.max_sources_per_run", 50)
	v.SetDefault("pipeline.disable_threshold", 5)
	v.SetDefault("pipeline.domain_window", 10)
	v.SetDefault("discovery.cache_ttl_seconds", 600)
	v.SetDefault("discovery.timeout_seconds", 8)
	v.SetDefault("discovery.probe_timeout_seconds", 6)
	v.SetDefault("discovery.probe_concurrency", 5)
	v.SetDefault("discovery.max_guesses", 12)
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.prefix", "runs")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "radar-runs")
	v.SetDefault("telemetry.service_name", "techradar")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be > 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.DomainBase <= 0 || c.Fetch.DomainDegraded <= 0 {
		return fmt.Errorf("fetch.domain_base and fetch.domain_degraded must be > 0")
	}
	if c.Fetch.DomainDegraded > c.Fetch.DomainBase {
		return fmt.Errorf("fetch.domain_degraded must not exceed fetch.domain_base")
	}
	if c.Fetch.TimeoutMs <= 0 {
		return fmt.Errorf("fetch.timeout_ms must be > 0")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if c.Fetch.DomainRPS < 0 {
		return fmt.Errorf("fetch.domain_rps must be >= 0")
	}
	if c.Pipeline.DisableThreshold <= 0 {
		return fmt.Errorf("pipeline.disable_threshold must be > 0")
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	return nil
}

// FetchTimeout converts fetch.timeout_ms into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutMs) * time.Millisecond
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// PollInterval is how long an idle worker sleeps between polls.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalMs) * time.Millisecond
}

// LeaseTimeout is how long a running job may hold its lease.
func (c Config) LeaseTimeout() time.Duration {
	return time.Duration(c.Worker.LeaseTimeoutSeconds) * time.Second
}
