// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/api"
	"github.com/JakeFAU/techradar/internal/cache"
	"github.com/JakeFAU/techradar/internal/classify"
	"github.com/JakeFAU/techradar/internal/clock/system"
	"github.com/JakeFAU/techradar/internal/config"
	"github.com/JakeFAU/techradar/internal/discovery"
	"github.com/JakeFAU/techradar/internal/dispatcher"
	"github.com/JakeFAU/techradar/internal/fetcher/httpfetch"
	"github.com/JakeFAU/techradar/internal/health"
	"github.com/JakeFAU/techradar/internal/id/uuid"
	"github.com/JakeFAU/techradar/internal/metrics"
	"github.com/JakeFAU/techradar/internal/orchestrator"
	memorypublisher "github.com/JakeFAU/techradar/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/techradar/internal/publisher/pubsub"
	"github.com/JakeFAU/techradar/internal/radar"
	"github.com/JakeFAU/techradar/internal/storage/gcs"
	"github.com/JakeFAU/techradar/internal/storage/local"
	"github.com/JakeFAU/techradar/internal/storage/memory"
	"github.com/JakeFAU/techradar/internal/storage/postgres"
	"github.com/JakeFAU/techradar/internal/telemetry"
	"github.com/JakeFAU/techradar/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// App holds the shared, long-lived services for one process. It is built once at startup
// by the CLI and closed when the command returns.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        radar.Store
	cache        radar.Cache
	archive      radar.BlobStore
	publisher    radar.Publisher
	discoverer   *discovery.Discoverer
	orchestrator *orchestrator.Orchestrator
	dispatcher   *dispatcher.Dispatcher
	tracer       *sdktrace.TracerProvider

	closers []func() error
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the persistence backend.
func (a *App) Store() radar.Store { return a.store }

// Discoverer returns the feed discoverer.
func (a *App) Discoverer() *discovery.Discoverer { return a.discoverer }

// Orchestrator returns the run executor.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Dispatcher returns the worker pool and run enqueuer.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatcher }

// Archive returns the run archive, or nil when archiving is off.
func (a *App) Archive() radar.BlobStore { return a.archive }

// Publisher returns the run notification publisher.
func (a *App) Publisher() radar.Publisher { return a.publisher }

// Server builds the ops HTTP API over the app's services.
func (a *App) Server() *api.Server {
	return api.NewServer(a.store, a.dispatcher, a.discoverer, a.cfg, a.logger)
}

// New creates and initializes an App from cfg. It fails fast when a configured backend cannot
// be reached; anything opened before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	l := a.logger

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tp

	if err := a.initStore(ctx); err != nil {
		return err
	}
	if err := a.initCache(ctx); err != nil {
		return err
	}
	if err := a.initArchive(ctx); err != nil {
		return err
	}
	if err := a.initPublisher(ctx); err != nil {
		return err
	}

	clock := system.New()
	ids := uuid.New()
	if a.cache == nil {
		a.cache = cache.NewMemory(clock)
	}

	a.discoverer = discovery.New(discovery.Config{
		UserAgent:        cfg.Fetch.UserAgent,
		Timeout:          time.Duration(cfg.Discovery.TimeoutSeconds) * time.Second,
		ProbeTimeout:     time.Duration(cfg.Discovery.ProbeTimeoutSeconds) * time.Second,
		ProbeConcurrency: cfg.Discovery.ProbeConcurrency,
		MaxGuesses:       cfg.Discovery.MaxGuesses,
		CacheTTL:         time.Duration(cfg.Discovery.CacheTTLSeconds) * time.Second,
	}, a.cache, l)

	fetcher := httpfetch.New(httpfetch.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		MaxRedirects: cfg.Fetch.MaxRedirects,
	}, nil, l)

	a.orchestrator = orchestrator.New(
		a.store,
		fetcher,
		classify.New(),
		clock,
		ids,
		a.archive,
		a.publisher,
		orchestratorConfig(cfg),
		l,
	)

	workers := make([]dispatcher.Runner, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(a.store, a.orchestrator, clock, worker.Config{
			PollInterval: cfg.PollInterval(),
			LeaseTimeout: cfg.LeaseTimeout(),
		}, l.With(zap.Int("worker", i))))
	}
	a.dispatcher = dispatcher.New(a.store, ids, clock, workers)
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory store; data is lost on exit")
		a.store = memory.NewStore()
		return nil
	}
	a.logger.Info("connecting to PostgreSQL")
	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = store
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case config.BackendRedis:
		a.logger.Info("using redis discovery cache", zap.String("addr", a.cfg.Cache.RedisAddr))
		c, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		a.cache = c
		a.closers = append(a.closers, c.Close)
	case config.BackendMemory, "":
		// built in init once the clock exists
	default:
		return fmt.Errorf("unknown cache backend: %s", a.cfg.Cache.Backend)
	}
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		a.logger.Info("archiving runs to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		a.archive = store
		a.closers = append(a.closers, store.Close)
	case config.BackendLocal:
		a.logger.Info("archiving runs to local disk", zap.String("base_dir", a.cfg.Archive.BaseDir))
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		a.archive = store
	case config.BackendMemory:
		a.archive = memory.NewBlobStore()
	case config.BackendNone, "":
		a.logger.Info("run archiving disabled")
	default:
		return fmt.Errorf("unknown archive backend: %s", a.cfg.Archive.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("pubsub.project_id unset; run notifications are kept in memory")
		a.publisher = memorypublisher.New()
		return nil
	}
	a.logger.Info("connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.TopicName))
	p, err := pubsubpublisher.Open(ctx, pubsubpublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		TopicID:   a.cfg.PubSub.TopicName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	a.publisher = p
	a.closers = append(a.closers, p.Close)
	return nil
}

func orchestratorConfig(cfg config.Config) orchestrator.Config {
	return orchestrator.Config{
		GlobalConcurrency: cfg.Fetch.Concurrency,
		Levels:            health.Levels{Base: cfg.Fetch.DomainBase, Degraded: cfg.Fetch.DomainDegraded},
		HostRPS:           cfg.Fetch.DomainRPS,
		HostBurst:         cfg.Fetch.DomainBurst,
		FetchTimeout:      cfg.FetchTimeout(),
		FetchRetries:      cfg.Fetch.Retries,
		MaxItemsPerSource: cfg.Pipeline.MaxItemsPerSource,
		HTMLMaxPages:      cfg.Pipeline.HTMLMaxPages,
		MaxSourcesPerRun:  cfg.Pipeline.MaxSourcesPerRun,
		DisableThreshold:  cfg.Pipeline.DisableThreshold,
		DomainWindow:      cfg.Pipeline.DomainWindow,
		Defaults: radar.ParamDefaults{
			LookbackDays: cfg.Pipeline.LookbackDays,
			HTMLFallback: cfg.Pipeline.HTMLFallback,
		},
		ArchivePrefix: cfg.Archive.Prefix,
		Topic:         cfg.PubSub.TopicName,
	}
}

// Close shuts down all services in the App container in reverse order of creation.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	if a.store != nil {
		a.store.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	}
}
