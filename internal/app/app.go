package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/darthrootbeer/movie-heat/internal/config"
	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/fetch"
	"github.com/darthrootbeer/movie-heat/internal/infrastructure/httpapi"
	"github.com/darthrootbeer/movie-heat/internal/infrastructure/scheduler"
	"github.com/darthrootbeer/movie-heat/internal/infrastructure/sources"
	"github.com/darthrootbeer/movie-heat/internal/infrastructure/storage"
	"github.com/darthrootbeer/movie-heat/internal/infrastructure/telegram"
	"github.com/darthrootbeer/movie-heat/internal/logging"
	"github.com/darthrootbeer/movie-heat/internal/metrics"
	"github.com/darthrootbeer/movie-heat/internal/normalize"
	"github.com/darthrootbeer/movie-heat/internal/ports"
	"github.com/darthrootbeer/movie-heat/internal/registry"
	"github.com/darthrootbeer/movie-heat/internal/resolve"
	"github.com/darthrootbeer/movie-heat/internal/usecase"
)

// Option customizes Application wiring.
type Option func(*options)

type options struct {
	httpClient *http.Client
	store      ports.RecordStore
}

// WithHTTPClient makes every provider use client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithStore bypasses the configured cache backend.
func WithStore(store ports.RecordStore) Option {
	return func(o *options) { o.store = store }
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *registry.Registry
	store    ports.RecordStore
	metrics  *prometheus.Registry
	pipeline *usecase.Pipeline
	closers  []io.Closer
}

// New builds the provider registry, record store, orchestrator and pipeline
// from cfg. Configuration problems surface here, before any fetch.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithOptions(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var sourceOpts []sources.Option
	if o.httpClient != nil {
		sourceOpts = append(sourceOpts, sources.WithHTTPClient(o.httpClient))
	}

	descs := make([]registry.Descriptor, 0, len(cfg.Providers))
	for _, p := range cfg.EnabledProviders() {
		desc, err := buildDescriptor(p, cfg.Catalog.Language, sourceOpts)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	reg, err := registry.New(descs...)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, registry: reg}

	a.store = o.store
	if a.store == nil {
		store, closer, err := openStore(ctx, cfg.Cache)
		if err != nil {
			return nil, err
		}
		a.store = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(a.metrics)

	orchestrator := fetch.New(reg, a.store,
		fetch.WithLogger(baseLogger.With("component", "fetch")),
		fetch.WithRecorder(collector),
		fetch.WithConcurrency(cfg.Engine.Concurrency),
		fetch.WithRetryPolicy(fetch.RetryPolicy{
			MaxAttempts: cfg.Engine.Retry.MaxAttempts,
			BaseDelay:   cfg.Engine.Retry.BaseDelay,
			MaxDelay:    cfg.Engine.Retry.MaxDelay,
		}),
		fetch.WithResolver(resolve.New(resolve.Options{
			YearWindow:          cfg.Engine.Matching.YearWindow,
			SimilarityThreshold: cfg.Engine.Matching.SimilarityThreshold,
			AmbiguityEpsilon:    cfg.Engine.Matching.AmbiguityEpsilon,
		})),
	)

	deps := usecase.PipelineDeps{
		Registry:     reg,
		Fetcher:      orchestrator,
		Observer:     collector,
		Logger:       baseLogger.With("component", "pipeline"),
		BatchTimeout: cfg.Engine.BatchTimeout,
		MinSources:   cfg.Engine.MinSources,
	}
	if cfg.Catalog.APIKey != "" {
		catalog, err := sources.NewCatalog(cfg.Catalog.APIKey, sources.DiscoverOptions{
			Region:       cfg.Catalog.Region,
			Language:     cfg.Catalog.Language,
			WindowDays:   cfg.Catalog.WindowDays,
			ReleaseTypes: cfg.Catalog.ReleaseTypes,
			MinRuntime:   cfg.Catalog.MinRuntime,
			MinVotes:     cfg.Catalog.MinVotes,
			Limit:        cfg.Catalog.Limit,
		}, sourceOpts...)
		if err != nil {
			return nil, err
		}
		deps.Catalog = catalog
		deps.Details = catalog
	}
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		deps.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}
	a.pipeline = usecase.NewPipeline(deps)

	baseLogger.Info("application ready",
		"providers", reg.Len(),
		"cache", cfg.Cache.Backend,
		"catalog", deps.Catalog != nil,
		"telegram", deps.Notifier != nil,
	)
	return a, nil
}

// buildDescriptor maps a configured provider kind onto its source and scale.
func buildDescriptor(p config.ProviderConfig, language string, opts []sources.Option) (registry.Descriptor, error) {
	if p.Endpoint != "" {
		opts = append(append([]sources.Option(nil), opts...), sources.WithBaseURL(p.Endpoint))
	}

	var (
		src   ports.Source
		scale normalize.ScaleSpec
		err   error
	)
	switch p.Kind {
	case config.KindOMDbIMDb:
		src, err = sources.NewOMDb(p.ID, p.APIKey, sources.OMDbIMDb, opts...)
		scale = normalize.Numeric{Min: 0, Max: 10}
	case config.KindOMDbMetacritic:
		src, err = sources.NewOMDb(p.ID, p.APIKey, sources.OMDbMetacritic, opts...)
		scale = normalize.Numeric{Min: 0, Max: 100}
	case config.KindTMDB:
		src, err = sources.NewTMDB(p.ID, p.APIKey, language, opts...)
		scale = normalize.Numeric{Min: 0, Max: 10}
	case config.KindRTCritics:
		src, err = sources.NewRottenTomatoes(p.ID, sources.RTCritics, opts...)
		scale = normalize.Percentage{}
	case config.KindRTAudience:
		src, err = sources.NewRottenTomatoes(p.ID, sources.RTAudience, opts...)
		scale = normalize.Percentage{}
	case config.KindLetterboxd:
		src = sources.NewLetterboxd(p.ID, opts...)
		scale = normalize.Numeric{Min: 0, Max: 5}
	case config.KindCinemaScore:
		src = sources.NewCinemaScore(p.ID, opts...)
		scale = normalize.NewLetterGrade(nil)
	default:
		return registry.Descriptor{}, fmt.Errorf("%w: provider %s has unknown kind %q", domain.ErrConfiguration, p.ID, p.Kind)
	}
	if err != nil {
		return registry.Descriptor{}, err
	}

	return registry.Descriptor{
		ID:          p.ID,
		Scale:       scale,
		Weight:      p.Weight,
		TTL:         p.TTL,
		MaxInFlight: p.MaxInFlight,
		Source:      src,
	}, nil
}

func openStore(ctx context.Context, cfg config.CacheConfig) (ports.RecordStore, io.Closer, error) {
	switch cfg.Backend {
	case config.CacheMemory:
		return fetch.NewMemoryStore(), nil, nil
	case config.CacheSQLite:
		store, err := storage.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.CachePostgres:
		store, err := storage.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.CacheRedis:
		store, err := storage.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown cache backend %q", domain.ErrConfiguration, cfg.Backend)
	}
}

// Resolve runs one batch over queries.
func (a *Application) Resolve(ctx context.Context, queries []domain.MovieQuery) []domain.CanonicalMovie {
	return a.pipeline.Resolve(ctx, queries)
}

// Latest resolves the catalog's latest releases once, publishing a digest
// when a notifier is configured.
func (a *Application) Latest(ctx context.Context) ([]domain.CanonicalMovie, error) {
	return a.pipeline.ProcessLatest(ctx, time.Now())
}

// Watch repeats the latest-releases run on the configured interval until ctx
// ends.
func (a *Application) Watch(ctx context.Context) error {
	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(a.cfg.Schedule.Interval),
		a.pipeline,
		a.logger.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Serve runs the JSON API until ctx ends.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	logger := a.logger.With("component", "httpapi")
	return httpapi.Serve(ctx, addr, httpapi.NewRouter(a.pipeline, a.metrics, logger), logger)
}

// PurgeCache deletes expired records from stores that keep them around.
// Stores with native expiry report zero.
func (a *Application) PurgeCache(ctx context.Context) (int64, error) {
	purger, ok := a.store.(interface {
		Purge(ctx context.Context, now time.Time) (int64, error)
	})
	if !ok {
		a.logger.Info("cache backend expires records itself", "cache", a.cfg.Cache.Backend)
		return 0, nil
	}
	return purger.Purge(ctx, time.Now())
}

// Registry exposes the provider registry.
func (a *Application) Registry() *registry.Registry {
	return a.registry
}

// Gatherer exposes the application's metrics.
func (a *Application) Gatherer() prometheus.Gatherer {
	return a.metrics
}

// Close releases the record store.
func (a *Application) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
