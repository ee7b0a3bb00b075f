// Package server builds the application graph from configuration and runs
// the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/api"
	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/dispatcher"
	"github.com/JakeFAU/sitecrawler/internal/engine"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
	collyfetcher "github.com/JakeFAU/sitecrawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/sitecrawler/internal/fetcher/headless"
	"github.com/JakeFAU/sitecrawler/internal/fetcher/tiered"
	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
	"github.com/JakeFAU/sitecrawler/internal/headless/detector"
	"github.com/JakeFAU/sitecrawler/internal/id/uuid"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/policy/ratelimit"
	"github.com/JakeFAU/sitecrawler/internal/progress"
	progresssinks "github.com/JakeFAU/sitecrawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/sitecrawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/sitecrawler/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/sitecrawler/internal/queue/memory"
	"github.com/JakeFAU/sitecrawler/internal/scrape"
	"github.com/JakeFAU/sitecrawler/internal/search"
	"github.com/JakeFAU/sitecrawler/internal/sitemap"
	gcsstorage "github.com/JakeFAU/sitecrawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitecrawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitecrawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitecrawler/internal/storage/postgres"
	"github.com/JakeFAU/sitecrawler/internal/telemetry"
	"github.com/JakeFAU/sitecrawler/internal/worker"
)

// Version is reported on traces; the build overrides it with -ldflags.
var Version = "dev"

// Operations holds the four request handlers, usable without the HTTP
// service.
type Operations struct {
	Engine   *engine.Engine
	Scraper  *scrape.Scraper
	Mapper   *sitemap.Mapper
	Searcher *search.Searcher

	hub      *progress.Hub
	headless *headlessfetcher.Fetcher
	tracing  *telemetry.Providers
	logger   *zap.Logger
}

// NewOperations builds the fetchers and operations described by cfg.
// Collectors register against reg; nil means the default registry.
func NewOperations(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Operations, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ops := &Operations{logger: logger}

	providers, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
		ProjectID:   cfg.Tracing.ProjectID,
		Registerer:  reg,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	ops.tracing = providers

	emitter, err := ops.setupProgress(cfg, reg)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	clock := system.New()
	ext := extractor.New()
	browserHeaders := headerProfile(crawler.BrowserHeaders(), cfg.HTTP.UserAgent)

	var crawlFetcher crawler.Fetcher = collyfetcher.New(collyfetcher.Config{
		Timeout: cfg.CrawlTimeout(),
		Headers: browserHeaders,
	})
	if cfg.Headless.Enabled {
		ops.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			Headers:           browserHeaders,
		})
		if err != nil {
			ops.Close(ctx)
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		crawlFetcher = tiered.New(crawlFetcher, ops.headless,
			detector.NewHeuristic(cfg.Headless.PromotionThresh), logger.Named("tiered"))
		logger.Info("headless promotion enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	ops.Engine = engine.New(engine.Deps{
		Fetcher:   crawlFetcher,
		Extractor: ext,
		Clock:     clock,
		IDs:       uuid.New(),
		Emitter:   emitter,
		Logger:    logger.Named("engine"),
	}, engine.Config{
		Concurrency:     cfg.Crawler.Concurrency,
		PolitenessDelay: cfg.PolitenessDelay(),
		TextLimit:       cfg.Crawler.TextLimit,
		AcceptBelow:     engine.CrawlAcceptBelow,
		PreflightSeed:   cfg.Crawler.PreflightSeed,
	})

	ops.Scraper = scrape.New(crawlFetcher, ext, clock, scrape.Config{Timeout: cfg.CrawlTimeout()}, logger.Named("scrape"))

	mapFetcher := collyfetcher.New(collyfetcher.Config{Timeout: cfg.MapTimeout(), Headers: browserHeaders})
	ops.Mapper = sitemap.New(mapFetcher, clock, sitemap.Config{Timeout: cfg.MapTimeout()}, logger.Named("sitemap"))

	ops.Searcher = search.New(search.Deps{
		Engine: collyfetcher.New(collyfetcher.Config{Timeout: cfg.SearchTimeout(), Headers: browserHeaders}),
		Pages: collyfetcher.New(collyfetcher.Config{
			Timeout: cfg.ResultTimeout(),
			Headers: headerProfile(crawler.UserAgentOnly(), cfg.HTTP.UserAgent),
		}),
		Limiter: ratelimit.New(ratelimit.Config{RPS: cfg.Search.PerHostRPS, Burst: cfg.Search.Burst}),
		Clock:   clock,
		Logger:  logger.Named("search"),
	}, search.Config{
		Endpoint:      cfg.Search.Endpoint,
		MaxResults:    cfg.Search.MaxResultsDefault,
		SearchTimeout: cfg.SearchTimeout(),
		ResultTimeout: cfg.ResultTimeout(),
		Parallel:      cfg.Search.Parallel,
	})
	return ops, nil
}

func (o *Operations) setupProgress(cfg config.Config, reg prometheus.Registerer) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if cfg.Crawler.ProgressLogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(o.logger.Named("progress_log")))
	}
	o.hub = progress.NewHub(progress.Config{
		BufferSize:    cfg.Crawler.ProgressBuffer,
		FlushInterval: time.Duration(cfg.Crawler.ProgressFlushMillis) * time.Millisecond,
		Logger:        o.logger.Named("progress_hub"),
	}, sinkList...)
	return o.hub, nil
}

// Close drains progress events and releases the browser and tracer.
func (o *Operations) Close(ctx context.Context) {
	if o.hub != nil {
		if err := o.hub.Close(ctx); err != nil {
			o.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if o.headless != nil {
		o.headless.Close()
	}
	if err := o.tracing.Shutdown(ctx); err != nil {
		o.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
}

// headerProfile applies a configured User-Agent override.
func headerProfile(h http.Header, userAgent string) http.Header {
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return h
}

// App contains the HTTP service and its async job pipeline.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	ops       *Operations
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queuememory.Queue
	closers   []func() error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	return build(ctx, cfg, logger, nil)
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("workers", cfg.Crawler.Workers),
	)

	ops, err := NewOperations(ctx, cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	app.ops = ops

	blobs, err := app.setupStorage(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	jobStore := memorystorage.NewJobStore()
	registry := worker.NewRegistry()
	clock := system.New()
	app.queue = queuememory.NewQueue(cfg.Crawler.QueueDepth)

	workerCfg := worker.Config{
		BlobPrefix: cfg.Storage.Prefix,
		Topic:      cfg.PubSub.TopicName,
	}
	workers := make([]*worker.Worker, 0, cfg.Crawler.Workers)
	for i := 0; i < cfg.Crawler.Workers; i++ {
		deps := worker.Deps{
			Queue:     app.queue,
			Jobs:      jobStore,
			Engine:    ops.Engine,
			Blobs:     blobs,
			Publisher: publisher,
			Hasher:    sha256.New(),
			Clock:     clock,
			Registry:  registry,
		}
		if archive != nil {
			deps.Archive = archive
		}
		workers = append(workers, worker.New(deps, workerCfg, logger.Named("worker").With(zap.Int("index", i))))
	}
	app.dispatch = dispatcher.New(dispatcher.Deps{
		Queue:    app.queue,
		Jobs:     jobStore,
		IDs:      uuid.New(),
		Clock:    clock,
		Registry: registry,
		Logger:   logger.Named("dispatcher"),
	}, workers)

	app.apiServer = api.NewServer(api.Deps{
		Crawler:  ops.Engine,
		Scraper:  ops.Scraper,
		Mapper:   ops.Mapper,
		Searcher: ops.Searcher,
		Jobs:     app.dispatch,
		JobStore: jobStore,
	}, cfg, logger.Named("api"))
	return app, nil
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket, VerifyBucket: true}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		return store, nil
	case config.StorageNone:
		a.logger.Info("report blobs disabled")
		return nil, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupArchive(ctx context.Context) (*pgstore.PageArchive, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no db.dsn configured, page archive disabled")
		return nil, nil
	}
	archive, err := pgstore.Open(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: int32(a.cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("page archive init failed: %w", err)
	}
	a.closers = append(a.closers, func() error { archive.Close(); return nil })
	if err := archive.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("page archive schema: %w", err)
	}
	a.logger.Info("page archive initialized", zap.String("table", a.cfg.DB.Table))
	return archive, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

// Run serves HTTP and drains the job queue until ctx ends or SIGINT/SIGTERM
// arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	<-dispatchDone
	a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure clients. It is safe to call on a partially
// built App.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if a.ops != nil {
		a.ops.Close(ctx)
	}
	a.logger.Info("shutdown complete")
}

// Crawl runs a synchronous crawl.
func (o *Operations) Crawl(ctx context.Context, req crawler.CrawlRequest) (*crawler.CrawlReport, error) {
	return o.Engine.Crawl(ctx, req)
}

// Scrape extracts a single page.
func (o *Operations) Scrape(ctx context.Context, rawURL string) (*crawler.ScrapeResult, error) {
	return o.Scraper.Scrape(ctx, rawURL)
}

// Map lists the addresses found on a single page.
func (o *Operations) Map(ctx context.Context, rawURL string) (*crawler.MapResult, error) {
	return o.Mapper.Map(ctx, rawURL)
}

// Search runs a web search and enriches the hits.
func (o *Operations) Search(ctx context.Context, query string, maxResults int) (*crawler.SearchResult, error) {
	return o.Searcher.Search(ctx, query, maxResults)
}
