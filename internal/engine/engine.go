// Package engine runs breadth-first crawl jobs: it drives the frontier,
// fetches and extracts each page, admits discovered links and hands the
// ordered results to the report aggregator.
package engine

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
	"github.com/JakeFAU/sitecrawler/internal/frontier"
	"github.com/JakeFAU/sitecrawler/internal/progress"
	"github.com/JakeFAU/sitecrawler/internal/report"
)

const (
	tracerName = "github.com/JakeFAU/sitecrawler/internal/engine"

	// CrawlAcceptBelow is the crawl path status ceiling: 4xx bodies are
	// still extracted.
	CrawlAcceptBelow = 500

	defaultPreflightTimeout = 5 * time.Second
)

// Resolver looks up hostnames; *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config tunes the crawl loop.
type Config struct {
	// Concurrency is the number of pages fetched in parallel per batch.
	Concurrency int
	// PolitenessDelay is the pause between iterations; zero disables it.
	PolitenessDelay time.Duration
	// TextLimit bounds the stored body text in runes.
	TextLimit int
	// AcceptBelow is the exclusive status ceiling treated as a fetched page.
	AcceptBelow int
	// PreflightSeed resolves the seed host before the loop starts.
	PreflightSeed    bool
	PreflightTimeout time.Duration
}

// DefaultConfig returns the reference crawl behavior.
func DefaultConfig() Config {
	return Config{
		Concurrency:      1,
		PolitenessDelay:  crawler.DefaultPolitenessDelay,
		TextLimit:        crawler.DefaultTextLimit,
		AcceptBelow:      CrawlAcceptBelow,
		PreflightTimeout: defaultPreflightTimeout,
	}
}

// Deps are the collaborators of an Engine. Fetcher and Extractor are
// required; the rest have defaults.
type Deps struct {
	Fetcher   crawler.Fetcher
	Extractor crawler.Extractor
	Pauser    crawler.Pauser
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Emitter   progress.Emitter
	Resolver  Resolver
	Logger    *zap.Logger
}

// Engine executes crawl jobs. It holds no per-job state and may run many
// jobs concurrently.
type Engine struct {
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	pauser    crawler.Pauser
	clock     crawler.Clock
	ids       crawler.IDGenerator
	emitter   progress.Emitter
	resolver  Resolver
	tracer    trace.Tracer
	logger    *zap.Logger
	cfg       Config
}

// New builds an Engine.
func New(deps Deps, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TextLimit <= 0 {
		cfg.TextLimit = crawler.DefaultTextLimit
	}
	if cfg.AcceptBelow <= 0 {
		cfg.AcceptBelow = CrawlAcceptBelow
	}
	if cfg.PreflightTimeout <= 0 {
		cfg.PreflightTimeout = defaultPreflightTimeout
	}
	e := &Engine{
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		pauser:    deps.Pauser,
		clock:     deps.Clock,
		ids:       deps.IDs,
		emitter:   deps.Emitter,
		resolver:  deps.Resolver,
		tracer:    otel.Tracer(tracerName),
		logger:    deps.Logger,
		cfg:       cfg,
	}
	if e.extractor == nil {
		e.extractor = extractor.New()
	}
	if e.pauser == nil {
		e.pauser = crawler.TimerPauser{}
	}
	if e.clock == nil {
		e.clock = utcClock{}
	}
	if e.emitter == nil {
		e.emitter = progress.Discard{}
	}
	if e.resolver == nil {
		e.resolver = net.DefaultResolver
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Crawl runs req under a freshly generated job ID.
func (e *Engine) Crawl(ctx context.Context, req crawler.CrawlRequest) (*crawler.CrawlReport, error) {
	return e.Run(ctx, e.newJobID(), req)
}

// Run executes one crawl job. Invalid requests and internal faults return a
// *crawler.JobError and no report. Cancellation of ctx is not an error: the
// report holds the pages finished so far and has Canceled set.
func (e *Engine) Run(ctx context.Context, jobID string, req crawler.CrawlRequest) (rep *crawler.CrawlReport, err error) {
	seed, err := validate(req)
	if err != nil {
		return nil, err
	}
	if e.cfg.PreflightSeed {
		if err := e.preflight(ctx, seed); err != nil {
			return nil, err
		}
	}

	ctx, span := e.tracer.Start(ctx, "crawl.job", trace.WithAttributes(
		attribute.String("job_id", jobID),
		attribute.String("start_url", req.StartURL),
		attribute.Int("max_depth", req.MaxDepth),
		attribute.Int("max_pages", req.MaxPages),
	))
	defer span.End()

	started := e.clock.Now()
	logger := e.logger.With(zap.String("job_id", jobID))
	e.emitter.Emit(progress.Event{JobID: jobID, TS: started, Stage: progress.StageJobStart, URL: req.StartURL})
	logger.Info("crawl started",
		zap.String("start_url", req.StartURL),
		zap.Int("max_depth", req.MaxDepth),
		zap.Int("max_pages", req.MaxPages),
		zap.Bool("same_origin_only", req.SameOriginOnly),
	)

	defer func() {
		if r := recover(); r != nil {
			rep = nil
			err = crawler.OrchestrationFault("crawl loop panicked", fmt.Errorf("%v", r))
		}
		e.finish(jobID, started, span, logger, rep, err)
	}()

	run := &job{
		id:       jobID,
		req:      req,
		frontier: frontier.New(frontier.Policy{Seed: seed, MaxDepth: req.MaxDepth, MaxPages: req.MaxPages, SameOriginOnly: req.SameOriginOnly}),
		logger:   logger,
	}
	if err := e.loop(ctx, run); err != nil {
		return nil, err
	}

	aggregated := report.Aggregate(req, run.results, run.frontier.VisitedCount(), e.clock.Now())
	aggregated.Canceled = run.canceled
	return &aggregated, nil
}

func (e *Engine) finish(jobID string, started time.Time, span trace.Span, logger *zap.Logger, rep *crawler.CrawlReport, err error) {
	now := e.clock.Now()
	evt := progress.Event{JobID: jobID, TS: now, Dur: now.Sub(started)}
	switch {
	case err != nil:
		evt.Stage, evt.Note = progress.StageJobError, err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("crawl failed", zap.Error(err))
	case rep.Canceled:
		evt.Stage = progress.StageJobCanceled
		logger.Info("crawl canceled", zap.Int("pages", len(rep.CrawledPages)))
	default:
		evt.Stage = progress.StageJobDone
		span.SetAttributes(attribute.Int("pages", len(rep.CrawledPages)))
		logger.Info("crawl finished",
			zap.Int("pages", rep.Statistics.TotalPagesCrawled),
			zap.Int("failed", rep.Statistics.FailedPages),
			zap.Int("unique_urls", rep.Statistics.UniqueURLs),
			zap.Duration("elapsed", evt.Dur),
		)
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	e.emitter.Emit(evt)
}

func (e *Engine) newJobID() string {
	if e.ids != nil {
		if id, err := e.ids.NewID(); err == nil {
			return id
		}
	}
	return "crawl-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

// Validate checks req without running it. It returns the same
// *crawler.JobError that Run would.
func Validate(req crawler.CrawlRequest) error {
	_, err := validate(req)
	return err
}

func validate(req crawler.CrawlRequest) (*url.URL, error) {
	seed, err := crawler.ParseSeed(req.StartURL)
	if err != nil {
		return nil, err
	}
	if req.MaxDepth < 0 {
		return nil, crawler.InvalidInput("maxDepth must be >= 0", nil)
	}
	if req.MaxPages < 1 {
		return nil, crawler.InvalidInput("maxPages must be >= 1", nil)
	}
	return seed, nil
}

// preflight confirms the seed host resolves before any page is fetched.
func (e *Engine) preflight(ctx context.Context, seed *url.URL) error {
	host := seed.Hostname()
	if net.ParseIP(host) != nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, e.cfg.PreflightTimeout)
	defer cancel()
	if _, err := e.resolver.LookupHost(lookupCtx, host); err != nil {
		fetchErr := crawler.NewTransportError(seed.String(), err)
		if fetchErr.Kind == crawler.FailureOther {
			fetchErr.Kind = crawler.FailureDomainUnresolved
		}
		return crawler.InvalidInput(fetchErr.Message(), fetchErr)
	}
	return nil
}
