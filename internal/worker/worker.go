// Package worker drains the async job queue: each item runs through the
// crawl engine, and the finished report is stored, archived and announced.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/report"
)

const defaultStoreTimeout = 30 * time.Second

// Runner executes one crawl job; *engine.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, jobID string, req crawler.CrawlRequest) (*crawler.CrawlReport, error)
}

// Config controls Worker behavior.
type Config struct {
	BlobPrefix string
	Topic      string
	// StoreTimeout bounds the persistence steps after a crawl ends. They run
	// detached from the worker context so a canceled job is still recorded.
	StoreTimeout time.Duration
}

// Deps are a Worker's collaborators. Blobs, Archive, Publisher and Hasher
// are optional; the corresponding step is skipped when nil.
type Deps struct {
	Queue     crawler.Queue
	Jobs      crawler.JobStore
	Engine    Runner
	Blobs     crawler.BlobStore
	Archive   crawler.PageArchive
	Publisher crawler.Publisher
	Hasher    crawler.Hasher
	Clock     crawler.Clock
	Registry  *Registry
}

// Worker consumes queue items and executes them one at a time.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming queue items until the context finishes or the
// queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Info("queue closed, worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

// outcome is the terminal state of one job.
type outcome struct {
	status    crawler.JobStatus
	errText   string
	counters  crawler.JobCounters
	reportURI string
	pages     int
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID))
	if w.deps.Engine == nil {
		logger.Error("no crawl engine configured")
		w.finish(ctx, item, outcome{status: crawler.JobStatusFailed, errText: "no crawl engine configured"})
		return
	}

	job, err := w.deps.Jobs.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		logger.Info("skipping job that already finished", zap.String("status", string(job.Status)))
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.deps.Registry.register(item.JobID, cancel)
	defer w.deps.Registry.remove(item.JobID)

	if err := w.deps.Jobs.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", crawler.JobCounters{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	metrics.IncActiveWorkers()
	rep, err := w.deps.Engine.Run(jobCtx, item.JobID, item.Request)
	metrics.DecActiveWorkers()
	if err != nil {
		logger.Warn("crawl job failed", zap.Error(err))
		w.finish(ctx, item, outcome{status: crawler.JobStatusFailed, errText: err.Error()})
		return
	}

	out := outcome{
		status: crawler.JobStatusSucceeded,
		counters: crawler.JobCounters{
			PagesSucceeded: rep.Statistics.SuccessfulPages,
			PagesFailed:    rep.Statistics.FailedPages,
		},
		pages: len(rep.CrawledPages),
	}
	if rep.Canceled {
		out.status = crawler.JobStatusCanceled
		out.errText = "canceled"
	}
	out.reportURI = w.persist(ctx, item.JobID, *rep, logger)
	w.finish(ctx, item, out)
}

// persist stores the report, writes the blob and archives the pages. Blob
// and archive failures are logged and do not fail the job.
func (w *Worker) persist(ctx context.Context, jobID string, rep crawler.CrawlReport, logger *zap.Logger) string {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StoreTimeout)
	defer cancel()

	uri, err := w.writeBlob(storeCtx, jobID, rep)
	if err != nil {
		logger.Warn("write report blob failed", zap.Error(err))
	}
	if w.deps.Archive != nil {
		if err := w.deps.Archive.ArchivePages(storeCtx, jobID, rep.CrawledPages); err != nil {
			logger.Warn("archive pages failed", zap.Error(err))
		}
	}
	if err := w.deps.Jobs.SaveReport(storeCtx, jobID, rep, uri); err != nil {
		logger.Error("save report failed", zap.Error(err))
	}
	return uri
}

func (w *Worker) writeBlob(ctx context.Context, jobID string, rep crawler.CrawlReport) (string, error) {
	if w.deps.Blobs == nil || w.deps.Hasher == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, &rep); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	hash, err := w.deps.Hasher.Hash(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	uri, err := w.deps.Blobs.PutObject(ctx, w.blobPath(jobID, hash), "application/json", &buf)
	if err != nil {
		return "", fmt.Errorf("put report: %w", err)
	}
	return uri, nil
}

func (w *Worker) blobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, jobID, hash)
}

func (w *Worker) finish(ctx context.Context, item crawler.QueueItem, out outcome) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StoreTimeout)
	defer cancel()
	logger := w.logger.With(zap.String("job_id", item.JobID))

	if err := w.deps.Jobs.UpdateJobStatus(storeCtx, item.JobID, out.status, out.errText, out.counters); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(out.status))
	w.publish(storeCtx, item, out, logger)
	logger.Info("job finished",
		zap.String("status", string(out.status)),
		zap.Int("pages", out.pages),
		zap.String("report_uri", out.reportURI),
	)
}

func (w *Worker) publish(ctx context.Context, item crawler.QueueItem, out outcome, logger *zap.Logger) {
	if w.deps.Publisher == nil {
		return
	}
	completion := crawler.Completion{
		JobID:     item.JobID,
		StartURL:  item.Request.StartURL,
		Status:    out.status,
		ReportURI: out.reportURI,
		Pages:     out.pages,
		Finished:  w.deps.Clock.Now(),
	}
	id, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, completion)
	if err != nil {
		logger.Warn("publish completion failed", zap.Error(err))
		return
	}
	logger.Debug("completion published", zap.String("message_id", id))
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
