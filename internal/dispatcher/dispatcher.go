// Package dispatcher owns the async job lifecycle: it records submitted
// jobs, fans queue work out to workers and routes cancel requests.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/engine"
	"github.com/JakeFAU/sitecrawler/internal/worker"
)

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Queue    crawler.Queue
	Jobs     crawler.JobStore
	IDs      crawler.IDGenerator
	Clock    crawler.Clock
	Registry *worker.Registry
	Logger   *zap.Logger
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	deps    Deps
	workers []*worker.Worker
}

// New creates a Dispatcher. The workers must share deps.Registry for
// Cancel to reach running jobs.
func New(deps Deps, workers []*worker.Worker) *Dispatcher {
	if deps.Registry == nil {
		deps.Registry = worker.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Dispatcher{deps: deps, workers: workers}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit validates req, records a queued job and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, req crawler.CrawlRequest) (crawler.Job, error) {
	if err := engine.Validate(req); err != nil {
		return crawler.Job{}, err
	}
	jobID, err := d.deps.IDs.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := time.Now().UTC()
	if d.deps.Clock != nil {
		now = d.deps.Clock.Now()
	}
	job := crawler.Job{
		ID:        jobID,
		Status:    crawler.JobStatusQueued,
		Submitted: now,
		Request:   req,
	}
	if err := d.deps.Jobs.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := d.Enqueue(ctx, crawler.QueueItem{
		JobID:     jobID,
		Request:   req,
		Attempt:   1,
		Submitted: now.Unix(),
	}); err != nil {
		failCtx := context.WithoutCancel(ctx)
		if uerr := d.deps.Jobs.UpdateJobStatus(failCtx, jobID, crawler.JobStatusFailed, err.Error(), crawler.JobCounters{}); uerr != nil {
			d.deps.Logger.Error("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return crawler.Job{}, err
	}
	d.deps.Logger.Info("job submitted", zap.String("job_id", jobID), zap.String("url", req.StartURL))
	return job, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.deps.Queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel stops a job. A queued job is marked canceled and skipped by the
// worker that later dequeues it; a running job has its context canceled and
// finishes with a partial report. Finished jobs return crawler.ErrJobFinished.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (crawler.Job, error) {
	job, err := d.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("cancel: %w", err)
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("cancel %s (%s): %w", jobID, job.Status, crawler.ErrJobFinished)
	}
	if d.deps.Registry.Cancel(jobID) {
		d.deps.Logger.Info("running job canceled", zap.String("job_id", jobID))
		return job, nil
	}
	if err := d.deps.Jobs.UpdateJobStatus(ctx, jobID, crawler.JobStatusCanceled, "canceled", job.Counters); err != nil {
		return crawler.Job{}, fmt.Errorf("cancel %s: %w", jobID, err)
	}
	d.deps.Logger.Info("queued job canceled", zap.String("job_id", jobID))
	return d.deps.Jobs.GetJob(ctx, jobID)
}
