package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/sitecrawler/internal/publisher/memory"
	storemem "github.com/JakeFAU/sitecrawler/internal/storage/memory"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []crawler.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item crawler.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context) (crawler.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return crawler.QueueItem{}, crawler.ErrQueueClosed
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

type fakeRunner struct {
	report  *crawler.CrawlReport
	err     error
	block   bool
	started chan string
	mu      sync.Mutex
	calls   int
}

func (r *fakeRunner) Run(ctx context.Context, jobID string, req crawler.CrawlRequest) (*crawler.CrawlReport, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.started != nil {
		r.started <- jobID
	}
	if r.block {
		<-ctx.Done()
		return &crawler.CrawlReport{
			StartURL:     req.StartURL,
			CrawledPages: []crawler.PageResult{{URL: req.StartURL, StatusCode: 200}},
			Statistics:   crawler.CrawlStatistics{TotalPagesCrawled: 1, SuccessfulPages: 1},
			Canceled:     true,
		}, nil
	}
	return r.report, r.err
}

type fakeArchive struct {
	mu    sync.Mutex
	pages map[string][]crawler.PageResult
	err   error
}

func (a *fakeArchive) ArchivePages(_ context.Context, jobID string, pages []crawler.PageResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.pages == nil {
		a.pages = map[string][]crawler.PageResult{}
	}
	a.pages[jobID] = pages
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func sampleReport() *crawler.CrawlReport {
	return &crawler.CrawlReport{
		StartURL: "https://example.com",
		CrawledPages: []crawler.PageResult{
			{URL: "https://example.com", StatusCode: 200},
			{URL: "https://example.com/x", StatusCode: 500, Error: "server error (status 500)"},
		},
		Statistics: crawler.CrawlStatistics{TotalPagesCrawled: 2, SuccessfulPages: 1, FailedPages: 1},
	}
}

type harness struct {
	queue     *fakeQueue
	jobs      *storemem.JobStore
	blobs     *storemem.BlobStore
	archive   *fakeArchive
	publisher *pubmemory.Publisher
	worker    *Worker
}

func newHarness(t *testing.T, runner Runner, jobIDs ...string) *harness {
	t.Helper()
	h := &harness{
		queue:     &fakeQueue{},
		jobs:      storemem.NewJobStore(),
		blobs:     storemem.NewBlobStore(),
		archive:   &fakeArchive{},
		publisher: pubmemory.New(),
	}
	for _, id := range jobIDs {
		req := crawler.CrawlRequest{StartURL: "https://example.com", MaxDepth: 1, MaxPages: 5, SameOriginOnly: true}
		require.NoError(t, h.jobs.CreateJob(context.Background(), crawler.Job{ID: id, Status: crawler.JobStatusQueued, Request: req}))
		require.NoError(t, h.queue.Enqueue(context.Background(), crawler.QueueItem{JobID: id, Request: req, Attempt: 1}))
	}
	h.worker = New(Deps{
		Queue:     h.queue,
		Jobs:      h.jobs,
		Engine:    runner,
		Blobs:     h.blobs,
		Archive:   h.archive,
		Publisher: h.publisher,
		Hasher:    sha256.New(),
		Clock:     fixedClock{t: time.Unix(100, 0).UTC()},
	}, Config{BlobPrefix: "/reports/", Topic: "crawl-done"}, zap.NewNop())
	return h
}

func TestWorkerSuccessFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeRunner{report: sampleReport()}, "job-1")
	h.worker.Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, job.Status)
	require.Equal(t, crawler.JobCounters{PagesSucceeded: 1, PagesFailed: 1}, job.Counters)
	require.True(t, strings.HasPrefix(job.ReportURI, "memory://reports/job-1/"), job.ReportURI)
	require.True(t, strings.HasSuffix(job.ReportURI, ".json"))

	paths := h.blobs.Paths()
	require.Len(t, paths, 1)
	body, contentType, ok := h.blobs.Object(paths[0])
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)
	require.Contains(t, string(body), `"startUrl": "https://example.com"`)

	rep, err := h.jobs.GetReport(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, rep.CrawledPages, 2)
	require.Len(t, h.archive.pages["job-1"], 2)

	completions := h.publisher.Completions()
	require.Len(t, completions, 1)
	require.Equal(t, crawler.Completion{
		JobID: "job-1", StartURL: "https://example.com", Status: crawler.JobStatusSucceeded,
		ReportURI: job.ReportURI, Pages: 2, Finished: time.Unix(100, 0).UTC(),
	}, completions[0])
	require.Equal(t, "crawl-done", h.publisher.Messages()[0].Topic)
}

func TestWorkerEngineErrorMarksFailed(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: crawler.InvalidInput("invalid url", nil)}
	h := newHarness(t, runner, "job-bad")
	h.worker.Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-bad")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
	require.Equal(t, "invalid url", job.ErrorText)
	_, err = h.jobs.GetReport(context.Background(), "job-bad")
	require.ErrorIs(t, err, crawler.ErrReportNotFound)
	require.Equal(t, crawler.JobStatusFailed, h.publisher.Completions()[0].Status)
}

func TestWorkerArchiveAndPublishFailuresDoNotFailJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeRunner{report: sampleReport()}, "job-2")
	h.archive.err = errors.New("db down")
	h.publisher.FailWith(errors.New("topic missing"))
	h.worker.Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, job.Status)
	_, err = h.jobs.GetReport(context.Background(), "job-2")
	require.NoError(t, err)
}

func TestWorkerSkipsJobCanceledWhileQueued(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{report: sampleReport()}
	h := newHarness(t, runner, "job-3")
	require.NoError(t, h.jobs.UpdateJobStatus(context.Background(), "job-3", crawler.JobStatusCanceled, "canceled via API", crawler.JobCounters{}))
	h.worker.Run(context.Background())

	require.Zero(t, runner.calls)
	job, err := h.jobs.GetJob(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCanceled, job.Status)
}

func TestWorkerCancelRunningJob(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{block: true, started: make(chan string, 1)}
	h := newHarness(t, runner, "job-4")
	registry := h.worker.deps.Registry

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()

	select {
	case id := <-runner.started:
		require.Equal(t, "job-4", id)
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}
	require.True(t, registry.Running("job-4"))
	require.True(t, registry.Cancel("job-4"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not finish after cancel")
	}
	require.False(t, registry.Running("job-4"))
	require.False(t, registry.Cancel("job-4"))

	job, err := h.jobs.GetJob(context.Background(), "job-4")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCanceled, job.Status)
	rep, err := h.jobs.GetReport(context.Background(), "job-4")
	require.NoError(t, err)
	require.True(t, rep.Canceled)
}

func TestWorkerWithoutEngine(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, "job-5")
	h.worker.Run(context.Background())
	job, err := h.jobs.GetJob(context.Background(), "job-5")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
}

func TestWorkerBlobPath(t *testing.T) {
	t.Parallel()

	w := New(Deps{}, Config{BlobPrefix: "/runs/"}, nil)
	require.Equal(t, "runs/job/abc.json", w.blobPath("job", "abc"))
	w = New(Deps{}, Config{}, nil)
	require.Equal(t, "job/abc.json", w.blobPath("job", "abc"))
}
