package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
	"github.com/JakeFAU/sitecrawler/internal/frontier"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// job is the state of one run. Only the loop goroutine touches results.
type job struct {
	id       string
	req      crawler.CrawlRequest
	frontier *frontier.Frontier
	results  []crawler.PageResult
	canceled bool
	logger   *zap.Logger
}

// outcome is what one fetch goroutine hands back to the loop.
type outcome struct {
	page    crawler.PageResult
	aborted bool
}

func (e *Engine) loop(ctx context.Context, run *job) error {
	run.frontier.Seed()
	for e.more(run) {
		if ctx.Err() != nil {
			run.canceled = true
			return nil
		}
		batch := e.nextBatch(run)
		if len(batch) == 0 {
			continue
		}
		outcomes, err := e.fetchBatch(ctx, run, batch)
		if err != nil {
			return err
		}
		for i, entry := range batch {
			if outcomes[i].aborted {
				run.canceled = true
				continue
			}
			page := outcomes[i].page
			if page.Succeeded() {
				e.admitLinks(run, entry, page.Links)
			}
			run.results = append(run.results, page)
		}
		if run.canceled {
			return nil
		}
		if e.more(run) && e.cfg.PolitenessDelay > 0 {
			if err := e.pauser.Pause(ctx, e.cfg.PolitenessDelay); err != nil {
				run.canceled = true
				return nil
			}
		}
	}
	if ctx.Err() != nil && run.frontier.Len() > 0 {
		run.canceled = true
	}
	return nil
}

func (e *Engine) more(run *job) bool {
	return run.frontier.Len() > 0 && len(run.results) < run.req.MaxPages
}

// nextBatch pops up to Concurrency entries that still need processing. Each
// popped address enters the VisitedSet here, before any fetch, whether or
// not it is kept.
func (e *Engine) nextBatch(run *job) []crawler.FrontierEntry {
	size := min(e.cfg.Concurrency, run.req.MaxPages-len(run.results))
	batch := make([]crawler.FrontierEntry, 0, size)
	for len(batch) < size {
		entry, ok := run.frontier.Pop()
		if !ok {
			break
		}
		if !run.frontier.MarkVisited(entry.URL) {
			continue
		}
		if entry.Depth > run.req.MaxDepth {
			continue
		}
		batch = append(batch, entry)
	}
	return batch
}

// fetchBatch processes entries in parallel and returns outcomes in batch
// order. A panic in any worker aborts the job.
func (e *Engine) fetchBatch(ctx context.Context, run *job, batch []crawler.FrontierEntry) ([]outcome, error) {
	outcomes := make([]outcome, len(batch))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, entry := range batch {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("processing %s: %v", entry.URL, r)
				}
			}()
			outcomes[i] = e.processEntry(ctx, run, entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, crawler.OrchestrationFault("page worker panicked", err)
	}
	return outcomes, nil
}

func (e *Engine) processEntry(ctx context.Context, run *job, entry crawler.FrontierEntry) outcome {
	ctx, span := e.tracer.Start(ctx, "crawl.page", trace.WithAttributes(
		attribute.String("url", entry.URL),
		attribute.Int("depth", entry.Depth),
	))
	defer span.End()

	pageURL, err := url.Parse(entry.URL)
	if err != nil {
		return outcome{page: e.failurePage(entry, crawler.NewTransportError(entry.URL, err))}
	}
	host := pageURL.Hostname()
	e.emitter.Emit(progress.Event{
		JobID: run.id, TS: e.clock.Now(), Stage: progress.StageFetchStart,
		Host: host, URL: entry.URL, Depth: entry.Depth,
	})

	start := time.Now()
	resp, err := e.fetcher.Fetch(ctx, crawler.FetchRequest{
		JobID:       run.id,
		URL:         entry.URL,
		Depth:       entry.Depth,
		AcceptBelow: e.cfg.AcceptBelow,
	})
	elapsed := time.Since(start)
	if err != nil && ctx.Err() != nil {
		span.SetStatus(codes.Error, "canceled")
		return outcome{aborted: true}
	}

	done := progress.Event{
		JobID: run.id, TS: e.clock.Now(), Stage: progress.StageFetchDone,
		Host: host, URL: entry.URL, Depth: entry.Depth,
		StatusCode: resp.StatusCode, Bytes: int64(len(resp.Body)), Dur: elapsed,
	}
	var page crawler.PageResult
	if err != nil {
		page = e.failurePage(entry, err)
		done.FailureKind, done.Note = string(page.FailureKind), page.Error
		span.SetStatus(codes.Error, page.Error)
		run.logger.Debug("page failed",
			zap.String("url", entry.URL),
			zap.Int("depth", entry.Depth),
			zap.String("failure_kind", string(page.FailureKind)),
			zap.Int("status", page.StatusCode),
			zap.Error(err),
		)
	} else {
		page = e.successPage(entry, pageURL, resp)
		run.logger.Debug("page crawled",
			zap.String("url", entry.URL),
			zap.Int("depth", entry.Depth),
			zap.Int("status", resp.StatusCode),
			zap.Int("links", len(page.Links)),
		)
	}
	span.SetAttributes(attribute.Int("http.status_code", page.StatusCode))
	e.emitter.Emit(done)
	return outcome{page: page}
}

func (e *Engine) successPage(entry crawler.FrontierEntry, pageURL *url.URL, resp crawler.FetchResponse) crawler.PageResult {
	content := e.extractor.Extract(resp.Body, pageURL)
	return crawler.PageResult{
		URL:           entry.URL,
		Title:         content.Title,
		Description:   content.Description,
		Text:          extractor.TruncateRunes(content.Text, e.cfg.TextLimit),
		Images:        nonNil(content.Images),
		Links:         nonNil(content.Links),
		StatusCode:    resp.StatusCode,
		ContentLength: content.TextLength,
		Depth:         entry.Depth,
		CrawledAt:     e.clock.Now(),
		UsedHeadless:  resp.UsedHeadless,
	}
}

func (e *Engine) failurePage(entry crawler.FrontierEntry, err error) crawler.PageResult {
	var fetchErr *crawler.FetchError
	if !errors.As(err, &fetchErr) {
		fetchErr = crawler.NewTransportError(entry.URL, err)
	}
	msg := fetchErr.Message()
	return crawler.PageResult{
		URL:         entry.URL,
		Title:       "Error",
		Description: msg,
		Images:      []string{},
		Links:       []string{},
		StatusCode:  fetchErr.StatusCode,
		Depth:       entry.Depth,
		CrawledAt:   e.clock.Now(),
		Error:       msg,
		FailureKind: fetchErr.Kind,
	}
}

// admitLinks offers each discovered link to the frontier. The page that
// produced them is not yet counted.
func (e *Engine) admitLinks(run *job, entry crawler.FrontierEntry, links []string) {
	for _, link := range links {
		candidate, err := url.Parse(link)
		if err != nil {
			continue
		}
		run.frontier.Admit(candidate, entry.Depth, len(run.results))
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
