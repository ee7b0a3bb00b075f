package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/extractor"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

type fakePage struct {
	status int
	body   string
	err    error
}

// fakeFetcher serves canned pages keyed by URL and applies AcceptBelow the
// way the real fetchers do.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]fakePage
	calls []string
	block map[string]bool
	// blocked receives the URL of each fetch parked until cancellation.
	blocked chan string
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages, block: map[string]bool{}, blocked: make(chan string, 8)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	page, ok := f.pages[req.URL]
	block := f.block[req.URL]
	f.mu.Unlock()

	if block {
		f.blocked <- req.URL
		<-ctx.Done()
		return crawler.FetchResponse{}, crawler.NewTransportError(req.URL, ctx.Err())
	}
	if !ok {
		page = fakePage{status: 404, body: "<html><title>Not Found</title></html>"}
	}
	if page.err != nil {
		return crawler.FetchResponse{}, page.err
	}
	resp := crawler.FetchResponse{URL: req.URL, StatusCode: page.status, Body: []byte(page.body)}
	if page.status >= req.AcceptBelow {
		return resp, crawler.NewStatusError(req.URL, page.status)
	}
	return resp, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingPauser struct {
	mu     sync.Mutex
	pauses int
	onCall func() error
}

func (p *countingPauser) Pause(context.Context, time.Duration) error {
	p.mu.Lock()
	p.pauses++
	hook := p.onCall
	p.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type panicExtractor struct{}

func (panicExtractor) Extract([]byte, *url.URL) crawler.PageContent { panic("boom") }

type fakeResolver struct{ err error }

func (r fakeResolver) LookupHost(context.Context, string) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []string{"127.0.0.1"}, nil
}

var testNow = time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

func html(title string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><p>" + title + " body</p>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, l, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func ok(title string, links ...string) fakePage {
	return fakePage{status: 200, body: html(title, links...)}
}

type harness struct {
	engine  *Engine
	fetcher *fakeFetcher
	pauser  *countingPauser
	events  *recordingEmitter
}

func newHarness(pages map[string]fakePage, cfg Config) *harness {
	h := &harness{
		fetcher: newFakeFetcher(pages),
		pauser:  &countingPauser{},
		events:  &recordingEmitter{},
	}
	h.engine = New(Deps{
		Fetcher:   h.fetcher,
		Extractor: extractor.New(),
		Pauser:    h.pauser,
		Clock:     fixedClock{t: testNow},
		Emitter:   h.events,
	}, cfg)
	return h
}

func request(seed string, depth, pages int, sameOrigin bool) crawler.CrawlRequest {
	return crawler.CrawlRequest{StartURL: seed, MaxDepth: depth, MaxPages: pages, SameOriginOnly: sameOrigin}
}

func urls(pages []crawler.PageResult) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.URL)
	}
	return out
}

func TestCrawlSinglePage(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com/": ok("Home", "/about"),
	}, DefaultConfig())

	rep, err := h.engine.Run(context.Background(), "job-1", request("https://example.com/", 0, 20, true))
	require.NoError(t, err)
	require.Len(t, rep.CrawledPages, 1)

	page := rep.CrawledPages[0]
	require.Equal(t, "Home", page.Title)
	require.Equal(t, 200, page.StatusCode)
	require.Equal(t, []string{"https://example.com/about"}, page.Links)
	require.Equal(t, testNow, page.CrawledAt)
	require.True(t, page.Succeeded())

	require.Equal(t, 1, rep.Statistics.UniqueURLs)
	require.Equal(t, []crawler.DepthCount{{Depth: 0, Count: 1}}, rep.Summary.PagesByDepth)
	require.False(t, rep.Canceled)
	require.Zero(t, h.pauser.pauses)
	require.Equal(t, []string{"https://example.com/"}, h.fetcher.Calls())
}

func TestCrawlBreadthFirstAndDedup(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com/":  ok("Home", "/a", "/b"),
		"https://example.com/a": ok("A", "/c"),
		"https://example.com/b": ok("B", "/c", "/"),
		"https://example.com/c": ok("C", "/d"),
	}, DefaultConfig())

	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com/", 2, 20, true))
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}, urls(rep.CrawledPages))
	require.Equal(t, []int{0, 1, 1, 2}, []int{
		rep.CrawledPages[0].Depth, rep.CrawledPages[1].Depth,
		rep.CrawledPages[2].Depth, rep.CrawledPages[3].Depth,
	})
	require.Equal(t, 4, rep.Statistics.UniqueURLs)
	require.Equal(t, 2, rep.Statistics.CrawlDepthReached)
	require.Equal(t, 3, h.pauser.pauses)
}

func TestCrawlMaxPagesCap(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com/": ok("Home", "/1", "/2", "/3", "/4", "/5"),
	}, DefaultConfig())

	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com/", 1, 3, true))
	require.NoError(t, err)
	require.Len(t, rep.CrawledPages, 3)
	require.Equal(t, 3, rep.Statistics.UniqueURLs)
	require.Equal(t, []string{"https://example.com/", "https://example.com/1", "https://example.com/2"}, h.fetcher.Calls())
}

func TestCrawlSameOrigin(t *testing.T) {
	t.Parallel()

	pages := map[string]fakePage{
		"https://example.com/": ok("Home", "https://other.org/x", "https://example.com:8443/port"),
		"https://other.org/x":  ok("Other"),
	}

	h := newHarness(pages, DefaultConfig())
	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com/", 1, 20, true))
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/", "https://example.com:8443/port"}, urls(rep.CrawledPages))

	h = newHarness(pages, DefaultConfig())
	rep, err = h.engine.Run(context.Background(), "job", request("https://example.com/", 1, 20, false))
	require.NoError(t, err)
	require.Contains(t, urls(rep.CrawledPages), "https://other.org/x")
}

func TestCrawlFailuresAreRecorded(t *testing.T) {
	t.Parallel()

	dnsErr := crawler.NewTransportError("https://example.com/dns", &net.DNSError{Err: "no such host", IsNotFound: true})
	h := newHarness(map[string]fakePage{
		"https://example.com/":       ok("Home", "/missing", "/broken", "/dns", "/forbidden"),
		"https://example.com/broken": {status: 503},
		"https://example.com/dns":    {err: dnsErr},
		"https://example.com/forbidden": {
			status: 403, body: html("Forbidden", "/secret"),
		},
	}, DefaultConfig())

	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com/", 1, 20, true))
	require.NoError(t, err)
	require.Len(t, rep.CrawledPages, 5)

	missing := rep.CrawledPages[1]
	require.True(t, missing.Succeeded(), "4xx bodies are still extracted")
	require.Equal(t, 404, missing.StatusCode)
	require.Equal(t, "Not Found", missing.Title)

	broken := rep.CrawledPages[2]
	require.False(t, broken.Succeeded())
	require.Equal(t, "Error", broken.Title)
	require.Equal(t, 503, broken.StatusCode)
	require.Equal(t, crawler.FailureServerError, broken.FailureKind)
	require.Equal(t, broken.Error, broken.Description)
	require.Empty(t, broken.Text)
	require.NotNil(t, broken.Links)
	require.Zero(t, broken.ContentLength)

	dns := rep.CrawledPages[3]
	require.Equal(t, 0, dns.StatusCode)
	require.Equal(t, crawler.FailureDomainUnresolved, dns.FailureKind)
	require.Equal(t, "could not resolve domain", dns.Error)

	forbidden := rep.CrawledPages[4]
	require.True(t, forbidden.Succeeded())
	require.Equal(t, 403, forbidden.StatusCode)

	require.Equal(t, 3, rep.Statistics.SuccessfulPages)
	require.Equal(t, 2, rep.Statistics.FailedPages)
	require.Equal(t, map[int]int{200: 1, 404: 1, 503: 1, 0: 1, 403: 1}, rep.Summary.StatusCodes)
}

func TestCrawlTrailingSlashIsDistinct(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com":  ok("Bare", "/"),
		"https://example.com/": ok("Slash"),
	}, DefaultConfig())

	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com", 1, 20, true))
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com", "https://example.com/"}, urls(rep.CrawledPages))
}

func TestCrawlTruncatesText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 5000)
	h := newHarness(map[string]fakePage{
		"https://example.com/": {status: 200, body: "<html><body><p>" + long + "</p></body></html>"},
	}, DefaultConfig())

	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com/", 0, 1, true))
	require.NoError(t, err)
	page := rep.CrawledPages[0]
	require.Equal(t, crawler.DefaultTextLimit, len([]rune(page.Text)))
	require.Equal(t, 5000, page.ContentLength)
}

func TestCrawlValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(nil, DefaultConfig())
	cases := []crawler.CrawlRequest{
		request("", 1, 1, true),
		request("not a url", 1, 1, true),
		request("ftp://example.com", 1, 1, true),
		request("https://example.com", -1, 1, true),
		request("https://example.com", 1, 0, true),
	}
	for _, req := range cases {
		rep, err := h.engine.Run(context.Background(), "job", req)
		require.Nil(t, rep)
		var jobErr *crawler.JobError
		require.ErrorAs(t, err, &jobErr, req.StartURL)
		require.Equal(t, crawler.JobInvalidInput, jobErr.Kind)
	}
	require.Empty(t, h.fetcher.Calls())
}

func TestCrawlCanceledBetweenPages(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com/": ok("Home", "/a", "/b"),
	}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.pauser.onCall = func() error {
		cancel()
		return ctx.Err()
	}

	rep, err := h.engine.Run(ctx, "job", request("https://example.com/", 1, 20, true))
	require.NoError(t, err)
	require.True(t, rep.Canceled)
	require.Len(t, rep.CrawledPages, 1)
	require.Contains(t, h.events.Stages(), progress.StageJobCanceled)
}

func TestCrawlInFlightFetchAbortedByCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com/": ok("Home", "/slow"),
	}, DefaultConfig())
	h.fetcher.block["https://example.com/slow"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-h.fetcher.blocked
		cancel()
	}()

	rep, err := h.engine.Run(ctx, "job", request("https://example.com/", 1, 20, true))
	require.NoError(t, err)
	require.True(t, rep.Canceled)
	require.Equal(t, []string{"https://example.com/"}, urls(rep.CrawledPages))
	require.Equal(t, 2, rep.Statistics.UniqueURLs)
}

func TestCrawlPanicBecomesOrchestrationFault(t *testing.T) {
	t.Parallel()

	events := &recordingEmitter{}
	e := New(Deps{
		Fetcher:   newFakeFetcher(map[string]fakePage{"https://example.com/": ok("Home")}),
		Extractor: panicExtractor{},
		Pauser:    &countingPauser{},
		Emitter:   events,
	}, DefaultConfig())

	rep, err := e.Run(context.Background(), "job", request("https://example.com/", 0, 1, true))
	require.Nil(t, rep)
	require.ErrorIs(t, err, crawler.ErrOrchestrationFault)
	require.Contains(t, events.Stages(), progress.StageJobError)
}

func TestCrawlConcurrentMatchesSequential(t *testing.T) {
	t.Parallel()

	pages := map[string]fakePage{
		"https://example.com/":  ok("Home", "/a", "/b", "/c"),
		"https://example.com/a": ok("A", "/a1", "/b"),
		"https://example.com/b": ok("B", "/b1"),
		"https://example.com/c": {status: 500},
	}
	seq := newHarness(pages, DefaultConfig())
	want, err := seq.engine.Run(context.Background(), "job", request("https://example.com/", 2, 20, true))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Concurrency = 3
	par := newHarness(pages, cfg)
	got, err := par.engine.Run(context.Background(), "job", request("https://example.com/", 2, 20, true))
	require.NoError(t, err)

	require.Equal(t, urls(want.CrawledPages), urls(got.CrawledPages))
	require.Equal(t, want.Statistics, got.Statistics)
	require.Less(t, par.pauser.pauses, seq.pauser.pauses)
}

func TestCrawlConcurrentRespectsMaxPages(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Concurrency = 4
	h := newHarness(map[string]fakePage{
		"https://example.com/": ok("Home", "/1", "/2", "/3", "/4", "/5"),
	}, cfg)

	rep, err := h.engine.Run(context.Background(), "job", request("https://example.com/", 1, 3, true))
	require.NoError(t, err)
	require.Len(t, rep.CrawledPages, 3)
	require.Len(t, h.fetcher.Calls(), 3)
}

func TestCrawlPreflight(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PreflightSeed = true
	fetcher := newFakeFetcher(nil)
	e := New(Deps{
		Fetcher:  fetcher,
		Pauser:   &countingPauser{},
		Resolver: fakeResolver{err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}},
	}, cfg)

	_, err := e.Run(context.Background(), "job", request("https://nope.invalid/", 1, 5, true))
	require.ErrorIs(t, err, crawler.ErrInvalidInput)
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FailureDomainUnresolved, fetchErr.Kind)
	require.Empty(t, fetcher.Calls())

	e = New(Deps{Fetcher: fetcher, Pauser: &countingPauser{}, Resolver: fakeResolver{}}, cfg)
	_, err = e.Run(context.Background(), "job", request("https://example.com/", 0, 1, true))
	require.NoError(t, err)
}

func TestCrawlEmitsProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{
		"https://example.com/": ok("Home"),
	}, DefaultConfig())

	_, err := h.engine.Run(context.Background(), "job-9", request("https://example.com/", 0, 1, true))
	require.NoError(t, err)
	require.Equal(t, []progress.Stage{
		progress.StageJobStart,
		progress.StageFetchStart,
		progress.StageFetchDone,
		progress.StageJobDone,
	}, h.events.Stages())
	for _, evt := range h.events.events {
		require.NoError(t, evt.Validate())
	}
}

func TestCrawlGeneratesJobID(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]fakePage{"https://example.com/": ok("Home")}, DefaultConfig())
	rep, err := h.engine.Crawl(context.Background(), request("https://example.com/", 0, 1, true))
	require.NoError(t, err)
	require.Equal(t, crawler.OperationCrawl, rep.Operation())
	require.NotEmpty(t, h.events.events[0].JobID)
}

func TestFailurePageWrapsUntypedErrors(t *testing.T) {
	t.Parallel()

	e := New(Deps{Fetcher: newFakeFetcher(nil)}, DefaultConfig())
	page := e.failurePage(crawler.FrontierEntry{URL: "https://example.com", Depth: 1}, errors.New("tls: handshake failure"))
	require.Equal(t, crawler.FailureOther, page.FailureKind)
	require.Equal(t, "tls: handshake failure", page.Error)
	require.Equal(t, 1, page.Depth)
}
