package collyfetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
	require.Equal(t, crawler.BrowserUserAgent, f.baseCollector.UserAgent)
	require.True(t, f.baseCollector.AllowURLRevisit)
	require.True(t, f.baseCollector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"User-Agent": {"coverage-agent"}}})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}
	if collyReq.Headers.Get("User-Agent") != "coverage-agent" {
		t.Fatalf("expected profile header, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestCopyHeadersRequestOverridesProfile(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"Accept": {"text/html"}}})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{Headers: http.Header{"Accept": {"application/json"}}}, collyReq)
	require.Equal(t, []string{"application/json"}, collyReq.Headers.Values("Accept"))
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "<title>ok</title>")
	require.Equal(t, crawler.BrowserUserAgent, gotUA)
}

func TestFetchStatusThreshold(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("<title>gone</title>"))
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("<title>keep out</title>"))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/moved":
			w.WriteHeader(http.StatusNotModified)
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	cases := []struct {
		path        string
		acceptBelow int
		kind        crawler.FailureKind
		status      int
		ok          bool
		body        string
	}{
		{path: "/missing", acceptBelow: 500, status: 404, ok: true, body: "<title>gone</title>"},
		{path: "/forbidden", acceptBelow: 500, status: 403, ok: true, body: "<title>keep out</title>"},
		{path: "/missing", kind: crawler.FailureNotFound, status: 404},
		{path: "/forbidden", kind: crawler.FailureForbidden, status: 403},
		{path: "/broken", acceptBelow: 500, kind: crawler.FailureServerError, status: 500},
		{path: "/moved", acceptBelow: 500, status: 304, ok: true},
		{path: "/moved", kind: crawler.FailureOther, status: 304},
	}
	for _, tc := range cases {
		resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + tc.path, AcceptBelow: tc.acceptBelow})
		require.Equal(t, tc.status, resp.StatusCode, tc.path)
		if tc.ok {
			require.NoError(t, err, tc.path)
			require.Equal(t, tc.body, string(resp.Body), tc.path)
			continue
		}
		var fetchErr *crawler.FetchError
		require.ErrorAs(t, err, &fetchErr, tc.path)
		require.Equal(t, tc.kind, fetchErr.Kind, tc.path)
		require.Equal(t, tc.status, fetchErr.StatusCode, tc.path)
	}
}

func TestFetchDecodesGzip(t *testing.T) {
	t.Parallel()

	var gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("<title>packed</title>"))
		_ = zw.Close()
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{}).Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "gzip", gotEncoding)
	require.Equal(t, "<title>packed</title>", string(resp.Body))
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(Config{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FailureTimeout, fetchErr.Kind)
	require.Zero(t, fetchErr.StatusCode)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
