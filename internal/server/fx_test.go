package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func TestBuildServesAPI(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.LocalDir = t.TempDir()
	app, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close(context.Background())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"url":"mailto:a@b"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildRejectsBadDSN(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.DB.DSN = "postgres://%zz"
	_, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.ErrorContains(t, err, "page archive init failed")
}

func TestNewOperationsWithoutHeadless(t *testing.T) {
	t.Parallel()

	ops, err := NewOperations(context.Background(), config.Default(), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer ops.Close(context.Background())

	require.NotNil(t, ops.Engine)
	require.NotNil(t, ops.Scraper)
	require.NotNil(t, ops.Mapper)
	require.NotNil(t, ops.Searcher)
	require.Nil(t, ops.headless)
}

func TestHeaderProfile(t *testing.T) {
	t.Parallel()

	h := headerProfile(crawler.UserAgentOnly(), "custom-agent/1.0")
	require.Equal(t, "custom-agent/1.0", h.Get("User-Agent"))

	h = headerProfile(crawler.UserAgentOnly(), "")
	require.Equal(t, crawler.BrowserUserAgent, h.Get("User-Agent"))
}
