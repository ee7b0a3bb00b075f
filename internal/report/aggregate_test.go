package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func TestAggregateMixedResults(t *testing.T) {
	t.Parallel()

	req := crawler.CrawlRequest{StartURL: "https://example.com", MaxDepth: 2, MaxPages: 20, SameOriginOnly: true}
	pages := []crawler.PageResult{
		{URL: "https://example.com", Depth: 0, StatusCode: 200, ContentLength: 100, Images: []string{"a", "b"}, Links: []string{"x"}},
		{URL: "https://example.com/a", Depth: 1, StatusCode: 404, ContentLength: 51, Links: []string{"y", "z"}},
		{URL: "https://example.com/b", Depth: 1, StatusCode: 0, Error: "connection timeout", FailureKind: crawler.FailureTimeout},
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got := Aggregate(req, pages, 4, now)
	require.Equal(t, "https://example.com", got.StartURL)
	require.Equal(t, req.Settings(), got.CrawlSettings)
	require.Equal(t, now, got.Timestamp)
	require.Len(t, got.CrawledPages, 3)

	require.Equal(t, crawler.CrawlStatistics{
		TotalPagesCrawled:    3,
		SuccessfulPages:      2,
		FailedPages:          1,
		TotalImages:          2,
		TotalLinks:           3,
		UniqueURLs:           4,
		AverageContentLength: 76,
		CrawlDepthReached:    1,
	}, got.Statistics)

	require.Equal(t, []crawler.DepthCount{{Depth: 0, Count: 1}, {Depth: 1, Count: 2}, {Depth: 2, Count: 0}}, got.Summary.PagesByDepth)
	require.Equal(t, map[int]int{200: 1, 404: 1, 0: 1}, got.Summary.StatusCodes)
}

func TestAggregateCopiesResults(t *testing.T) {
	t.Parallel()

	pages := []crawler.PageResult{{URL: "https://example.com", StatusCode: 200}}
	got := Aggregate(crawler.CrawlRequest{MaxDepth: 0, MaxPages: 1}, pages, 1, time.Now())
	pages[0].URL = "mutated"
	require.Equal(t, "https://example.com", got.CrawledPages[0].URL)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	got := Aggregate(crawler.CrawlRequest{MaxDepth: 1, MaxPages: 5}, nil, 0, time.Now())
	require.NotNil(t, got.CrawledPages)
	require.Zero(t, got.Statistics.AverageContentLength)
	require.Zero(t, got.Statistics.CrawlDepthReached)
	require.Len(t, got.Summary.PagesByDepth, 2)
	require.Empty(t, got.Summary.StatusCodes)
}

func TestAverageRoundsHalfUp(t *testing.T) {
	t.Parallel()

	stats := Statistics([]crawler.PageResult{
		{ContentLength: 1},
		{ContentLength: 2},
	}, 2)
	require.Equal(t, 2, stats.AverageContentLength)
}
