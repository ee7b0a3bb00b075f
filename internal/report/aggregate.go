// Package report derives crawl statistics and renders finished reports.
package report

import (
	"math"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Aggregate builds the final report from the ordered results. uniqueURLs is
// the size of the job's VisitedSet. The results slice is copied.
func Aggregate(req crawler.CrawlRequest, results []crawler.PageResult, uniqueURLs int, now time.Time) crawler.CrawlReport {
	pages := append([]crawler.PageResult{}, results...)
	return crawler.CrawlReport{
		StartURL:      req.StartURL,
		CrawlSettings: req.Settings(),
		CrawledPages:  pages,
		Statistics:    Statistics(pages, uniqueURLs),
		Summary:       Summary(pages, req.MaxDepth),
		Timestamp:     now,
	}
}

// Statistics computes the counters of a report.
func Statistics(pages []crawler.PageResult, uniqueURLs int) crawler.CrawlStatistics {
	stats := crawler.CrawlStatistics{
		TotalPagesCrawled: len(pages),
		UniqueURLs:        uniqueURLs,
	}
	contentTotal := 0
	for i, page := range pages {
		if page.Succeeded() {
			stats.SuccessfulPages++
			contentTotal += page.ContentLength
		} else {
			stats.FailedPages++
		}
		stats.TotalImages += len(page.Images)
		stats.TotalLinks += len(page.Links)
		if i == 0 || page.Depth > stats.CrawlDepthReached {
			stats.CrawlDepthReached = page.Depth
		}
	}
	if stats.SuccessfulPages > 0 {
		stats.AverageContentLength = int(math.Round(float64(contentTotal) / float64(stats.SuccessfulPages)))
	}
	return stats
}

// Summary computes the per-depth table for depths 0..maxDepth and the
// status code histogram. Status 0 is counted like any other code.
func Summary(pages []crawler.PageResult, maxDepth int) crawler.CrawlSummary {
	if maxDepth < 0 {
		maxDepth = 0
	}
	byDepth := make([]crawler.DepthCount, maxDepth+1)
	for d := range byDepth {
		byDepth[d].Depth = d
	}
	codes := make(map[int]int)
	for _, page := range pages {
		if page.Depth >= 0 && page.Depth <= maxDepth {
			byDepth[page.Depth].Count++
		}
		codes[page.StatusCode]++
	}
	return crawler.CrawlSummary{PagesByDepth: byDepth, StatusCodes: codes}
}
