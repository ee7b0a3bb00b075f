// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Request defaults applied when a client omits a field.
const (
	DefaultMaxDepth       = 2
	DefaultMaxPages       = 20
	DefaultSameOriginOnly = true
	DefaultTextLimit      = 3000
)

// CrawlRequest is an immutable crawl job description.
type CrawlRequest struct {
	StartURL       string `json:"url"`
	MaxDepth       int    `json:"maxDepth"`
	MaxPages       int    `json:"maxPages"`
	SameOriginOnly bool   `json:"sameOriginOnly"`
}

// Settings echoes the request knobs in the report.
func (r CrawlRequest) Settings() CrawlSettings {
	return CrawlSettings{
		MaxDepth:       r.MaxDepth,
		MaxPages:       r.MaxPages,
		SameOriginOnly: r.SameOriginOnly,
	}
}

// CrawlSettings is the settings block of a CrawlReport.
type CrawlSettings struct {
	MaxDepth       int  `json:"maxDepth"`
	MaxPages       int  `json:"maxPages"`
	SameOriginOnly bool `json:"sameOriginOnly"`
}

// FrontierEntry is one unit of pending work.
type FrontierEntry struct {
	URL   string
	Depth int
}

// PageContent is what the extractor pulls out of one document.
type PageContent struct {
	Title         string
	Description   string
	Text          string
	TextLength    int
	Images        []string
	Links         []string
	RawImageCount int
	RawLinkCount  int
}

// PageResult is the outcome of processing one frontier entry.
type PageResult struct {
	URL           string      `json:"url"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Text          string      `json:"text"`
	Images        []string    `json:"images"`
	Links         []string    `json:"links"`
	StatusCode    int         `json:"statusCode"`
	ContentLength int         `json:"contentLength"`
	Depth         int         `json:"depth"`
	CrawledAt     time.Time   `json:"crawledAt"`
	Error         string      `json:"error,omitempty"`
	FailureKind   FailureKind `json:"failureKind,omitempty"`
	UsedHeadless  bool        `json:"usedHeadless,omitempty"`
}

// Succeeded reports whether the page was fetched and extracted.
func (p PageResult) Succeeded() bool {
	return p.Error == ""
}

// CrawlStatistics is computed once from the final result sequence.
type CrawlStatistics struct {
	TotalPagesCrawled    int `json:"totalPagesCrawled"`
	SuccessfulPages      int `json:"successfulPages"`
	FailedPages          int `json:"failedPages"`
	TotalImages          int `json:"totalImages"`
	TotalLinks           int `json:"totalLinks"`
	UniqueURLs           int `json:"uniqueUrls"`
	AverageContentLength int `json:"averageContentLength"`
	CrawlDepthReached    int `json:"crawlDepthReached"`
}

// DepthCount is one row of the per-depth table.
type DepthCount struct {
	Depth int `json:"depth"`
	Count int `json:"count"`
}

// CrawlSummary holds the distribution tables.
type CrawlSummary struct {
	PagesByDepth []DepthCount `json:"pagesByDepth"`
	StatusCodes  map[int]int  `json:"statusCodes"`
}

// CrawlReport is the final output of a crawl job. It is never mutated after
// aggregation.
type CrawlReport struct {
	StartURL      string          `json:"startUrl"`
	CrawlSettings CrawlSettings   `json:"crawlSettings"`
	CrawledPages  []PageResult    `json:"crawledPages"`
	Statistics    CrawlStatistics `json:"statistics"`
	Summary       CrawlSummary    `json:"summary"`
	Canceled      bool            `json:"canceled,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Job represents the metadata persisted for each submitted async crawl.
type Job struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Request   CrawlRequest `json:"request"`
	Counters  JobCounters  `json:"counters"`
	ReportURI string       `json:"report_uri,omitempty"`
}

// JobCounters tracks success/failure stats per job.
type JobCounters struct {
	PagesSucceeded int `json:"pages_succeeded"`
	PagesFailed    int `json:"pages_failed"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID       string
	URL         string
	Depth       int
	UseHeadless bool
	Headers     http.Header
	// AcceptBelow is the exclusive status ceiling treated as success.
	// Zero means 300.
	AcceptBelow int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Request   CrawlRequest
	Attempt   int
	Submitted int64
}

// Completion is published once an async crawl reaches a terminal state.
type Completion struct {
	JobID     string    `json:"job_id"`
	StartURL  string    `json:"start_url"`
	Status    JobStatus `json:"status"`
	ReportURI string    `json:"report_uri,omitempty"`
	Pages     int       `json:"pages"`
	Finished  time.Time `json:"finished_at"`
}

// Terminal reports whether no further transitions follow status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}
