package crawler

import (
	"context"
	"io"
	"net/url"
	"time"
)

// JobStore persists async job metadata and finished reports.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	SaveReport(ctx context.Context, jobID string, report CrawlReport, reportURI string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	GetReport(ctx context.Context, jobID string) (CrawlReport, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// PageArchive stores one row per page result of a finished job.
type PageArchive interface {
	ArchivePages(ctx context.Context, jobID string, pages []PageResult) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata. Rejected
// statuses and transport failures are returned as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns fetched markup into structured content.
type Extractor interface {
	Extract(markup []byte, page *url.URL) PageContent
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser suspends between crawl iterations.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}
