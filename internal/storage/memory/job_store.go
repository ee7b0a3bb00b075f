// Package memory keeps jobs, reports and blobs in process memory for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]crawler.Job
	reports map[string]crawler.CrawlReport
	now     func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]crawler.Job),
		reports: make(map[string]crawler.CrawlReport),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create %s: %w", job.ID, crawler.ErrJobExists)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. Started is set
// on the first transition to running and Finished on any terminal status.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update %s: %w", jobID, crawler.ErrJobNotFound)
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.Terminal() && job.Finished == nil {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// SaveReport stores the finished report and where it was archived.
func (s *JobStore) SaveReport(_ context.Context, jobID string, report crawler.CrawlReport, reportURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("save report %s: %w", jobID, crawler.ErrJobNotFound)
	}
	job.ReportURI = reportURI
	s.jobs[jobID] = job
	s.reports[jobID] = report
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("get %s: %w", jobID, crawler.ErrJobNotFound)
	}
	return job, nil
}

// GetReport returns the stored report for a job.
func (s *JobStore) GetReport(_ context.Context, jobID string) (crawler.CrawlReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return crawler.CrawlReport{}, fmt.Errorf("get report %s: %w", jobID, crawler.ErrJobNotFound)
	}
	report, ok := s.reports[jobID]
	if !ok {
		return crawler.CrawlReport{}, fmt.Errorf("get report %s: %w", jobID, crawler.ErrReportNotFound)
	}
	return report, nil
}
