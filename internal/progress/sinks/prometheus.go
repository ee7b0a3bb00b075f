package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// PrometheusSink turns progress events into crawl metrics.
type PrometheusSink struct {
	jobsStarted  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	jobDuration  *prometheus.HistogramVec

	pages         *prometheus.CounterVec
	pageFailures  *prometheus.CounterVec
	pageBytes     *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitecrawler_jobs_started_total",
			Help: "Crawl jobs started.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecrawler_jobs_finished_total",
			Help: "Crawl jobs finished, by outcome.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitecrawler_jobs_running",
			Help: "Crawl jobs currently running.",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitecrawler_job_duration_seconds",
			Help:    "Wall time per crawl job.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecrawler_pages_total",
			Help: "Pages processed, by host and status class.",
		}, []string{"host", "status_class"}),
		pageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecrawler_page_failures_total",
			Help: "Failed pages, by host and failure kind.",
		}, []string{"host", "kind"}),
		pageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitecrawler_page_bytes_total",
			Help: "Response bytes downloaded, by host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitecrawler_fetch_duration_seconds",
			Help:    "Fetch latency, by host and status class.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"host", "status_class"}),
		running: make(map[string]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.jobsStarted, s.jobsFinished, s.jobsRunning, s.jobDuration,
		s.pages, s.pageFailures, s.pageBytes, s.fetchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.track(evt.JobID, true) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "success")
		case progress.StageJobCanceled:
			s.finish(evt, "canceled")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StageFetchDone:
			s.observeFetch(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, outcome string) {
	s.jobsFinished.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.jobDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.JobID, false) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	host := metrics.SanitizeSite(evt.Host)
	class := string(evt.Class())
	s.pages.WithLabelValues(host, class).Inc()
	if evt.FailureKind != "" {
		s.pageFailures.WithLabelValues(host, evt.FailureKind).Inc()
	}
	if evt.Bytes > 0 {
		s.pageBytes.WithLabelValues(host).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(host, class).Observe(evt.Dur.Seconds())
	}
}

// track records a job as running (start=true) or finished and reports
// whether the state changed.
func (s *PrometheusSink) track(jobID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	if start {
		s.running[jobID] = struct{}{}
		return !ok
	}
	delete(s.running, jobID)
	return ok
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
