// Package metrics exposes the service-level Prometheus collectors. Per-page
// crawl metrics are produced by the progress Prometheus sink.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	operationsTotal            *prometheus.CounterVec
	asyncJobsTotal             *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Repeated calls
// are no-ops.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests served, by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency, by method and route.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"method", "route"},
		)
		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_operations_total",
				Help: "Completed operations, by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)
		asyncJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_async_jobs_total",
				Help: "Async crawl jobs reaching a terminal status.",
			},
			[]string{"status"},
		)
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitecrawler_active_workers",
				Help: "Workers currently running a crawl job.",
			},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecrawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// SanitizeSite reduces an address or bare host to a lowercase hostname
// suitable as a label, or "unknown".
func SanitizeSite(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOperation records the outcome of a scrape, map, crawl or search.
func ObserveOperation(operation string, err error) {
	if operationsTotal == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveJob counts an async job reaching status.
func ObserveJob(status string) {
	if asyncJobsTotal == nil {
		return
	}
	asyncJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers marks a worker busy.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers marks a worker idle.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveRateLimitDelay records a wait on the per-host limiter.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}
