// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl, /v1/scrape, /v1/map and /v1/search for synchronous
//     operations.
//   - POST /v1/jobs and /v1/jobs/{job_id}/... for async crawl jobs.
package api
