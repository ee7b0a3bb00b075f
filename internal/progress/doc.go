// Package progress carries crawl milestones from the engine to observers.
// Events are buffered by a Hub that never blocks the crawl loop and are
// delivered in batches to pluggable sinks (logs, Prometheus).
package progress
