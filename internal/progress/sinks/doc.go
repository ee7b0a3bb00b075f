// Package sinks implements progress consumers for structured logs and
// Prometheus.
package sinks
