// Package server exposes the client's diagnostic HTTP API: health,
// session statistics, display state, manual assist triggering, and
// Prometheus metrics.
package server
