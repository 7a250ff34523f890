// Package metrics provides Prometheus metrics for the meeting client:
// audio pipeline throughput, signaling traffic, peer link health,
// assist request correlation, and latency distributions.
package metrics
