// Package latency provides passive rolling-percentile latency windows
// for diagnostics: capture-to-transcript, request-to-response, and
// capture-to-response.
package latency
