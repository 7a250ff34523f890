// Package session binds the signaling channel, capture pipeline, peer
// link, and assist correlator into one meeting lifecycle with ordered,
// idempotent teardown.
package session
