// Package audio implements the capture uplink pipeline: voice-gated
// frame forwarding, PCM16 quantization and base64 encoding, and the
// bounded-cadence flush policy for audio-chunk messages.
package audio
