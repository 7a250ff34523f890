// Package vad implements energy-based voice-activity gating with
// speech-start/speech-end debouncing and a pre-roll ring buffer.
// Both audio capture backends share this single algorithm.
package vad
