package audio

import (
	"fmt"
	"sync"
	"time"
)

// Chunk is one flushed batch of uplink audio
type Chunk struct {
	AudioData    string    // base64 PCM16 little-endian
	SampleRate   int
	SampleCount  int
	ClientSentAt time.Time
	Forced       bool // flushed at a speech-end boundary
}

// UplinkConfig contains flush cadence configuration
type UplinkConfig struct {
	SampleRate    int
	FlushInterval time.Duration // minimum time between cadence flushes
	MinBuffered   time.Duration // minimum accumulated audio per cadence flush
}

// Uplink accumulates gated frames and flushes them at bounded cadence.
// A cadence flush fires when enough time has elapsed since the last
// flush AND enough audio has accumulated; a forced flush fires
// immediately at an utterance boundary regardless of cadence.
type Uplink struct {
	config    UplinkConfig
	pending   []float32
	lastFlush time.Time
	emit      func(Chunk)

	// now is the time source; replaced in tests
	now func() time.Time

	// Statistics
	flushes       uint64
	forcedFlushes uint64
	samplesSent   uint64

	mu sync.Mutex
}

// UplinkStats represents uplink statistics
type UplinkStats struct {
	Flushes        uint64 `json:"flushes"`
	ForcedFlushes  uint64 `json:"forced_flushes"`
	SamplesSent    uint64 `json:"samples_sent"`
	PendingSamples int    `json:"pending_samples"`
}

// NewUplink creates a new uplink accumulator. The emit callback
// receives each flushed chunk and must not block.
func NewUplink(config UplinkConfig, emit func(Chunk)) (*Uplink, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %s", config.FlushInterval)
	}

	if config.MinBuffered <= 0 {
		return nil, fmt.Errorf("min buffered duration must be positive, got %s", config.MinBuffered)
	}

	if emit == nil {
		return nil, fmt.Errorf("emit callback cannot be nil")
	}

	return &Uplink{
		config: config,
		emit:   emit,
		now:    time.Now,
	}, nil
}

// Append adds one frame to the pending buffer and performs a cadence
// flush when both the elapsed-time and accumulated-audio conditions hold
func (u *Uplink) Append(frame []float32) {
	u.mu.Lock()

	u.pending = append(u.pending, frame...)

	now := u.now()
	if u.lastFlush.IsZero() {
		u.lastFlush = now
	}

	elapsed := now.Sub(u.lastFlush)
	buffered := u.bufferedDuration()

	var chunk *Chunk
	if elapsed >= u.config.FlushInterval && buffered >= u.config.MinBuffered {
		chunk = u.flushLocked(now, false)
	}
	u.mu.Unlock()

	if chunk != nil {
		u.emit(*chunk)
	}
}

// ForceFlush flushes any pending samples immediately. Used at
// speech-end boundaries and on pipeline shutdown.
func (u *Uplink) ForceFlush() {
	u.mu.Lock()
	chunk := u.flushLocked(u.now(), true)
	u.mu.Unlock()

	if chunk != nil {
		u.emit(*chunk)
	}
}

// flushLocked encodes and clears the pending buffer. Caller holds u.mu.
func (u *Uplink) flushLocked(now time.Time, forced bool) *Chunk {
	if len(u.pending) == 0 {
		return nil
	}

	chunk := &Chunk{
		AudioData:    EncodeBase64PCM16(u.pending),
		SampleRate:   u.config.SampleRate,
		SampleCount:  len(u.pending),
		ClientSentAt: now,
		Forced:       forced,
	}

	u.flushes++
	if forced {
		u.forcedFlushes++
	}
	u.samplesSent += uint64(len(u.pending))

	u.pending = nil
	u.lastFlush = now

	return chunk
}

// bufferedDuration returns the duration of pending audio. Caller holds u.mu.
func (u *Uplink) bufferedDuration() time.Duration {
	return time.Duration(len(u.pending)) * time.Second / time.Duration(u.config.SampleRate)
}

// PendingSamples returns the number of samples awaiting flush
func (u *Uplink) PendingSamples() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

// GetStats returns current uplink statistics
func (u *Uplink) GetStats() UplinkStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	return UplinkStats{
		Flushes:        u.flushes,
		ForcedFlushes:  u.forcedFlushes,
		SamplesSent:    u.samplesSent,
		PendingSamples: len(u.pending),
	}
}
