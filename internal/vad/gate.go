package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// GateState represents the current state of the gating process
type GateState int

const (
	// StateIdle means no utterance is in progress
	StateIdle GateState = iota
	// StateSpeech means an utterance has begun and frames stream live
	StateSpeech
)

// Config contains voice-activity gate configuration
type Config struct {
	Enabled     bool
	Threshold   float64 // RMS threshold, 0..1
	SpeechStart time.Duration
	SpeechEnd   time.Duration
	PreRoll     time.Duration
	SampleRate  int
	FrameSize   int // samples per frame
}

// Decision is the outcome of processing one frame. Forward holds the
// frames to deliver to the uplink in order; on speech onset this
// includes the buffered pre-roll so utterance starts are not clipped.
type Decision struct {
	Forward       [][]float32
	SpeechStarted bool
	SpeechEnded   bool // speech-end boundary: the uplink must flush immediately
}

// Gate implements voice-activity gating over fixed-size float frames.
// All timing is derived from sample counts rather than the wall clock,
// so both capture backends behave identically for the same input.
type Gate struct {
	config   Config
	frameDur time.Duration

	state      GateState
	speechRun  time.Duration // consecutive speech observed while idle
	silenceRun time.Duration // consecutive silence observed while speaking

	// Pre-roll ring buffer, bounded by config.PreRoll
	preRoll    [][]float32
	preRollDur time.Duration

	// Statistics
	framesProcessed uint64
	speechFrames    uint64
	utterances      uint64
	lastRMS         float64

	mu sync.RWMutex
}

// GateStats represents gate statistics
type GateStats struct {
	State           string  `json:"state"`
	Enabled         bool    `json:"enabled"`
	FramesProcessed uint64  `json:"frames_processed"`
	SpeechFrames    uint64  `json:"speech_frames"`
	Utterances      uint64  `json:"utterances"`
	LastRMS         float64 `json:"last_rms"`
}

// NewGate creates a new voice-activity gate
func NewGate(config Config) (*Gate, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", config.Threshold)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.FrameSize)
	}

	if config.SpeechStart < 0 || config.SpeechEnd < 0 || config.PreRoll < 0 {
		return nil, fmt.Errorf("debounce and pre-roll durations cannot be negative")
	}

	frameDur := time.Duration(config.FrameSize) * time.Second / time.Duration(config.SampleRate)

	return &Gate{
		config:   config,
		frameDur: frameDur,
		state:    StateIdle,
	}, nil
}

// RMS computes the root-mean-square amplitude of a frame
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Process classifies one frame and returns the gating decision.
// When gating is disabled every frame is forwarded unconditionally.
func (g *Gate) Process(frame []float32) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.framesProcessed++

	rms := RMS(frame)
	g.lastRMS = rms
	isSpeech := rms >= g.config.Threshold
	if isSpeech {
		g.speechFrames++
	}

	if !g.config.Enabled {
		return Decision{Forward: [][]float32{frame}}
	}

	switch g.state {
	case StateIdle:
		return g.processIdle(frame, isSpeech)
	case StateSpeech:
		return g.processSpeech(frame, isSpeech)
	}

	return Decision{}
}

// processIdle accumulates the speech-start debounce and maintains the
// pre-roll ring while no utterance is in progress
func (g *Gate) processIdle(frame []float32, isSpeech bool) Decision {
	g.pushPreRoll(frame)

	if !isSpeech {
		g.speechRun = 0
		return Decision{}
	}

	g.speechRun += g.frameDur
	if g.speechRun < g.config.SpeechStart {
		return Decision{}
	}

	// Sustained speech: utterance begins. Flush the pre-roll first so
	// the onset is not clipped; the current frame is the ring's tail.
	forward := g.preRoll
	g.preRoll = nil
	g.preRollDur = 0

	g.state = StateSpeech
	g.speechRun = 0
	g.silenceRun = 0
	g.utterances++

	return Decision{Forward: forward, SpeechStarted: true}
}

// processSpeech streams live frames and accumulates the speech-end
// debounce during an utterance
func (g *Gate) processSpeech(frame []float32, isSpeech bool) Decision {
	if isSpeech {
		g.silenceRun = 0
		return Decision{Forward: [][]float32{frame}}
	}

	g.silenceRun += g.frameDur
	if g.silenceRun < g.config.SpeechEnd {
		// Silence not yet sustained; keep streaming so short pauses
		// inside an utterance are preserved
		return Decision{Forward: [][]float32{frame}}
	}

	g.state = StateIdle
	g.speechRun = 0
	g.silenceRun = 0

	return Decision{Forward: [][]float32{frame}, SpeechEnded: true}
}

// pushPreRoll appends a frame to the ring, evicting oldest frames
// beyond the configured pre-roll window
func (g *Gate) pushPreRoll(frame []float32) {
	g.preRoll = append(g.preRoll, frame)
	g.preRollDur += g.frameDur

	for g.preRollDur > g.config.PreRoll && len(g.preRoll) > 1 {
		g.preRoll = g.preRoll[1:]
		g.preRollDur -= g.frameDur
	}
}

// Reset clears all gating state and statistics
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = StateIdle
	g.speechRun = 0
	g.silenceRun = 0
	g.preRoll = nil
	g.preRollDur = 0
	g.framesProcessed = 0
	g.speechFrames = 0
	g.utterances = 0
	g.lastRMS = 0
}

// State returns the current gate state
func (g *Gate) State() GateState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// FrameDuration returns the duration of one frame at the configured
// sample rate
func (g *Gate) FrameDuration() time.Duration {
	return g.frameDur
}

// GetStats returns current gate statistics
func (g *Gate) GetStats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stateStr := "idle"
	if g.state == StateSpeech {
		stateStr = "speech"
	}

	return GateStats{
		State:           stateStr,
		Enabled:         g.config.Enabled,
		FramesProcessed: g.framesProcessed,
		SpeechFrames:    g.speechFrames,
		Utterances:      g.utterances,
		LastRMS:         g.lastRMS,
	}
}
