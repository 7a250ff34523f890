package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/consultlink/meetclient/internal/vad"
)

// Pipeline binds the shared voice-activity gate to the uplink. Each
// capture frame flows gate → uplink; a detected speech-end boundary
// forces an immediate flush.
type Pipeline struct {
	gate   *vad.Gate
	uplink *Uplink
	logger *slog.Logger

	// onSpeech, when set, is invoked on each speech boundary with
	// started=true at onset and started=false at end
	onSpeech func(started bool)

	// Statistics
	framesIn        uint64
	framesForwarded uint64

	mu sync.RWMutex
}

// PipelineStats represents pipeline statistics
type PipelineStats struct {
	FramesIn        uint64        `json:"frames_in"`
	FramesForwarded uint64        `json:"frames_forwarded"`
	Gate            vad.GateStats `json:"gate"`
	Uplink          UplinkStats   `json:"uplink"`
}

// NewPipeline creates a new audio pipeline
func NewPipeline(gate *vad.Gate, uplink *Uplink, logger *slog.Logger) (*Pipeline, error) {
	if gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}

	if uplink == nil {
		return nil, fmt.Errorf("uplink cannot be nil")
	}

	return &Pipeline{
		gate:   gate,
		uplink: uplink,
		logger: logger,
	}, nil
}

// OnSpeech registers a speech boundary callback. Must be set before
// frames start flowing; the callback must not block.
func (p *Pipeline) OnSpeech(fn func(started bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onSpeech = fn
}

// ProcessFrame runs one capture frame through the gate and uplink.
// Must complete quickly; it runs inside the capture callback window.
func (p *Pipeline) ProcessFrame(frame []float32) {
	decision := p.gate.Process(frame)

	p.mu.Lock()
	p.framesIn++
	p.framesForwarded += uint64(len(decision.Forward))
	onSpeech := p.onSpeech
	p.mu.Unlock()

	for _, f := range decision.Forward {
		p.uplink.Append(f)
	}

	if decision.SpeechStarted {
		p.logger.Debug("Speech onset detected",
			slog.Int("pre_roll_frames", len(decision.Forward)),
		)
		if onSpeech != nil {
			onSpeech(true)
		}
	}

	if decision.SpeechEnded {
		p.logger.Debug("Speech end detected, forcing flush")
		p.uplink.ForceFlush()
		if onSpeech != nil {
			onSpeech(false)
		}
	}
}

// Drain flushes any audio still pending in the uplink
func (p *Pipeline) Drain() {
	p.uplink.ForceFlush()
}

// GetStats returns current pipeline statistics
func (p *Pipeline) GetStats() PipelineStats {
	p.mu.RLock()
	framesIn := p.framesIn
	framesForwarded := p.framesForwarded
	p.mu.RUnlock()

	return PipelineStats{
		FramesIn:        framesIn,
		FramesForwarded: framesForwarded,
		Gate:            p.gate.GetStats(),
		Uplink:          p.uplink.GetStats(),
	}
}
