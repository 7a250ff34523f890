package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// SyntheticConfig configures the synthetic capture source
type SyntheticConfig struct {
	SampleRate int
	FrameSize  int
	ToneHz     float64       // frequency of the generated speech tone
	Amplitude  float64       // peak amplitude of the tone, 0..1
	BurstOn    time.Duration // length of each simulated utterance
	BurstOff   time.Duration // silence gap between utterances
}

// SyntheticSource generates capture media without hardware: a sine
// tone alternating with silence stands in for speech, so the full
// gate/uplink path can run on machines with no microphone or camera.
type SyntheticSource struct {
	config SyntheticConfig
	logger *slog.Logger

	audioTrack *webrtc.TrackLocalStaticSample
	videoTrack *webrtc.TrackLocalStaticSample

	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewSyntheticSource creates a synthetic capture source
func NewSyntheticSource(config SyntheticConfig, logger *slog.Logger) (*SyntheticSource, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.FrameSize)
	}

	if config.ToneHz <= 0 {
		config.ToneHz = 440
	}

	if config.Amplitude <= 0 || config.Amplitude > 1 {
		config.Amplitude = 0.3
	}

	if config.BurstOn <= 0 {
		config.BurstOn = 2 * time.Second
	}

	if config.BurstOff <= 0 {
		config.BurstOff = 1500 * time.Millisecond
	}

	return &SyntheticSource{
		config: config,
		logger: logger,
	}, nil
}

// AudioTrack returns the outbound audio track
func (s *SyntheticSource) AudioTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audioTrack == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "meetclient-audio",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		s.audioTrack = track
	}

	return s.audioTrack, nil
}

// VideoTrack returns the outbound video track
func (s *SyntheticSource) VideoTrack() (webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.videoTrack == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "meetclient-video",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		s.videoTrack = track
	}

	return s.videoTrack, nil
}

// Start begins generating capture frames into the sink at the real
// frame cadence
func (s *SyntheticSource) Start(ctx context.Context, sink func(frame []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("source already stopped")
	}

	if s.cancel != nil {
		return fmt.Errorf("source already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.generate(ctx, sink)

	s.logger.Info("Synthetic capture started",
		slog.Int("sample_rate", s.config.SampleRate),
		slog.Int("frame_size", s.config.FrameSize),
		slog.Float64("tone_hz", s.config.ToneHz),
	)

	return nil
}

// generate produces frames on a ticker: a tone during burst-on phases
// and silence during burst-off phases
func (s *SyntheticSource) generate(ctx context.Context, sink func(frame []float32)) {
	defer s.wg.Done()

	frameDur := time.Duration(s.config.FrameSize) * time.Second / time.Duration(s.config.SampleRate)
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	cycle := s.config.BurstOn + s.config.BurstOff
	var elapsed time.Duration
	var phase float64
	step := 2 * math.Pi * s.config.ToneHz / float64(s.config.SampleRate)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		speaking := elapsed%cycle < s.config.BurstOn
		elapsed += frameDur

		frame := make([]float32, s.config.FrameSize)
		if speaking {
			for i := range frame {
				frame[i] = float32(s.config.Amplitude * math.Sin(phase))
				phase += step
			}
			if phase > 2*math.Pi {
				phase = math.Mod(phase, 2*math.Pi)
			}
		}

		sink(frame)
	}
}

// Stop halts frame generation. Safe to call twice.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}

	s.logger.Info("Synthetic capture stopped")
}
