package vad

import (
	"math"
	"testing"
	"time"
)

// makeFrame builds a frame of constant amplitude, so RMS == amplitude
func makeFrame(size int, amplitude float32) []float32 {
	frame := make([]float32, size)
	for i := range frame {
		frame[i] = amplitude
	}
	return frame
}

// testConfig: 100-sample frames at 1kHz give a 100ms frame duration,
// which keeps the debounce arithmetic easy to follow
func testConfig() Config {
	return Config{
		Enabled:     true,
		Threshold:   0.1,
		SpeechStart: 200 * time.Millisecond,
		SpeechEnd:   200 * time.Millisecond,
		PreRoll:     300 * time.Millisecond,
		SampleRate:  1000,
		FrameSize:   100,
	}
}

func TestNewGateValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "threshold too low",
			mutate:    func(c *Config) { c.Threshold = -0.1 },
			expectErr: true,
		},
		{
			name:      "threshold too high",
			mutate:    func(c *Config) { c.Threshold = 1.1 },
			expectErr: true,
		},
		{
			name:      "zero sample rate",
			mutate:    func(c *Config) { c.SampleRate = 0 },
			expectErr: true,
		},
		{
			name:      "zero frame size",
			mutate:    func(c *Config) { c.FrameSize = 0 },
			expectErr: true,
		},
		{
			name:      "negative pre-roll",
			mutate:    func(c *Config) { c.PreRoll = -time.Second },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := NewGate(cfg)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("Expected RMS of empty frame to be 0, got %f", got)
	}

	if got := RMS(makeFrame(100, 0.5)); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("Expected RMS 0.5 for constant frame, got %f", got)
	}

	// Mixed signs: RMS ignores polarity
	frame := []float32{0.5, -0.5, 0.5, -0.5}
	if got := RMS(frame); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("Expected RMS 0.5 for alternating frame, got %f", got)
	}
}

func TestFrameDuration(t *testing.T) {
	gate, err := NewGate(testConfig())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	if got := gate.FrameDuration(); got != 100*time.Millisecond {
		t.Errorf("Expected frame duration 100ms, got %s", got)
	}
}

func TestDisabledGateForwardsEverything(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	gate, err := NewGate(cfg)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	// Silence must be forwarded too when gating is off
	decision := gate.Process(makeFrame(100, 0))
	if len(decision.Forward) != 1 {
		t.Errorf("Expected 1 forwarded frame, got %d", len(decision.Forward))
	}
	if decision.SpeechStarted || decision.SpeechEnded {
		t.Error("Disabled gate must not report speech boundaries")
	}
}

func TestOnsetDebounceAndPreRoll(t *testing.T) {
	gate, err := NewGate(testConfig())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	// Silence: nothing forwarded while idle
	for i := 0; i < 5; i++ {
		decision := gate.Process(makeFrame(100, 0))
		if len(decision.Forward) != 0 {
			t.Fatalf("Expected no forwarded frames while idle, got %d", len(decision.Forward))
		}
	}

	// First loud frame: below the 200ms start debounce, still idle
	decision := gate.Process(makeFrame(100, 0.5))
	if decision.SpeechStarted {
		t.Error("Expected onset to wait for sustained speech")
	}
	if gate.State() != StateIdle {
		t.Errorf("Expected state idle, got %v", gate.State())
	}

	// Second loud frame: debounce satisfied, pre-roll flushes with it.
	// The 300ms ring holds the last 3 frames: one silence + both loud.
	decision = gate.Process(makeFrame(100, 0.5))
	if !decision.SpeechStarted {
		t.Fatal("Expected speech onset on sustained speech")
	}
	if len(decision.Forward) != 3 {
		t.Errorf("Expected 3 forwarded frames (pre-roll + onset), got %d", len(decision.Forward))
	}
	if gate.State() != StateSpeech {
		t.Errorf("Expected state speech, got %v", gate.State())
	}

	stats := gate.GetStats()
	if stats.Utterances != 1 {
		t.Errorf("Expected 1 utterance, got %d", stats.Utterances)
	}
}

func TestSpeechEndDebounce(t *testing.T) {
	gate, err := NewGate(testConfig())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	// Drive the gate into the speech state
	gate.Process(makeFrame(100, 0.5))
	decision := gate.Process(makeFrame(100, 0.5))
	if !decision.SpeechStarted {
		t.Fatal("Expected speech onset")
	}

	// Live frames stream through one at a time
	decision = gate.Process(makeFrame(100, 0.5))
	if len(decision.Forward) != 1 || decision.SpeechEnded {
		t.Errorf("Expected 1 live frame and no end, got %d forwarded, ended=%v",
			len(decision.Forward), decision.SpeechEnded)
	}

	// First silent frame: below the 200ms end debounce, still streaming
	decision = gate.Process(makeFrame(100, 0))
	if decision.SpeechEnded {
		t.Error("Expected short pause to be preserved inside the utterance")
	}
	if len(decision.Forward) != 1 {
		t.Errorf("Expected pause frame to be forwarded, got %d", len(decision.Forward))
	}

	// Second silent frame: sustained silence ends the utterance
	decision = gate.Process(makeFrame(100, 0))
	if !decision.SpeechEnded {
		t.Fatal("Expected speech end on sustained silence")
	}
	if gate.State() != StateIdle {
		t.Errorf("Expected state idle after speech end, got %v", gate.State())
	}
}

func TestShortBurstNeverStarts(t *testing.T) {
	gate, err := NewGate(testConfig())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	// A single loud frame followed by silence resets the debounce
	gate.Process(makeFrame(100, 0.5))
	gate.Process(makeFrame(100, 0))
	decision := gate.Process(makeFrame(100, 0.5))

	if decision.SpeechStarted {
		t.Error("Expected interrupted speech run to reset the debounce")
	}

	if stats := gate.GetStats(); stats.Utterances != 0 {
		t.Errorf("Expected 0 utterances, got %d", stats.Utterances)
	}
}

func TestInterSpeechSilenceNotForwarded(t *testing.T) {
	gate, err := NewGate(testConfig())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	// Complete one utterance
	gate.Process(makeFrame(100, 0.5))
	gate.Process(makeFrame(100, 0.5))
	gate.Process(makeFrame(100, 0))
	decision := gate.Process(makeFrame(100, 0))
	if !decision.SpeechEnded {
		t.Fatal("Expected speech end")
	}

	// Silence after the utterance stays local
	for i := 0; i < 5; i++ {
		decision = gate.Process(makeFrame(100, 0))
		if len(decision.Forward) != 0 {
			t.Fatalf("Expected idle silence to be dropped, got %d frames", len(decision.Forward))
		}
	}
}

func TestReset(t *testing.T) {
	gate, err := NewGate(testConfig())
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	gate.Process(makeFrame(100, 0.5))
	gate.Process(makeFrame(100, 0.5))
	gate.Reset()

	if gate.State() != StateIdle {
		t.Errorf("Expected state idle after reset, got %v", gate.State())
	}

	stats := gate.GetStats()
	if stats.FramesProcessed != 0 || stats.Utterances != 0 {
		t.Errorf("Expected cleared statistics after reset, got %+v", stats)
	}
}
