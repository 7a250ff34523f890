package audio

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/consultlink/meetclient/internal/vad"
)

func newTestPipeline(t *testing.T, chunks *[]Chunk) *Pipeline {
	t.Helper()

	gate, err := vad.NewGate(vad.Config{
		Enabled:    false, // forward everything; gating has its own tests
		SampleRate: 1000,
		FrameSize:  100,
	})
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	uplink, err := NewUplink(UplinkConfig{
		SampleRate:    1000,
		FlushInterval: time.Hour, // cadence never fires; tests flush explicitly
		MinBuffered:   time.Hour,
	}, func(chunk Chunk) {
		*chunks = append(*chunks, chunk)
	})
	if err != nil {
		t.Fatalf("Failed to create uplink: %v", err)
	}

	pipeline, err := NewPipeline(gate, uplink, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	return pipeline
}

func TestNewBackendUnknownKind(t *testing.T) {
	var chunks []Chunk
	pipeline := newTestPipeline(t, &chunks)

	if _, err := NewBackend("bogus", pipeline, slog.Default()); err == nil {
		t.Error("Expected error for unknown backend kind")
	}
}

func TestInlineBackendProcessesSynchronously(t *testing.T) {
	var chunks []Chunk
	pipeline := newTestPipeline(t, &chunks)

	backend, err := NewBackend(BackendInline, pipeline, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	backend.Start(context.Background())

	for i := 0; i < 4; i++ {
		if !backend.Push(make([]float32, 100)) {
			t.Fatal("Expected inline push to succeed")
		}
	}

	// Inline processing is synchronous, so the frames are already in
	// the uplink buffer
	stats := pipeline.GetStats()
	if stats.FramesIn != 4 {
		t.Errorf("Expected 4 frames in, got %d", stats.FramesIn)
	}

	backend.Stop()

	if backend.Push(make([]float32, 100)) {
		t.Error("Expected push after stop to be rejected")
	}
}

func TestRealtimeBackendDrainsOnStop(t *testing.T) {
	var chunks []Chunk
	pipeline := newTestPipeline(t, &chunks)

	backend, err := NewBackend(BackendRealtime, pipeline, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	backend.Start(context.Background())

	for i := 0; i < 8; i++ {
		backend.Push(make([]float32, 100))
	}

	// Stop drains queued frames before shutting down the goroutine
	backend.Stop()
	pipeline.Drain()

	var total int
	for _, chunk := range chunks {
		total += chunk.SampleCount
	}

	dropped := backend.DroppedFrames()
	expected := (8 - int(dropped)) * 100
	if total != expected {
		t.Errorf("Expected %d samples after drain, got %d", expected, total)
	}
}

func TestRealtimeBackendStopIdempotent(t *testing.T) {
	var chunks []Chunk
	pipeline := newTestPipeline(t, &chunks)

	backend, err := NewBackend(BackendRealtime, pipeline, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}

	backend.Start(context.Background())
	backend.Stop()
	backend.Stop() // must not panic or hang
}
