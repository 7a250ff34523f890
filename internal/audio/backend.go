package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// BackendKind selects the capture processing backend
type BackendKind string

const (
	// BackendRealtime processes frames on a dedicated goroutine
	// (preferred: keeps gating work off the capture callback)
	BackendRealtime BackendKind = "realtime"
	// BackendInline processes frames synchronously inside the
	// capture callback (fallback for constrained platforms)
	BackendInline BackendKind = "inline"
)

// Backend delivers capture frames into a pipeline. Push must never
// block the capture callback; a backend that cannot keep up drops the
// frame and reports false.
type Backend interface {
	Start(ctx context.Context)
	Push(frame []float32) bool
	Stop()
	DroppedFrames() uint64
}

// NewBackend creates a backend of the requested kind
func NewBackend(kind BackendKind, pipeline *Pipeline, logger *slog.Logger) (Backend, error) {
	switch kind {
	case BackendRealtime:
		return newRealtimeBackend(pipeline, logger), nil
	case BackendInline:
		return newInlineBackend(pipeline), nil
	default:
		return nil, fmt.Errorf("unknown backend kind: %q", kind)
	}
}

// realtimeBackend hands frames to a dedicated processing goroutine
// through a bounded channel. Frames arriving while the channel is full
// are dropped, mirroring a capture callback that overruns its window.
type realtimeBackend struct {
	pipeline *Pipeline
	logger   *slog.Logger
	frames   chan []float32

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	dropped uint64
	mu      sync.Mutex
}

func newRealtimeBackend(pipeline *Pipeline, logger *slog.Logger) *realtimeBackend {
	return &realtimeBackend{
		pipeline: pipeline,
		logger:   logger,
		frames:   make(chan []float32, 32),
	}
}

// Start launches the processing goroutine
func (b *realtimeBackend) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-b.frames:
				b.pipeline.ProcessFrame(frame)
			}
		}
	}()
}

// Push enqueues a frame without blocking; full queue drops the frame
func (b *realtimeBackend) Push(frame []float32) bool {
	select {
	case b.frames <- frame:
		return true
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		return false
	}
}

// Stop drains queued frames and stops the processing goroutine
func (b *realtimeBackend) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	cancel := b.cancel
	b.mu.Unlock()

	// Process whatever is already queued before shutting down
	for {
		select {
		case frame := <-b.frames:
			b.pipeline.ProcessFrame(frame)
			continue
		default:
		}
		break
	}

	cancel()
	b.wg.Wait()
}

// DroppedFrames returns the number of frames dropped on a full queue
func (b *realtimeBackend) DroppedFrames() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// inlineBackend processes each frame synchronously in the caller's
// callback. Functionally identical to the realtime backend; it only
// changes where the work runs.
type inlineBackend struct {
	pipeline *Pipeline

	stopped bool
	mu      sync.Mutex
}

func newInlineBackend(pipeline *Pipeline) *inlineBackend {
	return &inlineBackend{pipeline: pipeline}
}

func (b *inlineBackend) Start(ctx context.Context) {}

func (b *inlineBackend) Push(frame []float32) bool {
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()

	if stopped {
		return false
	}

	b.pipeline.ProcessFrame(frame)
	return true
}

func (b *inlineBackend) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

func (b *inlineBackend) DroppedFrames() uint64 {
	return 0
}
