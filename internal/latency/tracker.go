package latency

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Metric identifies one tracked latency path
type Metric string

// Tracked latency metrics
const (
	CaptureToTranscript Metric = "capture_to_transcript"
	RequestToResponse   Metric = "request_to_response"
	CaptureToResponse   Metric = "capture_to_response"
)

const (
	// WindowSize bounds the rolling sample window per metric
	WindowSize = 60
	// logCadence: percentiles are logged on the 1st and every 5th sample
	logCadence = 5
)

// Tracker maintains bounded rolling latency windows per metric.
// Purely diagnostic; it never affects correctness.
type Tracker struct {
	logger     *slog.Logger
	windowSize int
	windows    map[Metric]*window
	mu         sync.Mutex
}

type window struct {
	samples []time.Duration
	total   uint64
}

// MetricStats is a snapshot of one metric's rolling window
type MetricStats struct {
	Count  uint64  `json:"count"`
	Window int     `json:"window"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	LastMs float64 `json:"last_ms"`
}

// NewTracker creates a new latency tracker
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		logger:     logger,
		windowSize: WindowSize,
		windows:    make(map[Metric]*window),
	}
}

// Record appends a sample to the metric's rolling window, evicting the
// oldest sample beyond the window size. At the logging cadence it
// computes and logs p50/p95 over the current window.
func (t *Tracker) Record(metric Metric, sample time.Duration) {
	t.mu.Lock()

	w, ok := t.windows[metric]
	if !ok {
		w = &window{samples: make([]time.Duration, 0, t.windowSize)}
		t.windows[metric] = w
	}

	w.samples = append(w.samples, sample)
	if len(w.samples) > t.windowSize {
		w.samples = w.samples[1:]
	}
	w.total++

	shouldLog := w.total == 1 || w.total%logCadence == 0
	var p50, p95 time.Duration
	if shouldLog {
		p50 = percentile(w.samples, 50)
		p95 = percentile(w.samples, 95)
	}
	total := w.total
	count := len(w.samples)

	t.mu.Unlock()

	if shouldLog {
		t.logger.Info("Latency window",
			slog.String("metric", string(metric)),
			slog.Uint64("samples", total),
			slog.Int("window", count),
			slog.Float64("p50_ms", float64(p50)/float64(time.Millisecond)),
			slog.Float64("p95_ms", float64(p95)/float64(time.Millisecond)),
		)
	}
}

// percentile computes the nearest-rank percentile over a window
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}

	return sorted[rank-1]
}

// Snapshot returns current per-metric statistics
func (t *Tracker) Snapshot() map[Metric]MetricStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Metric]MetricStats, len(t.windows))
	for metric, w := range t.windows {
		stats := MetricStats{
			Count:  w.total,
			Window: len(w.samples),
		}
		if len(w.samples) > 0 {
			stats.P50Ms = float64(percentile(w.samples, 50)) / float64(time.Millisecond)
			stats.P95Ms = float64(percentile(w.samples, 95)) / float64(time.Millisecond)
			stats.LastMs = float64(w.samples[len(w.samples)-1]) / float64(time.Millisecond)
		}
		out[metric] = stats
	}

	return out
}
