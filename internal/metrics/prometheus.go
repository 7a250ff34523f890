package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the meeting client
type Metrics struct {
	// Audio pipeline metrics
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	ChunksFlushed  prometheus.Counter
	ForcedFlushes  prometheus.Counter
	ChunkSamples   prometheus.Histogram

	// VAD metrics
	SpeechSegments prometheus.Counter
	SpeechActive   prometheus.Gauge

	// Signaling metrics
	SignalMessagesSent     *prometheus.CounterVec
	SignalMessagesReceived *prometheus.CounterVec
	SignalMessagesDropped  prometheus.Counter

	// Peer link metrics
	NegotiationErrors prometheus.Counter
	LinksReplaced     prometheus.Counter

	// Assist metrics
	AssistRequests  *prometheus.CounterVec
	AssistResponses *prometheus.CounterVec
	ManualTimeouts  prometheus.Counter

	// Latency metrics
	CaptureToTranscript prometheus.Histogram
	RequestToResponse   prometheus.Histogram
	CaptureToResponse   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Audio pipeline metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_audio_frames_captured_total",
			Help: "Total number of audio frames captured",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_audio_frames_dropped_total",
			Help: "Total number of audio frames dropped by the backend queue",
		}),
		ChunksFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_audio_chunks_flushed_total",
			Help: "Total number of audio chunks flushed uplink",
		}),
		ForcedFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_audio_forced_flushes_total",
			Help: "Total number of flushes forced at speech end",
		}),
		ChunkSamples: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meet_audio_chunk_samples",
			Help:    "Number of samples per flushed audio chunk",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 8), // 1K to ~128K samples
		}),

		// VAD metrics
		SpeechSegments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_vad_speech_segments_total",
			Help: "Total number of detected speech segments",
		}),
		SpeechActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meet_vad_speech_active",
			Help: "Whether the VAD gate is currently in the speech state",
		}),

		// Signaling metrics
		SignalMessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_signal_messages_sent_total",
			Help: "Total number of signaling messages sent",
		}, []string{"type"}),
		SignalMessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_signal_messages_received_total",
			Help: "Total number of signaling messages received",
		}, []string{"type"}),
		SignalMessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_signal_messages_dropped_total",
			Help: "Total number of messages dropped because the channel was closed",
		}),

		// Peer link metrics
		NegotiationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_peer_negotiation_errors_total",
			Help: "Total number of non-fatal negotiation errors",
		}),
		LinksReplaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_peer_links_replaced_total",
			Help: "Total number of wholesale peer link replacements",
		}),

		// Assist metrics
		AssistRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_assist_requests_total",
			Help: "Total number of assist requests sent",
		}, []string{"origin"}),
		AssistResponses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_assist_responses_total",
			Help: "Total number of assist responses by correlation outcome",
		}, []string{"outcome"}),
		ManualTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meet_assist_manual_timeouts_total",
			Help: "Total number of manual assist requests that timed out",
		}),

		// Latency metrics
		CaptureToTranscript: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meet_capture_to_transcript_seconds",
			Help:    "Latency from audio capture start to transcript arrival",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		RequestToResponse: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meet_request_to_response_seconds",
			Help:    "Latency from assist request to response arrival",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		CaptureToResponse: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meet_capture_to_response_seconds",
			Help:    "End-to-end latency from audio capture start to suggestion arrival",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the frames captured counter
func (m *Metrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// RecordFrameDropped increments the frames dropped counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordChunkFlushed records a flushed uplink chunk
func (m *Metrics) RecordChunkFlushed(sampleCount int, forced bool) {
	m.ChunksFlushed.Inc()
	m.ChunkSamples.Observe(float64(sampleCount))
	if forced {
		m.ForcedFlushes.Inc()
	}
}

// RecordSpeechStart records a speech onset
func (m *Metrics) RecordSpeechStart() {
	m.SpeechSegments.Inc()
	m.SpeechActive.Set(1)
}

// RecordSpeechEnd records a speech offset
func (m *Metrics) RecordSpeechEnd() {
	m.SpeechActive.Set(0)
}

// RecordSignalSent increments the sent counter for a message type
func (m *Metrics) RecordSignalSent(msgType string) {
	m.SignalMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordSignalReceived increments the received counter for a message type
func (m *Metrics) RecordSignalReceived(msgType string) {
	m.SignalMessagesReceived.WithLabelValues(msgType).Inc()
}

// RecordSignalDropped increments the dropped messages counter
func (m *Metrics) RecordSignalDropped() {
	m.SignalMessagesDropped.Inc()
}

// RecordNegotiationError increments the negotiation errors counter
func (m *Metrics) RecordNegotiationError() {
	m.NegotiationErrors.Inc()
}

// RecordLinkReplaced increments the links replaced counter
func (m *Metrics) RecordLinkReplaced() {
	m.LinksReplaced.Inc()
}

// RecordAssistRequest records a sent assist request by origin
func (m *Metrics) RecordAssistRequest(origin string) {
	m.AssistRequests.WithLabelValues(origin).Inc()
}

// RecordAssistResponse records a received assist response by outcome
func (m *Metrics) RecordAssistResponse(outcome string) {
	m.AssistResponses.WithLabelValues(outcome).Inc()
}

// RecordManualTimeout increments the manual timeout counter
func (m *Metrics) RecordManualTimeout() {
	m.ManualTimeouts.Inc()
}

// RecordCaptureToTranscript observes a capture-to-transcript latency
func (m *Metrics) RecordCaptureToTranscript(seconds float64) {
	m.CaptureToTranscript.Observe(seconds)
}

// RecordRequestToResponse observes a request-to-response latency
func (m *Metrics) RecordRequestToResponse(seconds float64) {
	m.RequestToResponse.Observe(seconds)
}

// RecordCaptureToResponse observes an end-to-end latency
func (m *Metrics) RecordCaptureToResponse(seconds float64) {
	m.CaptureToResponse.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
