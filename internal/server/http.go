package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consultlink/meetclient/internal/config"
	"github.com/consultlink/meetclient/internal/metrics"
	"github.com/consultlink/meetclient/internal/session"
	"github.com/consultlink/meetclient/internal/signal"
)

// HTTPServer provides HTTP API endpoints for monitoring the client
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	sess    *session.Session
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, sess *session.Session, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		sess:      sess,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Display state endpoints
	mux.HandleFunc("/transcripts", h.withMetrics("/transcripts", h.handleTranscripts))
	mux.HandleFunc("/suggestions", h.withMetrics("/suggestions", h.handleSuggestions))

	// Manual assist trigger
	mux.HandleFunc("/assist", h.withMetrics("/assist", h.handleAssist))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Wrap the response writer to capture the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	stats := h.sess.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "meeting-client",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"signaling": map[string]interface{}{
				"open":              stats.Signaling.Open,
				"messages_sent":     stats.Signaling.MessagesSent,
				"messages_received": stats.Signaling.MessagesReceived,
			},
			"peer": map[string]interface{}{
				"state": stats.Peer.State,
			},
			"session": map[string]interface{}{
				"joined":     stats.Joined,
				"meeting_id": stats.MeetingID,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"session":   h.sess.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleTranscripts implements the /transcripts endpoint
func (h *HTTPServer) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transcripts := h.sess.Correlator().Display().Transcripts()

	response := map[string]interface{}{
		"total":       len(transcripts),
		"timestamp":   time.Now().UTC(),
		"transcripts": transcripts,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSuggestions implements the /suggestions endpoint
func (h *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	suggestions := h.sess.Correlator().Display().Suggestions()

	response := map[string]interface{}{
		"total":       len(suggestions),
		"timestamp":   time.Now().UTC(),
		"suggestions": suggestions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// assistRequest is the /assist request body
type assistRequest struct {
	TurnID string `json:"turn_id"`
	Stage  string `json:"stage"`
	Text   string `json:"text"`
}

// handleAssist implements the /assist endpoint: a manual assist
// request for a displayed turn
func (h *HTTPServer) handleAssist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.TurnID == "" {
		http.Error(w, "turn_id required", http.StatusBadRequest)
		return
	}

	stage := signal.Stage(req.Stage)
	if !signal.IsValidStage(stage) {
		stage = signal.StageFinal
	}

	requestID, err := h.sess.RequestAssist(req.TurnID, stage, req.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	response := map[string]interface{}{
		"request_id": requestID,
		"timestamp":  time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"signaling": map[string]interface{}{
			"url":             h.config.Signaling.URL,
			"connect_timeout": h.config.Signaling.ConnectTimeout,
			"write_timeout":   h.config.Signaling.WriteTimeout,
		},
		"meeting": map[string]interface{}{
			"meeting_id": h.config.Meeting.MeetingID,
			"user_id":    h.config.Meeting.UserID,
			"role":       h.config.Meeting.Role,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"frame_size":  h.config.Audio.FrameSize,
		},
		"vad": map[string]interface{}{
			"enabled":         h.config.VAD.Enabled,
			"threshold":       h.config.VAD.Threshold,
			"speech_start_ms": h.config.VAD.SpeechStartMs,
			"speech_end_ms":   h.config.VAD.SpeechEndMs,
			"pre_roll_ms":     h.config.VAD.PreRollMs,
		},
		"uplink": map[string]interface{}{
			"flush_interval_ms": h.config.Uplink.FlushIntervalMs,
			"min_buffered_ms":   h.config.Uplink.MinBufferedMs,
		},
		"assist": map[string]interface{}{
			"draft_cooldown_ms": h.config.Assist.DraftCooldownMs,
			"min_growth_chars":  h.config.Assist.MinGrowthChars,
			"manual_timeout_ms": h.config.Assist.ManualTimeoutMs,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Consultation Meeting Client",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":             "API documentation",
			"GET /health":       "Client health check",
			"GET /stats":        "Session statistics",
			"GET /transcripts":  "Displayed transcript turns",
			"GET /suggestions":  "Displayed assist suggestions",
			"POST /assist":      "Trigger a manual assist request",
			"GET /config":       "Client configuration",
			"GET /metrics":      "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
