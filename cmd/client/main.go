package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/consultlink/meetclient/internal/config"
	"github.com/consultlink/meetclient/internal/media"
	"github.com/consultlink/meetclient/internal/metrics"
	"github.com/consultlink/meetclient/internal/server"
	"github.com/consultlink/meetclient/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "meeting-client"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load optional .env before reading environment overrides
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment from .env")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("signaling_url", cfg.Signaling.URL),
		slog.String("meeting_id", cfg.Meeting.MeetingID),
		slog.String("user_id", cfg.Meeting.UserID),
		slog.String("role", cfg.Meeting.Role),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_size", cfg.Audio.FrameSize),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Synthetic capture stands in for microphone and camera hardware
	source, err := media.NewSyntheticSource(media.SyntheticConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
	}, logger)
	if err != nil {
		logger.Error("Failed to create media source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the meeting session
	sess, err := session.NewSession(cfg, logger, appMetrics, source)
	if err != nil {
		logger.Error("Failed to create session", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sess, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Join the meeting
	if err := sess.Join(ctx); err != nil {
		logger.Error("Failed to join meeting", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Client started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-sess.Done():
		logger.Info("Signaling channel closed, shutting down")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Leave the meeting (ordered, idempotent teardown)
	sess.Leave()

	// Log final statistics
	stats := sess.GetStats()
	logger.Info("Final session statistics",
		slog.Uint64("messages_sent", stats.Signaling.MessagesSent),
		slog.Uint64("messages_received", stats.Signaling.MessagesReceived),
		slog.Uint64("chunks_flushed", stats.Pipeline.Uplink.Flushes),
		slog.Uint64("assist_accepted", stats.Assist.Accepted),
	)

	logger.Info("Client stopped")
}

// applyEnvOverrides lets environment variables override meeting
// identity so one config file serves many clients
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("MEET_SIGNALING_URL"); v != "" {
		cfg.Signaling.URL = v
	}
	if v := os.Getenv("MEET_MEETING_ID"); v != "" {
		cfg.Meeting.MeetingID = v
	}
	if v := os.Getenv("MEET_USER_ID"); v != "" {
		cfg.Meeting.UserID = v
	}
	if v := os.Getenv("MEET_ROLE"); v != "" {
		cfg.Meeting.Role = v
	}
	if v := os.Getenv("MEET_TARGET_USER_ID"); v != "" {
		cfg.Meeting.TargetUserID = v
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination; file paths rotate via lumberjack
	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
