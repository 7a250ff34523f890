package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/consultlink/meetclient/internal/assist"
	"github.com/consultlink/meetclient/internal/audio"
	"github.com/consultlink/meetclient/internal/config"
	"github.com/consultlink/meetclient/internal/latency"
	"github.com/consultlink/meetclient/internal/metrics"
	"github.com/consultlink/meetclient/internal/peer"
	"github.com/consultlink/meetclient/internal/signal"
	"github.com/consultlink/meetclient/internal/vad"
)

// Session owns one meeting's lifecycle: the signaling channel, the
// capture pipeline, the peer link, and the assist correlator. Join
// brings everything up; Leave tears it down in a fixed order and is
// safe to call more than once.
type Session struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	media   MediaSource

	client      *signal.Client
	pipeline    *audio.Pipeline
	backend     audio.Backend
	coordinator *peer.Coordinator
	correlator  *assist.Correlator
	tracker     *latency.Tracker

	// Requests awaiting their response, for latency measurement
	requests map[string]assist.Request

	joined  bool
	closed  bool
	leaving chan struct{}

	mu sync.Mutex
}

// Stats aggregates statistics from all session components
type Stats struct {
	Joined    bool                                   `json:"joined"`
	MeetingID string                                 `json:"meeting_id"`
	Signaling signal.ClientStats                     `json:"signaling"`
	Pipeline  audio.PipelineStats                    `json:"pipeline"`
	Backend   uint64                                 `json:"backend_dropped_frames"`
	Peer      peer.Stats                             `json:"peer"`
	Assist    assist.Stats                           `json:"assist"`
	Latency   map[latency.Metric]latency.MetricStats `json:"latency"`
}

// NewSession wires up all session components from configuration
func NewSession(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, media MediaSource) (*Session, error) {
	if media == nil {
		return nil, fmt.Errorf("media source cannot be nil")
	}

	s := &Session{
		config:   cfg,
		logger:   logger,
		metrics:  m,
		media:    media,
		requests: make(map[string]assist.Request),
		leaving:  make(chan struct{}),
		tracker:  latency.NewTracker(logger),
	}

	s.client = signal.NewClient(logger, cfg.Signaling.GetWriteTimeout())

	gate, err := vad.NewGate(vad.Config{
		Enabled:     cfg.VAD.Enabled,
		Threshold:   cfg.VAD.Threshold,
		SpeechStart: cfg.VAD.GetSpeechStart(),
		SpeechEnd:   cfg.VAD.GetSpeechEnd(),
		PreRoll:     cfg.VAD.GetPreRoll(),
		SampleRate:  cfg.Audio.SampleRate,
		FrameSize:   cfg.Audio.FrameSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VAD gate: %w", err)
	}

	uplink, err := audio.NewUplink(audio.UplinkConfig{
		SampleRate:    cfg.Audio.SampleRate,
		FlushInterval: cfg.Uplink.GetFlushInterval(),
		MinBuffered:   cfg.Uplink.GetMinBuffered(),
	}, s.emitChunk)
	if err != nil {
		return nil, fmt.Errorf("failed to create uplink: %w", err)
	}

	s.pipeline, err = audio.NewPipeline(gate, uplink, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	s.pipeline.OnSpeech(s.onSpeechBoundary)

	s.backend, err = audio.NewBackend(audio.BackendRealtime, s.pipeline, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture backend: %w", err)
	}

	s.coordinator = peer.NewCoordinator(peer.Config{
		MeetingID:    cfg.Meeting.MeetingID,
		TargetUserID: cfg.Meeting.TargetUserID,
		STUNServers:  cfg.ICE.STUNServers,
		OfferDelay:   cfg.ICE.GetOfferDelay(),
	}, logger, s.sendSignal)

	s.correlator, err = assist.NewCorrelator(assist.Config{
		DraftCooldown:  cfg.Assist.GetDraftCooldown(),
		MinGrowthChars: cfg.Assist.MinGrowthChars,
		ManualTimeout:  cfg.Assist.GetManualTimeout(),
	}, logger, s.sendAssistRequest, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create correlator: %w", err)
	}

	s.registerHandlers()

	// A transport failure ends the session; the caller observes it via
	// Done and drives the teardown
	s.client.OnClose(func(err error) {
		if err != nil {
			s.logger.Error("Signaling transport failed", slog.String("error", err.Error()))
		}
	})

	return s, nil
}

// Join acquires local media, connects the signaling channel, announces
// the client to the meeting, and starts the capture pipeline. Video is
// required: if the camera cannot be acquired the join fails before any
// network activity.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.joined {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.joined = true
	s.mu.Unlock()

	videoTrack, err := s.media.VideoTrack()
	if err != nil {
		s.markFailed()
		return &MediaAcquisitionError{Kind: "video", Err: err}
	}

	audioTrack, err := s.media.AudioTrack()
	if err != nil {
		s.markFailed()
		return &MediaAcquisitionError{Kind: "audio", Err: err}
	}

	s.coordinator.SetLocalTracks(audioTrack, videoTrack)

	dialCtx, cancel := context.WithTimeout(ctx, s.config.Signaling.GetConnectTimeout())
	defer cancel()

	if err := s.client.Connect(dialCtx, s.config.Signaling.URL); err != nil {
		s.markFailed()
		return fmt.Errorf("failed to open signaling channel: %w", err)
	}

	s.sendSignal(signal.TypeJoinMeeting, signal.JoinMeeting{
		MeetingID: s.config.Meeting.MeetingID,
		UserID:    s.config.Meeting.UserID,
		Role:      s.config.Meeting.Role,
	})

	s.backend.Start(ctx)

	if err := s.media.Start(ctx, s.pushFrame); err != nil {
		s.Leave()
		return &MediaAcquisitionError{Kind: "audio", Err: err}
	}

	s.logger.Info("Joined meeting",
		slog.String("meeting_id", s.config.Meeting.MeetingID),
		slog.String("user_id", s.config.Meeting.UserID),
		slog.String("role", s.config.Meeting.Role),
	)

	return nil
}

// markFailed releases the joined flag after a failed Join so a caller
// can retry
func (s *Session) markFailed() {
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()
}

// Leave tears the session down: outbound signaling stops first so no
// message refers to resources being released, then the capture
// pipeline, local devices, peer link, and finally the signaling
// channel itself. Safe to call more than once.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.leaving)
	s.mu.Unlock()

	s.logger.Info("Leaving meeting", slog.String("meeting_id", s.config.Meeting.MeetingID))

	// A pending manual request will never get its response now
	s.correlator.ClearManual()

	s.backend.Stop()
	s.pipeline.Drain()
	s.media.Stop()
	s.coordinator.Close()

	if err := s.client.Close(); err != nil {
		s.logger.Warn("Error closing signaling channel", slog.String("error", err.Error()))
	}
}

// RequestAssist issues a user-triggered assist request for a turn
func (s *Session) RequestAssist(turnID string, stage signal.Stage, text string) (string, error) {
	return s.correlator.RequestManual(turnID, stage, text)
}

// Correlator returns the session's assist correlator
func (s *Session) Correlator() *assist.Correlator {
	return s.correlator
}

// Done returns a channel closed when the signaling connection ends
func (s *Session) Done() <-chan struct{} {
	return s.client.Done()
}

// pushFrame is the capture sink: it hands each frame to the backend
// and never blocks
func (s *Session) pushFrame(frame []float32) {
	s.metrics.RecordFrameCaptured()
	if !s.backend.Push(frame) {
		s.metrics.RecordFrameDropped()
	}
}

// onSpeechBoundary mirrors VAD boundaries into metrics
func (s *Session) onSpeechBoundary(started bool) {
	if started {
		s.metrics.RecordSpeechStart()
	} else {
		s.metrics.RecordSpeechEnd()
	}
}

// sendSignal transmits a signaling message unless the session is
// already leaving
func (s *Session) sendSignal(msgType signal.MessageType, payload interface{}) {
	select {
	case <-s.leaving:
		return
	default:
	}

	s.client.Send(msgType, payload)
	s.metrics.RecordSignalSent(string(msgType))
}

// emitChunk transmits one flushed uplink batch
func (s *Session) emitChunk(chunk audio.Chunk) {
	s.metrics.RecordChunkFlushed(chunk.SampleCount, chunk.Forced)

	s.sendSignal(signal.TypeAudioChunk, signal.AudioChunk{
		MeetingID:      s.config.Meeting.MeetingID,
		UserID:         s.config.Meeting.UserID,
		ClientSentAtMs: chunk.ClientSentAt.UnixMilli(),
		SampleRate:     chunk.SampleRate,
		AudioData:      chunk.AudioData,
	})
}

// sendAssistRequest transmits a correlator-issued request and records
// it for latency measurement when the response arrives
func (s *Session) sendAssistRequest(req assist.Request) {
	s.mu.Lock()
	s.requests[req.RequestID] = req
	s.mu.Unlock()

	s.metrics.RecordAssistRequest(req.Origin)

	s.sendSignal(signal.TypeRequestAssist, signal.RequestAssist{
		MeetingID: s.config.Meeting.MeetingID,
		Text:      req.Text,
		UserID:    s.config.Meeting.UserID,
		Metadata: signal.AssistMetadata{
			RequestID:               req.RequestID,
			RequestOrigin:           req.Origin,
			TranscriptStage:         req.Stage,
			TurnID:                  req.TurnID,
			RequestedAtMs:           req.RequestedAt.UnixMilli(),
			SourceAudioStartMs:      req.SourceAudioStartMs,
			SourceTranscriptionAtMs: req.SourceTranscriptionAt.UnixMilli(),
		},
	})
}

// registerHandlers installs the inbound message dispatch table
func (s *Session) registerHandlers() {
	s.handle(signal.TypeJoinedMeeting, func(payload json.RawMessage) {
		var msg signal.JoinedMeeting
		if !s.decode(signal.TypeJoinedMeeting, payload, &msg) {
			return
		}
		s.coordinator.HandleJoinResult(msg)
	})

	s.handle(signal.TypeParticipantJoined, func(payload json.RawMessage) {
		var msg signal.ParticipantJoined
		if !s.decode(signal.TypeParticipantJoined, payload, &msg) {
			return
		}
		s.logger.Info("Participant joined", slog.String("user_id", msg.UserID))
	})

	s.handle(signal.TypeParticipantLeft, func(payload json.RawMessage) {
		var msg signal.ParticipantLeft
		if !s.decode(signal.TypeParticipantLeft, payload, &msg) {
			return
		}
		s.logger.Info("Participant left", slog.String("user_id", msg.UserID))
	})

	s.handle(signal.TypeOffer, func(payload json.RawMessage) {
		var msg signal.SessionDescription
		if !s.decode(signal.TypeOffer, payload, &msg) {
			return
		}
		s.coordinator.HandleOffer(msg)
	})

	s.handle(signal.TypeAnswer, func(payload json.RawMessage) {
		var msg signal.SessionDescription
		if !s.decode(signal.TypeAnswer, payload, &msg) {
			return
		}
		s.coordinator.HandleAnswer(msg)
	})

	s.handle(signal.TypeICECandidate, func(payload json.RawMessage) {
		var msg signal.ICECandidate
		if !s.decode(signal.TypeICECandidate, payload, &msg) {
			return
		}
		s.coordinator.HandleCandidate(msg)
	})

	s.handle(signal.TypeTranscription, func(payload json.RawMessage) {
		var msg signal.Transcription
		if !s.decode(signal.TypeTranscription, payload, &msg) {
			return
		}
		s.onTranscription(msg)
	})

	s.handle(signal.TypeAssistResponse, func(payload json.RawMessage) {
		var msg signal.AssistResponse
		if !s.decode(signal.TypeAssistResponse, payload, &msg) {
			return
		}
		outcome := s.correlator.OnResponse(msg)
		s.metrics.RecordAssistResponse(outcome.String())
	})

	s.handle(signal.TypeError, func(payload json.RawMessage) {
		var msg signal.ErrorMessage
		if !s.decode(signal.TypeError, payload, &msg) {
			return
		}
		s.logger.Error("Server error", slog.String("message", msg.Message))
	})
}

// handle registers one handler with a received-message metric
func (s *Session) handle(msgType signal.MessageType, fn signal.Handler) {
	s.client.Handle(msgType, func(payload json.RawMessage) {
		s.metrics.RecordSignalReceived(string(msgType))
		fn(payload)
	})
}

// decode unmarshals a payload, logging and dropping malformed ones
func (s *Session) decode(msgType signal.MessageType, payload json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		s.logger.Warn("Failed to decode payload",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// onTranscription records the capture-to-transcript latency and feeds
// the transcript into the correlator
func (s *Session) onTranscription(msg signal.Transcription) {
	if msg.ClientAudioStartMs > 0 {
		elapsed := time.Duration(time.Now().UnixMilli()-msg.ClientAudioStartMs) * time.Millisecond
		if elapsed > 0 {
			s.tracker.Record(latency.CaptureToTranscript, elapsed)
			s.metrics.RecordCaptureToTranscript(elapsed.Seconds())
		}
	}

	s.correlator.OnTranscript(msg)
}

// OnTranscriptUpdated implements assist.Listener
func (s *Session) OnTranscriptUpdated(entry assist.TranscriptEntry) {
	s.logger.Debug("Transcript updated",
		slog.String("turn_id", entry.TurnID),
		slog.String("stage", string(entry.Stage)),
		slog.Int("chars", len(entry.Text)),
	)
}

// OnSuggestionUpdated implements assist.Listener: an accepted response
// just landed on the display, so close out its latency measurements
func (s *Session) OnSuggestionUpdated(entry assist.Suggestion) {
	s.mu.Lock()
	req, ok := s.requests[entry.RequestID]
	if ok {
		delete(s.requests, entry.RequestID)
	}
	s.mu.Unlock()

	s.logger.Info("Suggestion updated",
		slog.String("turn_id", entry.TurnID),
		slog.String("stage", string(entry.Stage)),
		slog.String("request_id", entry.RequestID),
	)

	if !ok {
		return
	}

	now := time.Now()

	if elapsed := now.Sub(req.RequestedAt); elapsed > 0 {
		s.tracker.Record(latency.RequestToResponse, elapsed)
		s.metrics.RecordRequestToResponse(elapsed.Seconds())
	}

	if req.SourceAudioStartMs > 0 {
		elapsed := time.Duration(now.UnixMilli()-req.SourceAudioStartMs) * time.Millisecond
		if elapsed > 0 {
			s.tracker.Record(latency.CaptureToResponse, elapsed)
			s.metrics.RecordCaptureToResponse(elapsed.Seconds())
		}
	}
}

// OnManualTimeout implements assist.Listener
func (s *Session) OnManualTimeout(requestID string) {
	s.mu.Lock()
	delete(s.requests, requestID)
	s.mu.Unlock()

	s.metrics.RecordManualTimeout()
}

// GetStats returns aggregated statistics from all session components
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	joined := s.joined && !s.closed
	s.mu.Unlock()

	return Stats{
		Joined:    joined,
		MeetingID: s.config.Meeting.MeetingID,
		Signaling: s.client.GetStats(),
		Pipeline:  s.pipeline.GetStats(),
		Backend:   s.backend.DroppedFrames(),
		Peer:      s.coordinator.GetStats(),
		Assist:    s.correlator.GetStats(),
		Latency:   s.tracker.Snapshot(),
	}
}
