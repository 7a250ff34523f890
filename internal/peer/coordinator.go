package peer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/consultlink/meetclient/internal/signal"
)

// State represents the peer link state machine
type State int

// Peer link states
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Config contains peer coordinator configuration
type Config struct {
	MeetingID    string
	TargetUserID string
	STUNServers  []string
	OfferDelay   time.Duration // grace delay before the initiator offers
}

// Coordinator negotiates and maintains exactly one peer media link.
// The link is owned exclusively by the coordinator and is replaced
// wholesale (old closed) on renegotiation, never partially mutated.
type Coordinator struct {
	config Config
	logger *slog.Logger
	send   func(msgType signal.MessageType, payload interface{})

	pc          *webrtc.PeerConnection
	audioTrack  webrtc.TrackLocal
	videoTrack  webrtc.TrackLocal
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	state       State
	makingOffer bool
	ignoreOffer bool
	offerTimer  *time.Timer

	onRemoteTrack func(*webrtc.TrackRemote)

	// Statistics
	offersSent        uint64
	answersSent       uint64
	candidatesSent    uint64
	candidatesApplied uint64
	negotiationErrors uint64
	linksReplaced     uint64

	mu sync.Mutex
}

// Stats represents coordinator statistics
type Stats struct {
	State             string `json:"state"`
	OffersSent        uint64 `json:"offers_sent"`
	AnswersSent       uint64 `json:"answers_sent"`
	CandidatesSent    uint64 `json:"candidates_sent"`
	CandidatesApplied uint64 `json:"candidates_applied"`
	NegotiationErrors uint64 `json:"negotiation_errors"`
	LinksReplaced     uint64 `json:"links_replaced"`
}

// NewCoordinator creates a new peer connection coordinator. The send
// callback transmits signaling payloads to the coordination server.
func NewCoordinator(config Config, logger *slog.Logger, send func(signal.MessageType, interface{})) *Coordinator {
	return &Coordinator{
		config: config,
		logger: logger,
		send:   send,
		state:  StateIdle,
	}
}

// SetLocalTracks provides the outbound media tracks added to every
// peer link the coordinator creates
func (c *Coordinator) SetLocalTracks(audio, video webrtc.TrackLocal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.audioTrack = audio
	c.videoTrack = video
}

// OnRemoteTrack registers a callback for inbound media tracks
func (c *Coordinator) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onRemoteTrack = fn
}

// HandleJoinResult reacts to the server's join acknowledgement. When
// the participant list is non-empty the local client is the initiator
// and creates an offer after a short grace delay.
func (c *Coordinator) HandleJoinResult(msg signal.JoinedMeeting) {
	if len(msg.Participants) == 0 {
		c.logger.Info("First in meeting, waiting for peer")
		return
	}

	c.logger.Info("Existing participants found, acting as initiator",
		slog.Int("participants", len(msg.Participants)),
		slog.Duration("offer_delay", c.config.OfferDelay),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}

	if c.offerTimer != nil {
		c.offerTimer.Stop()
	}
	c.offerTimer = time.AfterFunc(c.config.OfferDelay, c.startOffer)
}

// startOffer creates a fresh link and sends an offer
func (c *Coordinator) startOffer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}

	if err := c.newLinkLocked(); err != nil {
		c.recordNegotiationErrorLocked("failed to create peer link", err)
		return
	}

	c.makingOffer = true
	defer func() { c.makingOffer = false }()

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.recordNegotiationErrorLocked("failed to create offer", err)
		return
	}

	if err := c.pc.SetLocalDescription(offer); err != nil {
		c.recordNegotiationErrorLocked("failed to set local offer", err)
		return
	}

	c.state = StateConnecting
	c.offersSent++

	c.send(signal.TypeOffer, signal.SessionDescription{
		MeetingID:    c.config.MeetingID,
		TargetUserID: c.config.TargetUserID,
		Signal:       signal.SDPSignal{Type: "offer", SDP: offer.SDP},
	})

	c.logger.Info("Offer sent", slog.String("target", c.config.TargetUserID))
}

// HandleOffer reacts to a remote offer: the local client becomes the
// responder, applies the description, and answers. An offer received
// while the link is connected starts a wholesale renegotiation.
func (c *Coordinator) HandleOffer(msg signal.SessionDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}

	// Glare: both sides offered at once. The initiator keeps its own
	// offer and ignores the colliding one.
	if c.makingOffer {
		c.ignoreOffer = true
		c.logger.Warn("Ignoring colliding offer while making our own")
		return
	}
	c.ignoreOffer = false

	if c.pc != nil && c.state == StateConnected {
		c.logger.Info("Renegotiation offer received, replacing peer link")
		c.closeLinkLocked()
		c.linksReplaced++
	}

	if c.pc == nil {
		if err := c.newLinkLocked(); err != nil {
			c.recordNegotiationErrorLocked("failed to create peer link", err)
			return
		}
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.Signal.SDP}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		c.recordNegotiationErrorLocked("failed to apply remote offer", err)
		return
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		c.recordNegotiationErrorLocked("failed to create answer", err)
		return
	}

	if err := c.pc.SetLocalDescription(answer); err != nil {
		c.recordNegotiationErrorLocked("failed to set local answer", err)
		return
	}

	c.state = StateConnecting
	c.answersSent++

	c.send(signal.TypeAnswer, signal.SessionDescription{
		MeetingID:    c.config.MeetingID,
		TargetUserID: c.config.TargetUserID,
		Signal:       signal.SDPSignal{Type: "answer", SDP: answer.SDP},
	})

	c.logger.Info("Answer sent", slog.String("target", c.config.TargetUserID))
}

// HandleAnswer applies a remote answer to the current link
func (c *Coordinator) HandleAnswer(msg signal.SessionDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc == nil || c.state == StateClosed {
		c.logger.Warn("Answer received without an active peer link")
		return
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.Signal.SDP}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		c.recordNegotiationErrorLocked("failed to apply remote answer", err)
	}
}

// HandleCandidate applies a remote ICE candidate to the current link
func (c *Coordinator) HandleCandidate(msg signal.ICECandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc == nil || c.state == StateClosed {
		c.logger.Debug("Dropping candidate without an active peer link")
		return
	}

	if c.ignoreOffer {
		c.logger.Debug("Dropping candidate for ignored offer")
		return
	}

	if err := c.pc.AddICECandidate(msg.Signal.Candidate); err != nil {
		c.recordNegotiationErrorLocked("failed to apply remote candidate", err)
		return
	}

	c.candidatesApplied++
}

// ReplaceOutboundTrack swaps the outbound sender's track in place
// without renegotiation. Kind is "audio" or "video".
func (c *Coordinator) ReplaceOutboundTrack(kind string, track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sender *webrtc.RTPSender
	switch kind {
	case "audio":
		sender = c.audioSender
		c.audioTrack = track
	case "video":
		sender = c.videoSender
		c.videoTrack = track
	default:
		return fmt.Errorf("unknown track kind: %q", kind)
	}

	if sender == nil {
		return fmt.Errorf("no active %s sender to replace", kind)
	}

	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("failed to replace %s track: %w", kind, err)
	}

	c.logger.Info("Outbound track replaced", slog.String("kind", kind))
	return nil
}

// newLinkLocked builds a fresh peer connection with the local tracks
// attached, closing any previous link first. Caller holds c.mu.
func (c *Coordinator) newLinkLocked() error {
	if c.pc != nil {
		c.closeLinkLocked()
		c.linksReplaced++
	}

	iceServers := make([]webrtc.ICEServer, 0, len(c.config.STUNServers))
	if len(c.config.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: c.config.STUNServers})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	if c.audioTrack != nil {
		sender, err := pc.AddTrack(c.audioTrack)
		if err != nil {
			pc.Close()
			return fmt.Errorf("failed to add audio track: %w", err)
		}
		c.audioSender = sender
	}

	if c.videoTrack != nil {
		sender, err := pc.AddTrack(c.videoTrack)
		if err != nil {
			pc.Close()
			return fmt.Errorf("failed to add video track: %w", err)
		}
		c.videoSender = sender
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}

		c.mu.Lock()
		c.candidatesSent++
		c.mu.Unlock()

		c.send(signal.TypeICECandidate, signal.ICECandidate{
			MeetingID:    c.config.MeetingID,
			TargetUserID: c.config.TargetUserID,
			Signal:       signal.CandidateSignal{Candidate: candidate.ToJSON()},
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.handleConnectionStateChange(pc, state)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.mu.Lock()
		onRemoteTrack := c.onRemoteTrack
		c.mu.Unlock()

		c.logger.Info("Remote track received",
			slog.String("kind", track.Kind().String()),
			slog.String("id", track.ID()),
		)

		if onRemoteTrack != nil {
			onRemoteTrack(track)
		}
	})

	c.pc = pc
	return nil
}

// handleConnectionStateChange reacts to link state transitions.
// Unexpected termination nulls the reference so a fresh negotiation
// can happen on rejoin.
func (c *Coordinator) handleConnectionStateChange(pc *webrtc.PeerConnection, state webrtc.PeerConnectionState) {
	c.logger.Info("Peer link state changed", slog.String("state", state.String()))

	c.mu.Lock()
	defer c.mu.Unlock()

	// A stale callback from a link that has already been replaced
	if c.pc != pc {
		return
	}

	switch state {
	case webrtc.PeerConnectionStateConnected:
		if c.state != StateClosed {
			c.state = StateConnected
		}

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		if c.state != StateClosed {
			c.logger.Warn("Peer link terminated unexpectedly",
				slog.String("state", state.String()),
			)
			c.pc = nil
			c.audioSender = nil
			c.videoSender = nil
			c.state = StateIdle
		}
	}
}

// closeLinkLocked tears down the current link. Caller holds c.mu.
func (c *Coordinator) closeLinkLocked() {
	if c.pc == nil {
		return
	}

	if err := c.pc.Close(); err != nil {
		c.logger.Warn("Error closing peer link", slog.String("error", err.Error()))
	}

	c.pc = nil
	c.audioSender = nil
	c.videoSender = nil
}

// recordNegotiationErrorLocked logs a non-fatal negotiation failure.
// The session continues without a working link until the next
// negotiation opportunity. Caller holds c.mu.
func (c *Coordinator) recordNegotiationErrorLocked(msg string, err error) {
	c.negotiationErrors++
	c.logger.Error("Negotiation error: "+msg, slog.String("error", err.Error()))
}

// Close tears down the coordinator and its link. Safe to call twice.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}

	if c.offerTimer != nil {
		c.offerTimer.Stop()
		c.offerTimer = nil
	}

	c.closeLinkLocked()
	c.state = StateClosed
}

// State returns the current link state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetStats returns current coordinator statistics
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		State:             c.state.String(),
		OffersSent:        c.offersSent,
		AnswersSent:       c.answersSent,
		CandidatesSent:    c.candidatesSent,
		CandidatesApplied: c.candidatesApplied,
		NegotiationErrors: c.negotiationErrors,
		LinksReplaced:     c.linksReplaced,
	}
}
