package assist

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consultlink/meetclient/internal/signal"
)

// ErrManualPending is returned when a manual request is attempted
// while another manual request is still awaiting its response
var ErrManualPending = errors.New("a manual assist request is already pending")

// Request is an assist request issued by the correlator
type Request struct {
	RequestID             string
	TurnID                string
	Stage                 signal.Stage
	Origin                string
	Text                  string
	RequestedAt           time.Time
	SourceAudioStartMs    int64
	SourceTranscriptionAt time.Time
}

// Outcome classifies how an inbound response was resolved
type Outcome int

// Response outcomes
const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeStale
	OutcomeSuperseded
	OutcomeInvalid
)

// String returns a human-readable outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeStale:
		return "stale"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeInvalid:
		return "invalid"
	}
	return fmt.Sprintf("unknown(%d)", int(o))
}

// Config contains assist-request policy configuration
type Config struct {
	DraftCooldown  time.Duration
	MinGrowthChars int
	ManualTimeout  time.Duration
}

// Listener receives display updates from the correlator. Callbacks run
// on the correlator's dispatch path and must not block.
type Listener interface {
	OnTranscriptUpdated(entry TranscriptEntry)
	OnSuggestionUpdated(entry Suggestion)
	OnManualTimeout(requestID string)
}

// NopListener is a Listener that ignores all updates
type NopListener struct{}

func (NopListener) OnTranscriptUpdated(TranscriptEntry) {}
func (NopListener) OnSuggestionUpdated(Suggestion)      {}
func (NopListener) OnManualTimeout(string)              {}

// turnState tracks per-turn request history
type turnState struct {
	lastDraftText  string
	lastDraftAt    time.Time
	finalRequested bool
	audioStartMs   int64
}

// manualState tracks the single allowed pending manual request
type manualState struct {
	requestID string
	timer     *time.Timer
}

// watermark is the most recent request's identity, used to reject
// superseded final-stage responses
type watermark struct {
	requestID     string
	requestedAtMs int64
	valid         bool
}

// Correlator decides when to issue assist requests from transcript
// activity and which asynchronous responses are valid to display
type Correlator struct {
	config   Config
	logger   *slog.Logger
	send     func(Request)
	listener Listener

	// Time and ID sources; replaced in tests
	now   func() time.Time
	newID func() string

	turns     map[string]*turnState
	seen      map[string]bool
	watermark watermark
	manual    *manualState

	display *Display

	// Statistics
	draftRequests  uint64
	finalRequests  uint64
	manualRequests uint64
	accepted       uint64
	dropDuplicate  uint64
	dropStale      uint64
	dropSuperseded uint64
	manualTimeouts uint64

	mu sync.Mutex
}

// Stats represents correlator statistics
type Stats struct {
	DraftRequests  uint64 `json:"draft_requests"`
	FinalRequests  uint64 `json:"final_requests"`
	ManualRequests uint64 `json:"manual_requests"`
	Accepted       uint64 `json:"accepted"`
	DropDuplicate  uint64 `json:"drop_duplicate"`
	DropStale      uint64 `json:"drop_stale"`
	DropSuperseded uint64 `json:"drop_superseded"`
	ManualTimeouts uint64 `json:"manual_timeouts"`
	ManualPending  bool   `json:"manual_pending"`
}

// NewCorrelator creates a new turn and assist correlator. The send
// callback transmits a request over the signaling channel.
func NewCorrelator(config Config, logger *slog.Logger, send func(Request), listener Listener) (*Correlator, error) {
	if send == nil {
		return nil, fmt.Errorf("send callback cannot be nil")
	}

	if config.DraftCooldown <= 0 {
		return nil, fmt.Errorf("draft cooldown must be positive, got %s", config.DraftCooldown)
	}

	if config.MinGrowthChars < 1 {
		return nil, fmt.Errorf("min growth chars must be at least 1, got %d", config.MinGrowthChars)
	}

	if config.ManualTimeout <= 0 {
		return nil, fmt.Errorf("manual timeout must be positive, got %s", config.ManualTimeout)
	}

	if listener == nil {
		listener = NopListener{}
	}

	return &Correlator{
		config:   config,
		logger:   logger,
		send:     send,
		listener: listener,
		now:      time.Now,
		newID:    uuid.NewString,
		turns:    make(map[string]*turnState),
		seen:     make(map[string]bool),
		display:  NewDisplay(),
	}, nil
}

// OnTranscript processes one inbound transcript update: it upserts the
// displayed entry for the turn and applies the auto-request policies.
func (c *Correlator) OnTranscript(msg signal.Transcription) {
	if err := msg.Validate(); err != nil {
		c.logger.Warn("Ignoring invalid transcription", slog.String("error", err.Error()))
		return
	}

	now := c.now()
	entry := c.display.UpsertTranscript(msg, now)

	c.mu.Lock()

	turn, ok := c.turns[msg.TurnID]
	if !ok {
		turn = &turnState{audioStartMs: msg.ClientAudioStartMs}
		c.turns[msg.TurnID] = turn
	}

	var req *Request
	switch msg.TranscriptStage {
	case signal.StageDraft:
		if c.shouldRequestDraft(turn, msg.Text, now) {
			req = c.issueLocked(signal.OriginAutoDraft, msg.TurnID, signal.StageDraft, msg.Text, turn, now)
			turn.lastDraftText = msg.Text
			turn.lastDraftAt = now
			c.draftRequests++
		}

	case signal.StageFinal:
		if !turn.finalRequested {
			turn.finalRequested = true
			req = c.issueLocked(signal.OriginAutoFinal, msg.TurnID, signal.StageFinal, msg.Text, turn, now)
			c.finalRequests++
		}
	}

	c.mu.Unlock()

	c.listener.OnTranscriptUpdated(entry)

	if req != nil {
		c.send(*req)
	}
}

// shouldRequestDraft applies the auto-draft policy: the per-turn
// cooldown must have elapsed AND the text must have grown by the
// minimum delta or end at a sentence boundary. Caller holds c.mu.
func (c *Correlator) shouldRequestDraft(turn *turnState, text string, now time.Time) bool {
	if !turn.lastDraftAt.IsZero() && now.Sub(turn.lastDraftAt) < c.config.DraftCooldown {
		return false
	}

	growth := len(text) - len(turn.lastDraftText)
	if growth >= c.config.MinGrowthChars {
		return true
	}

	return endsAtSentenceBoundary(text)
}

// endsAtSentenceBoundary reports whether the text ends a sentence
func endsAtSentenceBoundary(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n")
	if trimmed == "" {
		return false
	}

	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// RequestManual issues a user-triggered assist request. Only one
// manual request may be pending; the pending state clears on a
// matching response or after the configured timeout, whichever first.
func (c *Correlator) RequestManual(turnID string, stage signal.Stage, text string) (string, error) {
	c.mu.Lock()

	if c.manual != nil {
		c.mu.Unlock()
		return "", ErrManualPending
	}

	now := c.now()
	turn, ok := c.turns[turnID]
	if !ok {
		turn = &turnState{}
		c.turns[turnID] = turn
	}

	req := c.issueLocked(signal.OriginManual, turnID, stage, text, turn, now)
	c.manualRequests++

	requestID := req.RequestID
	c.manual = &manualState{
		requestID: requestID,
		timer: time.AfterFunc(c.config.ManualTimeout, func() {
			c.expireManual(requestID)
		}),
	}

	c.mu.Unlock()

	c.send(*req)

	return requestID, nil
}

// expireManual clears the pending manual request after its timeout
func (c *Correlator) expireManual(requestID string) {
	c.mu.Lock()
	if c.manual == nil || c.manual.requestID != requestID {
		c.mu.Unlock()
		return
	}
	c.manual = nil
	c.manualTimeouts++
	c.mu.Unlock()

	c.logger.Warn("Manual assist request timed out", slog.String("request_id", requestID))

	c.listener.OnManualTimeout(requestID)
}

// ClearManual cancels any pending manual request without waiting for a
// response. Used during session teardown.
func (c *Correlator) ClearManual() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manual != nil {
		c.manual.timer.Stop()
		c.manual = nil
	}
}

// ManualPending reports whether a manual request is awaiting response
func (c *Correlator) ManualPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual != nil
}

// issueLocked builds a request and advances the watermark. Caller
// holds c.mu and is responsible for sending the returned request.
func (c *Correlator) issueLocked(origin, turnID string, stage signal.Stage, text string, turn *turnState, now time.Time) *Request {
	req := &Request{
		RequestID:             c.newID(),
		TurnID:                turnID,
		Stage:                 stage,
		Origin:                origin,
		Text:                  text,
		RequestedAt:           now,
		SourceAudioStartMs:    turn.audioStartMs,
		SourceTranscriptionAt: now,
	}

	c.watermark = watermark{
		requestID:     req.RequestID,
		requestedAtMs: now.UnixMilli(),
		valid:         true,
	}

	c.logger.Debug("Issuing assist request",
		slog.String("request_id", req.RequestID),
		slog.String("turn_id", turnID),
		slog.String("origin", origin),
		slog.String("stage", string(stage)),
	)

	return req
}

// OnResponse applies the staleness rule to one inbound response and,
// when it passes, upserts the displayed suggestion for its turn/stage.
func (c *Correlator) OnResponse(msg signal.AssistResponse) Outcome {
	if err := msg.Validate(); err != nil {
		c.logger.Warn("Ignoring invalid assist response", slog.String("error", err.Error()))
		return OutcomeInvalid
	}

	c.mu.Lock()

	if c.seen[msg.RequestID] {
		c.dropDuplicate++
		c.mu.Unlock()

		c.logger.Debug("Dropping duplicate assist response", slog.String("request_id", msg.RequestID))
		return OutcomeDuplicate
	}
	c.seen[msg.RequestID] = true

	// A matching response resolves the pending manual request even if
	// the response itself turns out to be stale
	if c.manual != nil && c.manual.requestID == msg.RequestID {
		c.manual.timer.Stop()
		c.manual = nil
	}

	// Final-stage responses must not overwrite the result of a newer
	// request; drafts are keyed by (turn, stage) and simply upsert
	if msg.TranscriptStage == signal.StageFinal && c.watermark.valid {
		mark := c.watermark

		if msg.RequestedAtMs < mark.requestedAtMs {
			c.dropStale++
			c.mu.Unlock()

			c.logger.Info("Dropping stale assist response",
				slog.String("request_id", msg.RequestID),
				slog.Int64("requested_at_ms", msg.RequestedAtMs),
				slog.Int64("watermark_ms", mark.requestedAtMs),
			)
			return OutcomeStale
		}

		if msg.RequestedAtMs == mark.requestedAtMs && msg.RequestID != mark.requestID {
			c.dropSuperseded++
			c.mu.Unlock()

			c.logger.Info("Dropping superseded assist response",
				slog.String("request_id", msg.RequestID),
				slog.String("watermark_request_id", mark.requestID),
			)
			return OutcomeSuperseded
		}
	}

	c.accepted++
	now := c.now()
	c.mu.Unlock()

	entry := c.display.UpsertSuggestion(msg, now)
	c.listener.OnSuggestionUpdated(entry)

	return OutcomeAccepted
}

// Display returns the correlator's display store
func (c *Correlator) Display() *Display {
	return c.display
}

// GetStats returns current correlator statistics
func (c *Correlator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		DraftRequests:  c.draftRequests,
		FinalRequests:  c.finalRequests,
		ManualRequests: c.manualRequests,
		Accepted:       c.accepted,
		DropDuplicate:  c.dropDuplicate,
		DropStale:      c.dropStale,
		DropSuperseded: c.dropSuperseded,
		ManualTimeouts: c.manualTimeouts,
		ManualPending:  c.manual != nil,
	}
}
