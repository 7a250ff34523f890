package assist

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/consultlink/meetclient/internal/signal"
)

// correlatorHarness drives a correlator with a controllable clock and
// deterministic request IDs, capturing everything it sends
type correlatorHarness struct {
	c        *Correlator
	now      time.Time
	sent     []Request
	nextID   int
	timeouts []string
}

func (h *correlatorHarness) OnTranscriptUpdated(TranscriptEntry) {}
func (h *correlatorHarness) OnSuggestionUpdated(Suggestion)      {}
func (h *correlatorHarness) OnManualTimeout(requestID string) {
	h.timeouts = append(h.timeouts, requestID)
}

func (h *correlatorHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func newHarness(t *testing.T, cfg Config) *correlatorHarness {
	t.Helper()

	h := &correlatorHarness{now: time.Unix(1700000000, 0)}

	c, err := NewCorrelator(cfg, slog.Default(), func(req Request) {
		h.sent = append(h.sent, req)
	}, h)
	if err != nil {
		t.Fatalf("Failed to create correlator: %v", err)
	}

	c.now = func() time.Time { return h.now }
	c.newID = func() string {
		h.nextID++
		return fmt.Sprintf("req-%d", h.nextID)
	}

	h.c = c
	return h
}

func defaultConfig() Config {
	return Config{
		DraftCooldown:  2 * time.Second,
		MinGrowthChars: 10,
		ManualTimeout:  12 * time.Second,
	}
}

func draft(turnID, text string) signal.Transcription {
	return signal.Transcription{
		Text:               text,
		TranscriptStage:    signal.StageDraft,
		TurnID:             turnID,
		ClientAudioStartMs: 1700000000000,
	}
}

func final(turnID, text string) signal.Transcription {
	msg := draft(turnID, text)
	msg.TranscriptStage = signal.StageFinal
	return msg
}

// responseFor builds a response matching a previously sent request
func responseFor(req Request) signal.AssistResponse {
	return signal.AssistResponse{
		Suggestion:         "talk about " + req.Text,
		RequestID:          req.RequestID,
		TranscriptStage:    req.Stage,
		TurnID:             req.TurnID,
		RequestedAtMs:      req.RequestedAt.UnixMilli(),
		SourceAudioStartMs: req.SourceAudioStartMs,
	}
}

func TestNewCorrelatorValidation(t *testing.T) {
	send := func(Request) {}

	tests := []struct {
		name      string
		config    Config
		send      func(Request)
		expectErr bool
	}{
		{name: "valid", config: defaultConfig(), send: send, expectErr: false},
		{name: "nil send", config: defaultConfig(), send: nil, expectErr: true},
		{name: "zero cooldown", config: Config{MinGrowthChars: 10, ManualTimeout: time.Second}, send: send, expectErr: true},
		{name: "zero growth", config: Config{DraftCooldown: time.Second, ManualTimeout: time.Second}, send: send, expectErr: true},
		{name: "zero manual timeout", config: Config{DraftCooldown: time.Second, MinGrowthChars: 10}, send: send, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCorrelator(tt.config, slog.Default(), tt.send, nil)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestAutoDraftCooldownAndGrowth(t *testing.T) {
	h := newHarness(t, defaultConfig())

	// First draft: growth from empty exceeds the minimum
	h.c.OnTranscript(draft("turn-1", "hello there everyone"))
	if len(h.sent) != 1 {
		t.Fatalf("Expected 1 request after first draft, got %d", len(h.sent))
	}

	// Large growth inside the cooldown: suppressed
	h.c.OnTranscript(draft("turn-1", "hello there everyone, I wanted to ask about coverage"))
	if len(h.sent) != 1 {
		t.Fatalf("Expected cooldown to suppress the second draft, got %d requests", len(h.sent))
	}

	// Cooldown elapsed but growth too small and no sentence boundary
	h.advance(3 * time.Second)
	h.c.OnTranscript(draft("turn-1", "hello there everyone, ok"))
	if len(h.sent) != 1 {
		t.Fatalf("Expected small growth to be suppressed, got %d requests", len(h.sent))
	}

	// Cooldown elapsed and the text ends a sentence
	h.c.OnTranscript(draft("turn-1", "hello there, right."))
	if len(h.sent) != 2 {
		t.Fatalf("Expected sentence boundary to trigger a request, got %d", len(h.sent))
	}

	if h.sent[1].Origin != signal.OriginAutoDraft {
		t.Errorf("Expected origin %q, got %q", signal.OriginAutoDraft, h.sent[1].Origin)
	}
}

func TestAutoFinalExactlyOncePerTurn(t *testing.T) {
	h := newHarness(t, defaultConfig())

	h.c.OnTranscript(final("turn-1", "the final text."))
	h.c.OnTranscript(final("turn-1", "the final text, revised."))

	finals := 0
	for _, req := range h.sent {
		if req.Origin == signal.OriginAutoFinal {
			finals++
		}
	}

	if finals != 1 {
		t.Errorf("Expected exactly one auto-final request per turn, got %d", finals)
	}

	// A different turn gets its own final request
	h.c.OnTranscript(final("turn-2", "another turn."))
	if got := h.c.GetStats().FinalRequests; got != 2 {
		t.Errorf("Expected 2 final requests across turns, got %d", got)
	}
}

func TestDuplicateResponseDropped(t *testing.T) {
	h := newHarness(t, defaultConfig())

	h.c.OnTranscript(final("turn-1", "done."))
	resp := responseFor(h.sent[0])

	if got := h.c.OnResponse(resp); got != OutcomeAccepted {
		t.Fatalf("Expected first response accepted, got %s", got)
	}

	if got := h.c.OnResponse(resp); got != OutcomeDuplicate {
		t.Errorf("Expected duplicate response dropped, got %s", got)
	}

	stats := h.c.GetStats()
	if stats.Accepted != 1 || stats.DropDuplicate != 1 {
		t.Errorf("Expected 1 accepted and 1 duplicate, got %+v", stats)
	}
}

func TestStaleFinalResponseDropped(t *testing.T) {
	h := newHarness(t, defaultConfig())

	// Two final requests; the second advances the watermark
	h.c.OnTranscript(final("turn-1", "first question."))
	h.advance(5 * time.Second)
	h.c.OnTranscript(final("turn-2", "second question."))

	if len(h.sent) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(h.sent))
	}

	// The older response arrives after the newer request
	if got := h.c.OnResponse(responseFor(h.sent[0])); got != OutcomeStale {
		t.Errorf("Expected stale final response dropped, got %s", got)
	}

	if got := h.c.OnResponse(responseFor(h.sent[1])); got != OutcomeAccepted {
		t.Errorf("Expected current response accepted, got %s", got)
	}
}

func TestEqualTimestampDifferentIDSuperseded(t *testing.T) {
	h := newHarness(t, defaultConfig())

	// Two final requests issued at the same instant
	h.c.OnTranscript(final("turn-1", "first."))
	h.c.OnTranscript(final("turn-2", "second."))

	if len(h.sent) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(h.sent))
	}

	// Same requestedAt as the watermark but a different request ID
	if got := h.c.OnResponse(responseFor(h.sent[0])); got != OutcomeSuperseded {
		t.Errorf("Expected superseded response dropped, got %s", got)
	}

	if got := h.c.OnResponse(responseFor(h.sent[1])); got != OutcomeAccepted {
		t.Errorf("Expected watermark response accepted, got %s", got)
	}
}

func TestDraftResponsesSkipWatermark(t *testing.T) {
	h := newHarness(t, defaultConfig())

	// A draft request, then a newer final request moving the watermark
	h.c.OnTranscript(draft("turn-1", "a long enough draft text"))
	h.advance(5 * time.Second)
	h.c.OnTranscript(final("turn-2", "newer question."))

	// The old draft response still lands: drafts upsert by (turn, stage)
	if got := h.c.OnResponse(responseFor(h.sent[0])); got != OutcomeAccepted {
		t.Errorf("Expected draft response accepted despite watermark, got %s", got)
	}

	if _, ok := h.c.Display().SuggestionFor("turn-1", signal.StageDraft); !ok {
		t.Error("Expected draft suggestion on display")
	}
}

func TestInvalidResponseRejected(t *testing.T) {
	h := newHarness(t, defaultConfig())

	if got := h.c.OnResponse(signal.AssistResponse{TurnID: "turn-1", TranscriptStage: signal.StageFinal}); got != OutcomeInvalid {
		t.Errorf("Expected invalid response rejected, got %s", got)
	}
}

func TestManualSinglePending(t *testing.T) {
	h := newHarness(t, defaultConfig())

	requestID, err := h.c.RequestManual("turn-1", signal.StageFinal, "question text")
	if err != nil {
		t.Fatalf("Failed to issue manual request: %v", err)
	}

	if _, err := h.c.RequestManual("turn-1", signal.StageFinal, "again"); !errors.Is(err, ErrManualPending) {
		t.Errorf("Expected ErrManualPending, got %v", err)
	}

	// The matching response clears the pending slot
	resp := responseFor(h.sent[len(h.sent)-1])
	if resp.RequestID != requestID {
		t.Fatalf("Expected last sent request to be the manual one")
	}
	if got := h.c.OnResponse(resp); got != OutcomeAccepted {
		t.Fatalf("Expected manual response accepted, got %s", got)
	}

	if h.c.ManualPending() {
		t.Error("Expected manual slot cleared after response")
	}

	if _, err := h.c.RequestManual("turn-1", signal.StageFinal, "next"); err != nil {
		t.Errorf("Expected new manual request after resolution, got %v", err)
	}
}

func TestManualTimeout(t *testing.T) {
	cfg := defaultConfig()
	cfg.ManualTimeout = 20 * time.Millisecond

	h := newHarness(t, cfg)

	requestID, err := h.c.RequestManual("turn-1", signal.StageFinal, "question")
	if err != nil {
		t.Fatalf("Failed to issue manual request: %v", err)
	}

	// The timer runs on the wall clock
	time.Sleep(100 * time.Millisecond)

	if h.c.ManualPending() {
		t.Error("Expected manual slot cleared after timeout")
	}

	if len(h.timeouts) != 1 || h.timeouts[0] != requestID {
		t.Errorf("Expected timeout notification for %s, got %v", requestID, h.timeouts)
	}

	if got := h.c.GetStats().ManualTimeouts; got != 1 {
		t.Errorf("Expected 1 manual timeout, got %d", got)
	}
}

func TestClearManual(t *testing.T) {
	h := newHarness(t, defaultConfig())

	if _, err := h.c.RequestManual("turn-1", signal.StageFinal, "question"); err != nil {
		t.Fatalf("Failed to issue manual request: %v", err)
	}

	h.c.ClearManual()

	if h.c.ManualPending() {
		t.Error("Expected manual slot cleared")
	}

	if len(h.timeouts) != 0 {
		t.Errorf("Expected no timeout notification after explicit clear, got %v", h.timeouts)
	}
}

func TestInvalidTranscriptionIgnored(t *testing.T) {
	h := newHarness(t, defaultConfig())

	h.c.OnTranscript(signal.Transcription{Text: "no turn id", TranscriptStage: signal.StageFinal})

	if len(h.sent) != 0 {
		t.Errorf("Expected no requests for invalid transcription, got %d", len(h.sent))
	}
}
