package assist

import (
	"testing"
	"time"

	"github.com/consultlink/meetclient/internal/signal"
)

func TestUpsertTranscriptReplacesInPlace(t *testing.T) {
	d := NewDisplay()
	now := time.Unix(1700000000, 0)

	d.UpsertTranscript(signal.Transcription{
		TurnID:          "turn-1",
		TranscriptStage: signal.StageDraft,
		Text:            "partial",
	}, now)

	d.UpsertTranscript(signal.Transcription{
		TurnID:          "turn-1",
		TranscriptStage: signal.StageFinal,
		Text:            "partial, complete.",
	}, now.Add(time.Second))

	entries := d.Transcripts()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry after upsert, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Stage != signal.StageFinal {
		t.Errorf("Expected stage final, got %s", entry.Stage)
	}
	if entry.Text != "partial, complete." {
		t.Errorf("Expected updated text, got %q", entry.Text)
	}
	if !entry.UpdatedAt.After(entry.ReceivedAt) {
		t.Error("Expected UpdatedAt to advance past ReceivedAt")
	}
}

func TestTranscriptsPreserveArrivalOrder(t *testing.T) {
	d := NewDisplay()
	now := time.Unix(1700000000, 0)

	for _, turnID := range []string{"turn-b", "turn-a", "turn-c"} {
		d.UpsertTranscript(signal.Transcription{
			TurnID:          turnID,
			TranscriptStage: signal.StageDraft,
			Text:            "text",
		}, now)
	}

	// Updating the first turn must not move it
	d.UpsertTranscript(signal.Transcription{
		TurnID:          "turn-b",
		TranscriptStage: signal.StageFinal,
		Text:            "updated",
	}, now)

	entries := d.Transcripts()
	expected := []string{"turn-b", "turn-a", "turn-c"}
	for i, turnID := range expected {
		if entries[i].TurnID != turnID {
			t.Errorf("Position %d: expected %s, got %s", i, turnID, entries[i].TurnID)
		}
	}
}

func TestSuggestionsKeyedByTurnAndStage(t *testing.T) {
	d := NewDisplay()
	now := time.Unix(1700000000, 0)

	d.UpsertSuggestion(signal.AssistResponse{
		Suggestion:      "draft tip",
		RequestID:       "req-1",
		TranscriptStage: signal.StageDraft,
		TurnID:          "turn-1",
	}, now)

	// Same turn, different stage: a separate entry
	d.UpsertSuggestion(signal.AssistResponse{
		Suggestion:      "final tip",
		RequestID:       "req-2",
		TranscriptStage: signal.StageFinal,
		TurnID:          "turn-1",
	}, now)

	// Same key: replaces in place
	d.UpsertSuggestion(signal.AssistResponse{
		Suggestion:      "better draft tip",
		RequestID:       "req-3",
		TranscriptStage: signal.StageDraft,
		TurnID:          "turn-1",
	}, now)

	if got := len(d.Suggestions()); got != 2 {
		t.Fatalf("Expected 2 suggestions, got %d", got)
	}

	entry, ok := d.SuggestionFor("turn-1", signal.StageDraft)
	if !ok {
		t.Fatal("Expected draft suggestion present")
	}
	if entry.Text != "better draft tip" || entry.RequestID != "req-3" {
		t.Errorf("Expected replaced draft suggestion, got %+v", entry)
	}
}

func TestLookupMissing(t *testing.T) {
	d := NewDisplay()

	if _, ok := d.Transcript("missing"); ok {
		t.Error("Expected missing transcript lookup to fail")
	}

	if _, ok := d.SuggestionFor("missing", signal.StageFinal); ok {
		t.Error("Expected missing suggestion lookup to fail")
	}
}
