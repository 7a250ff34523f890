package assist

import (
	"sync"
	"time"

	"github.com/consultlink/meetclient/internal/signal"
)

// TranscriptEntry is one displayed transcript turn. Draft updates
// mutate the entry in place; a final update closes it.
type TranscriptEntry struct {
	TurnID             string       `json:"turn_id"`
	Stage              signal.Stage `json:"stage"`
	Text               string       `json:"text"`
	ClientAudioStartMs int64        `json:"client_audio_start_ms"`
	ReceivedAt         time.Time    `json:"received_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Suggestion is one displayed assist suggestion, keyed by (turn, stage)
type Suggestion struct {
	TurnID     string       `json:"turn_id"`
	Stage      signal.Stage `json:"stage"`
	Text       string       `json:"text"`
	Citations  []string     `json:"citations"`
	RequestID  string       `json:"request_id"`
	ReceivedAt time.Time    `json:"received_at"`
}

type suggestionKey struct {
	turnID string
	stage  signal.Stage
}

// Display is the presentation-facing store. Entries upsert by their
// identity key: a later message for the same key replaces fields in
// place rather than appending.
type Display struct {
	transcripts    map[string]*TranscriptEntry
	transcriptKeys []string // insertion order

	suggestions    map[suggestionKey]*Suggestion
	suggestionKeys []suggestionKey

	mu sync.RWMutex
}

// NewDisplay creates an empty display store
func NewDisplay() *Display {
	return &Display{
		transcripts: make(map[string]*TranscriptEntry),
		suggestions: make(map[suggestionKey]*Suggestion),
	}
}

// UpsertTranscript inserts or updates the entry for the turn and
// returns a copy of the stored entry
func (d *Display) UpsertTranscript(msg signal.Transcription, now time.Time) TranscriptEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.transcripts[msg.TurnID]
	if !ok {
		entry = &TranscriptEntry{
			TurnID:             msg.TurnID,
			ClientAudioStartMs: msg.ClientAudioStartMs,
			ReceivedAt:         now,
		}
		d.transcripts[msg.TurnID] = entry
		d.transcriptKeys = append(d.transcriptKeys, msg.TurnID)
	}

	entry.Stage = msg.TranscriptStage
	entry.Text = msg.Text
	entry.UpdatedAt = now

	return *entry
}

// UpsertSuggestion inserts or updates the suggestion for the response's
// (turn, stage) key and returns a copy of the stored entry
func (d *Display) UpsertSuggestion(msg signal.AssistResponse, now time.Time) Suggestion {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := suggestionKey{turnID: msg.TurnID, stage: msg.TranscriptStage}

	entry, ok := d.suggestions[key]
	if !ok {
		entry = &Suggestion{
			TurnID: msg.TurnID,
			Stage:  msg.TranscriptStage,
		}
		d.suggestions[key] = entry
		d.suggestionKeys = append(d.suggestionKeys, key)
	}

	entry.Text = msg.Suggestion
	entry.Citations = msg.Citations
	entry.RequestID = msg.RequestID
	entry.ReceivedAt = now

	return *entry
}

// Transcripts returns all transcript entries in arrival order
func (d *Display) Transcripts() []TranscriptEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]TranscriptEntry, 0, len(d.transcriptKeys))
	for _, key := range d.transcriptKeys {
		out = append(out, *d.transcripts[key])
	}
	return out
}

// Suggestions returns all suggestions in arrival order
func (d *Display) Suggestions() []Suggestion {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Suggestion, 0, len(d.suggestionKeys))
	for _, key := range d.suggestionKeys {
		out = append(out, *d.suggestions[key])
	}
	return out
}

// Transcript returns the entry for one turn, if present
func (d *Display) Transcript(turnID string) (TranscriptEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.transcripts[turnID]
	if !ok {
		return TranscriptEntry{}, false
	}
	return *entry, true
}

// SuggestionFor returns the suggestion for one (turn, stage) key
func (d *Display) SuggestionFor(turnID string, stage signal.Stage) (Suggestion, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.suggestions[suggestionKey{turnID: turnID, stage: stage}]
	if !ok {
		return Suggestion{}, false
	}
	return *entry, true
}
