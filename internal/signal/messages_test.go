package signal

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeTranscription, Transcription{
		Text:               "hello there",
		TranscriptStage:    StageDraft,
		TurnID:             "turn-1",
		ClientAudioStartMs: 1700000000000,
	})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v", err)
	}

	if decoded.Type != TypeTranscription {
		t.Errorf("Expected type %s, got %s", TypeTranscription, decoded.Type)
	}

	var msg Transcription
	if err := decoded.Decode(&msg); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}

	if msg.Text != "hello there" || msg.TurnID != "turn-1" {
		t.Errorf("Payload fields lost in round trip: %+v", msg)
	}
}

func TestEnvelopeFieldNames(t *testing.T) {
	// The coordination protocol uses camelCase keys on the wire
	env, err := NewEnvelope(TypeAudioChunk, AudioChunk{
		MeetingID:      "m-1",
		UserID:         "u-1",
		ClientSentAtMs: 123,
		SampleRate:     48000,
		AudioData:      "AAAA",
	})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(env.Payload, &raw); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}

	for _, key := range []string{"meetingId", "userId", "clientSentAtMs", "sampleRate", "audioData"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected wire key %q in payload", key)
		}
	}
}

func TestIsValidMessageType(t *testing.T) {
	valid := []MessageType{
		TypeJoinMeeting, TypeJoinedMeeting, TypeOffer, TypeAnswer,
		TypeICECandidate, TypeAudioChunk, TypeTranscription,
		TypeRequestAssist, TypeAssistResponse, TypeError,
	}
	for _, mt := range valid {
		if !IsValidMessageType(mt) {
			t.Errorf("Expected %s to be valid", mt)
		}
	}

	if IsValidMessageType("bogus-type") {
		t.Error("Expected bogus-type to be invalid")
	}
}

func TestTranscriptionValidate(t *testing.T) {
	tests := []struct {
		name      string
		msg       Transcription
		expectErr bool
	}{
		{
			name:      "valid draft",
			msg:       Transcription{TurnID: "turn-1", TranscriptStage: StageDraft},
			expectErr: false,
		},
		{
			name:      "missing turn id",
			msg:       Transcription{TranscriptStage: StageFinal},
			expectErr: true,
		},
		{
			name:      "bad stage",
			msg:       Transcription{TurnID: "turn-1", TranscriptStage: "partial"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestAssistResponseValidate(t *testing.T) {
	tests := []struct {
		name      string
		msg       AssistResponse
		expectErr bool
	}{
		{
			name:      "valid",
			msg:       AssistResponse{RequestID: "req-1", TurnID: "turn-1", TranscriptStage: StageFinal},
			expectErr: false,
		},
		{
			name:      "missing request id",
			msg:       AssistResponse{TurnID: "turn-1", TranscriptStage: StageFinal},
			expectErr: true,
		},
		{
			name:      "missing turn id",
			msg:       AssistResponse{RequestID: "req-1", TranscriptStage: StageFinal},
			expectErr: true,
		},
		{
			name:      "bad stage",
			msg:       AssistResponse{RequestID: "req-1", TurnID: "turn-1", TranscriptStage: "whatever"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}
