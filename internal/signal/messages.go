package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MessageType identifies a signaling message in the coordination protocol
type MessageType string

// Message types exchanged with the coordination server
const (
	TypeJoinMeeting       MessageType = "join-meeting"
	TypeJoinedMeeting     MessageType = "joined-meeting"
	TypeParticipantJoined MessageType = "participant-joined"
	TypeParticipantLeft   MessageType = "participant-left"
	TypeOffer             MessageType = "session-description-offer"
	TypeAnswer            MessageType = "session-description-answer"
	TypeICECandidate      MessageType = "ice-candidate"
	TypeAudioChunk        MessageType = "audio-chunk"
	TypeTranscription     MessageType = "transcription"
	TypeRequestAssist     MessageType = "request-assist"
	TypeAssistResponse    MessageType = "assist-response"
	TypeError             MessageType = "error"
)

// Stage identifies the lifecycle stage of a transcript turn
type Stage string

// Transcript stages
const (
	StageDraft Stage = "draft"
	StageFinal Stage = "final"
)

// Request origins for assist requests
const (
	OriginAutoDraft = "auto-draft"
	OriginAutoFinal = "auto-final"
	OriginManual    = "manual"
)

// Envelope is the wire frame for every signaling message.
// Payload shape is determined by Type (tagged-union dispatch).
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinMeeting is sent by a client to enter a meeting
type JoinMeeting struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
}

// Participant identifies one meeting participant
type Participant struct {
	UserID string `json:"userId"`
}

// JoinedMeeting is the server's join acknowledgement. A non-empty
// participant list makes the local client the negotiation initiator.
type JoinedMeeting struct {
	Participants []Participant `json:"participants"`
}

// ParticipantJoined announces a new participant in the meeting
type ParticipantJoined struct {
	UserID string `json:"userId"`
}

// ParticipantLeft announces a participant leaving the meeting
type ParticipantLeft struct {
	UserID string `json:"userId"`
}

// SDPSignal carries a session description
type SDPSignal struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

// SessionDescription carries an offer or answer to a target participant
type SessionDescription struct {
	MeetingID    string    `json:"meetingId"`
	TargetUserID string    `json:"targetUserId"`
	Signal       SDPSignal `json:"signal"`
}

// CandidateSignal carries one ICE candidate
type CandidateSignal struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ICECandidate carries an ICE candidate to a target participant
type ICECandidate struct {
	MeetingID    string          `json:"meetingId"`
	TargetUserID string          `json:"targetUserId"`
	Signal       CandidateSignal `json:"signal"`
}

// AudioChunk is an uplink batch of base64-encoded PCM16 audio
type AudioChunk struct {
	MeetingID      string `json:"meetingId"`
	UserID         string `json:"userId"`
	ClientSentAtMs int64  `json:"clientSentAtMs"`
	SampleRate     int    `json:"sampleRate"`
	AudioData      string `json:"audioData"` // base64 PCM16 little-endian
}

// Transcription is an inbound transcript update for one turn
type Transcription struct {
	Text               string `json:"text"`
	TranscriptStage    Stage  `json:"transcriptStage"`
	TurnID             string `json:"turnId"`
	ClientAudioStartMs int64  `json:"clientAudioStartMs"`
}

// AssistMetadata correlates an assist request with its source turn
type AssistMetadata struct {
	RequestID               string `json:"requestId"`
	RequestOrigin           string `json:"requestOrigin"`
	TranscriptStage         Stage  `json:"transcriptStage"`
	TurnID                  string `json:"turnId"`
	RequestedAtMs           int64  `json:"requestedAtMs"`
	SourceAudioStartMs      int64  `json:"sourceAudioStartMs"`
	SourceTranscriptionAtMs int64  `json:"sourceTranscriptionAtMs"`
}

// RequestAssist asks the assist service for suggested talking points
type RequestAssist struct {
	MeetingID string         `json:"meetingId"`
	Text      string         `json:"text"`
	UserID    string         `json:"userId"`
	Metadata  AssistMetadata `json:"metadata"`
}

// AssistResponse is an inbound suggestion from the assist service
type AssistResponse struct {
	Suggestion         string   `json:"suggestion"`
	Citations          []string `json:"citations"`
	RequestID          string   `json:"requestId"`
	TranscriptStage    Stage    `json:"transcriptStage"`
	TurnID             string   `json:"turnId"`
	RequestedAtMs      int64    `json:"requestedAtMs"`
	SourceAudioStartMs int64    `json:"sourceAudioStartMs"`
}

// ErrorMessage is an inbound server-side error notification
type ErrorMessage struct {
	Message string `json:"message"`
}

// NewEnvelope marshals a payload into a wire envelope
func NewEnvelope(msgType MessageType, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	return &Envelope{Type: msgType, Payload: data}, nil
}

// Decode unmarshals the envelope payload into the given value
func (e *Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// IsValidMessageType checks if the message type is part of the protocol
func IsValidMessageType(t MessageType) bool {
	switch t {
	case TypeJoinMeeting, TypeJoinedMeeting, TypeParticipantJoined, TypeParticipantLeft,
		TypeOffer, TypeAnswer, TypeICECandidate, TypeAudioChunk,
		TypeTranscription, TypeRequestAssist, TypeAssistResponse, TypeError:
		return true
	}
	return false
}

// IsValidStage checks if the transcript stage is valid
func IsValidStage(s Stage) bool {
	return s == StageDraft || s == StageFinal
}

// Validate checks required transcription fields
func (t *Transcription) Validate() error {
	if t.TurnID == "" {
		return fmt.Errorf("turnId cannot be empty")
	}

	if !IsValidStage(t.TranscriptStage) {
		return fmt.Errorf("invalid transcript stage: %q", t.TranscriptStage)
	}

	return nil
}

// Validate checks required assist-response fields
func (a *AssistResponse) Validate() error {
	if a.RequestID == "" {
		return fmt.Errorf("requestId cannot be empty")
	}

	if a.TurnID == "" {
		return fmt.Errorf("turnId cannot be empty")
	}

	if !IsValidStage(a.TranscriptStage) {
		return fmt.Errorf("invalid transcript stage: %q", a.TranscriptStage)
	}

	return nil
}

// String returns a human-readable representation of the envelope
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{Type:%s, PayloadLen:%d}", e.Type, len(e.Payload))
}
