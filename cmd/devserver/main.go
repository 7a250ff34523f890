// Command devserver is a loopback coordination server for local
// development: it relays signaling between meeting participants and
// fabricates transcriptions and assist responses so a client can run
// end-to-end without the production backend.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/consultlink/meetclient/internal/signal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// phrases fed into fabricated draft transcriptions
var phrases = []string{
	"I wanted to ask about",
	"I wanted to ask about the coverage",
	"I wanted to ask about the coverage on my current plan",
	"I wanted to ask about the coverage on my current plan this year.",
}

// client is one connected participant
type client struct {
	userID    string
	meetingID string
	conn      *websocket.Conn

	// Per-user fabricated transcription state
	turnID       string
	chunkCount   int
	audioStartMs int64

	writeMu sync.Mutex
}

// hub tracks meetings and their participants
type hub struct {
	logger   *slog.Logger
	meetings map[string]map[string]*client
	mu       sync.Mutex
}

func main() {
	addr := flag.String("addr", ":8090", "Listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := &hub{
		logger:   logger,
		meetings: make(map[string]map[string]*client),
	}

	http.HandleFunc("/ws", h.handleWS)

	logger.Info("Dev coordination server listening", slog.String("addr", *addr))
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// handleWS upgrades one connection and serves its message loop
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn}
	defer h.drop(c)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn("Bad envelope", slog.String("error", err.Error()))
			continue
		}

		h.dispatch(c, &env)
	}
}

// dispatch routes one inbound envelope
func (h *hub) dispatch(c *client, env *signal.Envelope) {
	switch env.Type {
	case signal.TypeJoinMeeting:
		var msg signal.JoinMeeting
		if env.Decode(&msg) != nil {
			return
		}
		h.join(c, msg)

	case signal.TypeOffer, signal.TypeAnswer:
		var msg signal.SessionDescription
		if env.Decode(&msg) != nil {
			return
		}
		h.relay(c, env.Type, msg.TargetUserID, msg)

	case signal.TypeICECandidate:
		var msg signal.ICECandidate
		if env.Decode(&msg) != nil {
			return
		}
		h.relay(c, env.Type, msg.TargetUserID, msg)

	case signal.TypeAudioChunk:
		var msg signal.AudioChunk
		if env.Decode(&msg) != nil {
			return
		}
		h.fabricateTranscription(c, msg)

	case signal.TypeRequestAssist:
		var msg signal.RequestAssist
		if env.Decode(&msg) != nil {
			return
		}
		h.fabricateAssistResponse(c, msg)

	default:
		h.logger.Debug("Ignoring message", slog.String("type", string(env.Type)))
	}
}

// join registers the client in its meeting and announces it
func (h *hub) join(c *client, msg signal.JoinMeeting) {
	h.mu.Lock()

	c.userID = msg.UserID
	c.meetingID = msg.MeetingID

	room, ok := h.meetings[msg.MeetingID]
	if !ok {
		room = make(map[string]*client)
		h.meetings[msg.MeetingID] = room
	}

	participants := make([]signal.Participant, 0, len(room))
	peers := make([]*client, 0, len(room))
	for _, other := range room {
		participants = append(participants, signal.Participant{UserID: other.userID})
		peers = append(peers, other)
	}

	room[msg.UserID] = c
	h.mu.Unlock()

	h.logger.Info("Participant joined",
		slog.String("meeting_id", msg.MeetingID),
		slog.String("user_id", msg.UserID),
		slog.String("role", msg.Role),
		slog.Int("existing", len(participants)),
	)

	h.send(c, signal.TypeJoinedMeeting, signal.JoinedMeeting{Participants: participants})

	for _, peer := range peers {
		h.send(peer, signal.TypeParticipantJoined, signal.ParticipantJoined{UserID: msg.UserID})
	}
}

// relay forwards a message to the target participant, or to every
// other participant when no target is named
func (h *hub) relay(from *client, msgType signal.MessageType, targetUserID string, payload interface{}) {
	h.mu.Lock()
	room := h.meetings[from.meetingID]
	targets := make([]*client, 0, len(room))
	for userID, other := range room {
		if userID == from.userID {
			continue
		}
		if targetUserID == "" || userID == targetUserID {
			targets = append(targets, other)
		}
	}
	h.mu.Unlock()

	for _, target := range targets {
		h.send(target, msgType, payload)
	}
}

// fabricateTranscription turns uplink audio into canned draft and
// final transcript updates: a growing draft per chunk and a final that
// closes the turn every len(phrases) chunks
func (h *hub) fabricateTranscription(c *client, msg signal.AudioChunk) {
	h.mu.Lock()
	if c.turnID == "" {
		c.turnID = uuid.NewString()
		c.chunkCount = 0
		c.audioStartMs = msg.ClientSentAtMs
	}

	idx := c.chunkCount
	c.chunkCount++

	turnID := c.turnID
	audioStartMs := c.audioStartMs

	stage := signal.StageDraft
	text := phrases[idx%len(phrases)]
	if idx%len(phrases) == len(phrases)-1 {
		stage = signal.StageFinal
		c.turnID = "" // next chunk starts a new turn
	}
	h.mu.Unlock()

	h.send(c, signal.TypeTranscription, signal.Transcription{
		Text:               text,
		TranscriptStage:    stage,
		TurnID:             turnID,
		ClientAudioStartMs: audioStartMs,
	})
}

// fabricateAssistResponse answers a request after a short delay,
// echoing the correlation metadata back
func (h *hub) fabricateAssistResponse(c *client, msg signal.RequestAssist) {
	meta := msg.Metadata

	h.logger.Info("Assist request",
		slog.String("request_id", meta.RequestID),
		slog.String("origin", meta.RequestOrigin),
		slog.String("turn_id", meta.TurnID),
	)

	time.AfterFunc(300*time.Millisecond, func() {
		h.send(c, signal.TypeAssistResponse, signal.AssistResponse{
			Suggestion:         fmt.Sprintf("Suggested talking points for: %q", msg.Text),
			Citations:          []string{"kb://plans/overview", "kb://coverage/faq"},
			RequestID:          meta.RequestID,
			TranscriptStage:    meta.TranscriptStage,
			TurnID:             meta.TurnID,
			RequestedAtMs:      meta.RequestedAtMs,
			SourceAudioStartMs: meta.SourceAudioStartMs,
		})
	})
}

// send writes one envelope to a client
func (h *hub) send(c *client, msgType signal.MessageType, payload interface{}) {
	env, err := signal.NewEnvelope(msgType, payload)
	if err != nil {
		h.logger.Error("Failed to build envelope", slog.String("error", err.Error()))
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug("Write failed",
			slog.String("user_id", c.userID),
			slog.String("error", err.Error()),
		)
	}
}

// drop unregisters a client and announces its departure
func (h *hub) drop(c *client) {
	c.conn.Close()

	h.mu.Lock()
	room := h.meetings[c.meetingID]
	if room != nil {
		delete(room, c.userID)
		if len(room) == 0 {
			delete(h.meetings, c.meetingID)
		}
	}
	peers := make([]*client, 0, len(room))
	for _, other := range room {
		peers = append(peers, other)
	}
	h.mu.Unlock()

	if c.userID == "" {
		return
	}

	h.logger.Info("Participant left",
		slog.String("meeting_id", c.meetingID),
		slog.String("user_id", c.userID),
	)

	for _, peer := range peers {
		h.send(peer, signal.TypeParticipantLeft, signal.ParticipantLeft{UserID: c.userID})
	}
}
