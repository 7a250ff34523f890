package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer accepts one connection and hands it to fn
func echoServer(t *testing.T, fn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		fn(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSendBeforeConnectDropsSilently(t *testing.T) {
	client := NewClient(slog.Default(), time.Second)

	// Must not panic, block, or error
	client.Send(TypeAudioChunk, AudioChunk{MeetingID: "m-1"})

	stats := client.GetStats()
	if stats.MessagesDropped != 1 {
		t.Errorf("Expected 1 dropped message, got %d", stats.MessagesDropped)
	}
	if stats.MessagesSent != 0 {
		t.Errorf("Expected 0 sent messages, got %d", stats.MessagesSent)
	}
}

func TestConnectSendAndDispatch(t *testing.T) {
	received := make(chan Transcription, 1)

	server := echoServer(t, func(conn *websocket.Conn) {
		// Read the client's message, then answer with a transcription
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Errorf("Bad envelope from client: %v", err)
			return
		}
		if env.Type != TypeJoinMeeting {
			t.Errorf("Expected join-meeting, got %s", env.Type)
		}

		reply, _ := NewEnvelope(TypeTranscription, Transcription{
			Text:            "hello",
			TranscriptStage: StageDraft,
			TurnID:          "turn-1",
		})
		out, _ := json.Marshal(reply)
		conn.WriteMessage(websocket.TextMessage, out)

		// Hold the connection open until the client closes it
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(slog.Default(), time.Second)
	client.Handle(TypeTranscription, func(payload json.RawMessage) {
		var msg Transcription
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
			return
		}
		received <- msg
	})

	if err := client.Connect(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if !client.IsOpen() {
		t.Error("Expected channel open after connect")
	}

	client.Send(TypeJoinMeeting, JoinMeeting{MeetingID: "m-1", UserID: "u-1", Role: "client"})

	select {
	case msg := <-received:
		if msg.TurnID != "turn-1" {
			t.Errorf("Expected turn-1, got %s", msg.TurnID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for dispatched transcription")
	}

	stats := client.GetStats()
	if stats.MessagesSent != 1 {
		t.Errorf("Expected 1 sent message, got %d", stats.MessagesSent)
	}
	if stats.MessagesReceived != 1 {
		t.Errorf("Expected 1 received message, got %d", stats.MessagesReceived)
	}
}

func TestUnknownMessageTypeCounted(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery","payload":{}}`))
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(slog.Default(), time.Second)
	if err := client.Connect(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.GetStats().UnknownTypes == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("Expected 1 unknown type, got %d", client.GetStats().UnknownTypes)
}

func TestCloseIdempotent(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(slog.Default(), time.Second)
	if err := client.Connect(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	if client.IsOpen() {
		t.Error("Expected channel closed")
	}

	// Sends after close drop silently
	client.Send(TypeAudioChunk, AudioChunk{})
	if got := client.GetStats().MessagesDropped; got != 1 {
		t.Errorf("Expected 1 dropped message after close, got %d", got)
	}
}

func TestDoneClosesWhenServerDisconnects(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	defer server.Close()

	closed := make(chan error, 1)

	client := NewClient(slog.Default(), time.Second)
	client.OnClose(func(err error) { closed <- err })

	if err := client.Connect(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Done")
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Expected nil error for normal closure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for OnClose callback")
	}
}

func TestConnectBadURL(t *testing.T) {
	client := NewClient(slog.Default(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := client.Connect(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Error("Expected connect to unreachable server to fail")
		client.Close()
	}
}
