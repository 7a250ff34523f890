package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler processes one inbound message payload. Handlers run on the
// client's read loop and must not block.
type Handler func(payload json.RawMessage)

// Client maintains one websocket connection to the coordination server
// and dispatches inbound messages by type
type Client struct {
	logger       *slog.Logger
	writeTimeout time.Duration

	conn     *websocket.Conn
	handlers map[MessageType]Handler
	onClose  func(err error)

	// writeMu serializes writes; gorilla connections allow one
	// concurrent writer only
	writeMu sync.Mutex

	// Connection state
	open   bool
	closed bool

	// Statistics
	messagesSent     uint64
	messagesDropped  uint64
	messagesReceived uint64
	unknownTypes     uint64

	done chan struct{}
	mu   sync.RWMutex
}

// ClientStats represents signaling client statistics
type ClientStats struct {
	Open             bool   `json:"open"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesDropped  uint64 `json:"messages_dropped"`
	MessagesReceived uint64 `json:"messages_received"`
	UnknownTypes     uint64 `json:"unknown_types"`
}

// NewClient creates a new signaling client
func NewClient(logger *slog.Logger, writeTimeout time.Duration) *Client {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Client{
		logger:       logger,
		writeTimeout: writeTimeout,
		handlers:     make(map[MessageType]Handler),
		done:         make(chan struct{}),
	}
}

// Handle registers a handler for a message type. Registration must
// happen before Connect; the dispatch table is read-only afterwards.
func (c *Client) Handle(msgType MessageType, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[msgType] = handler
}

// OnClose registers a callback invoked once when the channel closes,
// with the error that terminated the read loop (nil on local Close)
func (c *Client) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onClose = fn
}

// Connect dials the coordination server and starts the read loop.
// It returns once the channel is open, or an error if the dial fails.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.open || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client already connected or closed")
	}
	c.mu.Unlock()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (status %d): %w", url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	c.logger.Info("Signaling channel connected", slog.String("url", url))

	go c.readLoop()

	return nil
}

// Send serializes and transmits a message if the channel is open.
// When the channel is not open the message is silently dropped: media
// and transcript state self-heal through continuous retries, so a
// single lost message never needs redelivery.
func (c *Client) Send(msgType MessageType, payload interface{}) {
	c.mu.RLock()
	open := c.open
	c.mu.RUnlock()

	if !open {
		c.mu.Lock()
		c.messagesDropped++
		c.mu.Unlock()

		c.logger.Debug("Dropping message on closed channel", slog.String("type", string(msgType)))
		return
	}

	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		c.logger.Error("Failed to encode message",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()),
		)
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("Failed to marshal envelope",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()),
		)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.mu.Lock()
		c.messagesDropped++
		c.mu.Unlock()

		c.logger.Warn("Failed to write message",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()),
		)
		return
	}

	c.mu.Lock()
	c.messagesSent++
	c.mu.Unlock()
}

// readLoop receives and dispatches inbound messages until the
// connection closes
func (c *Client) readLoop() {
	var closeErr error

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Signaling channel closed by server")
			} else {
				c.mu.RLock()
				locallyClosed := c.closed
				c.mu.RUnlock()

				if !locallyClosed {
					c.logger.Warn("Signaling read error", slog.String("error", err.Error()))
					closeErr = err
				}
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Failed to parse inbound message", slog.String("error", err.Error()))
			continue
		}

		c.dispatch(&env)
	}

	c.markClosed()

	c.mu.RLock()
	onClose := c.onClose
	c.mu.RUnlock()

	if onClose != nil {
		onClose(closeErr)
	}
}

// dispatch routes an inbound envelope to its registered handler
func (c *Client) dispatch(env *Envelope) {
	c.mu.Lock()
	c.messagesReceived++
	handler, ok := c.handlers[env.Type]
	if !ok {
		c.unknownTypes++
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("No handler for message type", slog.String("type", string(env.Type)))
		return
	}

	handler(env.Payload)
}

// Close tears down the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Best-effort close handshake before dropping the connection
	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close signaling connection: %w", err)
	}

	return nil
}

// markClosed flips the connection state after the read loop exits
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	c.closed = true

	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// IsOpen returns whether the channel is currently open
func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Done returns a channel closed when the connection terminates
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		Open:             c.open,
		MessagesSent:     c.messagesSent,
		MessagesDropped:  c.messagesDropped,
		MessagesReceived: c.messagesReceived,
		UnknownTypes:     c.unknownTypes,
	}
}
