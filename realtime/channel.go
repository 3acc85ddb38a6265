// Package realtime manages the WebSocket status channel the archive uses
// to push scraping and document-processing progress to dashboards.
package realtime

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the lifecycle state of the logical connection.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Message is the wire format for every frame in both directions.
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// Handler consumes inbound messages for one subscribed type. Handlers for
// the same connection run sequentially in registration order, so progress
// updates never race each other.
type Handler func(msg Message)

// TopicConnection is a reserved inbound topic carrying connection state
// changes ({"state": "open" | "connecting"}). Transient drops are invisible
// to subscribers unless they subscribe to it explicitly.
const TopicConnection = "connection"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

const defaultOutboxCap = 256

// Channel manages one logical WebSocket connection: dial and reconnect
// lifecycle, typed dispatch to subscribers, and queueing of outbound
// messages while disconnected. An unexpected close triggers capped
// exponential backoff reconnection; an explicit Disconnect suppresses it.
type Channel struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	logger         Logger
	outboxCap      int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	subs     map[string][]subscription
	nextSub  uint64
	outbox   []Message
	explicit bool
	started  bool
	done     chan struct{}
}

type subscription struct {
	id uint64
	fn Handler
}

func NewChannel(url string) *Channel {
	return &Channel{
		url:            url,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:         defLogger{},
		outboxCap:      defaultOutboxCap,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
		state:          StateClosed,
		subs:           map[string][]subscription{},
	}
}

func (c *Channel) WithLogger(logger Logger) *Channel {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithRequestHeader sets headers for the WebSocket handshake, typically
// the Authorization bearer header.
func (c *Channel) WithRequestHeader(header http.Header) *Channel {
	c.header = header
	return c
}

// WithBackoff overrides the reconnect backoff bounds.
func (c *Channel) WithBackoff(initial, max time.Duration) *Channel {
	if initial > 0 {
		c.initialBackoff = initial
	}
	if max > 0 {
		c.maxBackoff = max
	}
	return c
}

// WithOutboxCap bounds the queue of messages held while disconnected.
// When full, the oldest message is dropped.
func (c *Channel) WithOutboxCap(n int) *Channel {
	if n > 0 {
		c.outboxCap = n
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. It is a no-op while the channel is
// already connecting or open.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.explicit = false
	c.done = make(chan struct{})
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run()
}

// Subscribe registers a handler for one message type and returns the
// function that removes it. The first subscriber starts the connection.
// Multiple handlers per type are all invoked, in registration order.
func (c *Channel) Subscribe(messageType string, handler Handler) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[messageType] = append(c.subs[messageType], subscription{id: id, fn: handler})
	needsConnect := !c.started && !c.explicit
	c.mu.Unlock()

	if needsConnect {
		c.Connect()
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[messageType]
		for i, sub := range subs {
			if sub.id == id {
				c.subs[messageType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.subs[messageType]) == 0 {
			delete(c.subs, messageType)
		}
	}
}

// Send writes the message immediately when the connection is open and
// queues it otherwise. Queued messages are flushed in FIFO order, ahead of
// new sends, whenever the connection (re)opens.
func (c *Channel) Send(msg Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen && c.conn != nil {
		if err := c.conn.WriteJSON(msg); err != nil {
			// The connection is dying; the read loop will notice. Keep the
			// message so the reconnect flush delivers it.
			c.logger.Warn("send failed, queueing message type=%s: %v", msg.Type, err)
			c.conn.Close()
			c.enqueueLocked(msg)
		}
		return
	}

	c.enqueueLocked(msg)
}

// Disconnect tears the channel down: closing, then closed, subscriptions
// cleared, reconnect suppressed. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.state == StateClosed && !c.started {
		c.mu.Unlock()
		return
	}
	c.explicit = true
	c.state = StateClosing
	conn := c.conn
	c.conn = nil
	c.subs = map[string][]subscription{}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

func (c *Channel) run() {
	defer func() {
		c.mu.Lock()
		c.started = false
		if c.state != StateClosed {
			c.state = StateClosed
		}
		c.mu.Unlock()
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0
	policy.Reset()

	for {
		if c.stopping() {
			return
		}

		conn, resp, err := c.dialer.Dial(c.url, c.header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if c.stopping() {
				return
			}
			if !c.waitBackoff(policy) {
				return
			}
			continue
		}

		connID := uuid.NewString()
		if !c.setOpen(conn) {
			conn.Close()
			if c.stopping() {
				return
			}
			if !c.waitBackoff(policy) {
				return
			}
			continue
		}

		c.logger.Info("realtime connection %s established", connID)
		policy.Reset()

		c.readLoop(conn, connID)

		if c.stopping() {
			return
		}

		c.mu.Lock()
		c.state = StateConnecting
		c.mu.Unlock()
		c.publishState(StateConnecting)

		if !c.waitBackoff(policy) {
			return
		}
	}
}

// waitBackoff sleeps for the next backoff interval. It returns false when
// the channel was disconnected while waiting.
func (c *Channel) waitBackoff(policy backoff.BackOff) bool {
	delay := policy.NextBackOff()
	if delay == backoff.Stop {
		return false
	}
	c.logger.Debug("reconnecting in %s", delay)

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}

	select {
	case <-time.After(delay):
		return true
	case <-done:
		return false
	}
}

// setOpen installs the connection and flushes the outbox in FIFO order.
// Holding the lock through the flush means no Send can jump the queue.
func (c *Channel) setOpen(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.explicit {
		c.mu.Unlock()
		return false
	}

	for i, msg := range c.outbox {
		if err := conn.WriteJSON(msg); err != nil {
			c.logger.Warn("outbox flush interrupted: %v", err)
			c.outbox = c.outbox[i:]
			c.mu.Unlock()
			return false
		}
	}
	c.outbox = nil
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.publishState(StateOpen)
	return true
}

func (c *Channel) readLoop(conn *websocket.Conn, connID string) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if !c.stopping() {
				c.logger.Warn("realtime connection %s lost: %v", connID, err)
			}
			return
		}
		c.dispatch(msg)
	}
}

// dispatch invokes the handlers for one message. It runs on the single
// read goroutine, so handlers observe arrival order and never run
// concurrently with each other.
func (c *Channel) dispatch(msg Message) {
	c.mu.Lock()
	subs := c.subs[msg.Type]
	handlers := make([]Handler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.fn
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}

func (c *Channel) publishState(state State) {
	c.dispatch(Message{
		Type:      TopicConnection,
		Data:      map[string]any{"state": string(state)},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Channel) enqueueLocked(msg Message) {
	if len(c.outbox) >= c.outboxCap {
		dropped := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.logger.Warn("outbox full, dropping oldest message type=%s", dropped.Type)
	}
	c.outbox = append(c.outbox, msg)
}

func (c *Channel) stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.explicit
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] REALTIME "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] REALTIME "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] REALTIME "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] REALTIME "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
