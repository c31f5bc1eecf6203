// Package realtime maintains the client's persistent duplex channel:
// connect/reconnect with capped backoff, heartbeat, topic resubscription,
// and at-most-once dispatch of pushed notifications to listeners.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the channel lifecycle position.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	// StateClosed is terminal and only entered by an explicit Close.
	StateClosed State = "closed"
)

// ErrReconnectExhausted reports that the reconnect attempt cap was reached.
// The channel stays disconnected until an explicit Reconnect call.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ErrChannelClosed reports an operation on a terminally closed channel.
var ErrChannelClosed = errors.New("channel closed")

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultBaseReconnect     = 2 * time.Second
	defaultMaxReconnects     = 5

	dedupeRingSize = 256
)

// Notification is one pushed event as it arrives on the wire. ID is the
// dedupe identity listeners rely on for at-most-once application.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	City      string          `json:"city,omitempty"`
	Category  string          `json:"category,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Listener receives deduplicated notifications.
type Listener func(n *Notification)

// StateListener observes lifecycle transitions.
type StateListener func(s State)

// Options configures a channel. URL is the websocket endpoint; Token is the
// identity token passed on the handshake.
type Options struct {
	URL   string
	Token string

	HeartbeatInterval     time.Duration
	BaseReconnectInterval time.Duration
	MaxReconnectAttempts  int

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// conn is the slice of *websocket.Conn the channel uses, injectable in tests.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

type outboundMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// Channel is a reconnecting subscription channel. All exported methods are
// safe for concurrent use.
type Channel struct {
	opts Options
	dial func(ctx context.Context) (conn, error)

	mu           sync.Mutex
	state        State
	conn         conn
	connectionID string
	generation   int
	attempts     int
	lastErr      error
	topics       map[string]struct{}

	listenerSeq    int
	listeners      map[int]Listener
	stateListeners map[int]StateListener

	seen     map[string]struct{}
	seenRing [dedupeRingSize]string
	seenNext int

	reconnectTimer *time.Timer
}

// NewChannel builds a channel; it stays disconnected until Connect.
func NewChannel(opts Options) *Channel {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.BaseReconnectInterval <= 0 {
		opts.BaseReconnectInterval = defaultBaseReconnect
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnects
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Channel{
		opts:           opts,
		state:          StateDisconnected,
		topics:         make(map[string]struct{}),
		listeners:      make(map[int]Listener),
		stateListeners: make(map[int]StateListener),
		seen:           make(map[string]struct{}),
	}
	c.dial = c.dialWebSocket
	return c
}

func (c *Channel) dialWebSocket(ctx context.Context) (conn, error) {
	endpoint, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid channel url: %w", err)
	}
	if c.opts.Token != "" {
		query := endpoint.Query()
		query.Set("token", c.opts.Token)
		endpoint.RawQuery = query.Encode()
	}

	wsConn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	return wsConn, nil
}

// State returns the current lifecycle position.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the server-assigned id of the current connection, or
// empty when not open.
func (c *Channel) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// Err returns the most recent connection-level error, ErrReconnectExhausted
// once the attempt cap is hit.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect dials and moves the channel to open. On success the current topic
// set is resubscribed and the heartbeat starts. A connect while already open
// supersedes the previous connection.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.generation++
	generation := c.generation
	if previous := c.conn; previous != nil {
		c.conn = nil
		previous.Close()
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	newConn, err := c.dial(ctx)

	c.mu.Lock()
	if c.state == StateClosed || generation != c.generation {
		c.mu.Unlock()
		if newConn != nil {
			newConn.Close()
		}
		return ErrChannelClosed
	}
	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return err
	}

	c.conn = newConn
	c.attempts = 0
	c.lastErr = nil
	c.setStateLocked(StateOpen)
	topics := c.topicsLocked()
	c.mu.Unlock()

	c.opts.Logger.Info("channel open", "topics", len(topics))

	if len(topics) > 0 {
		c.send(newConn, outboundMessage{Type: "subscribe", Topics: topics})
	}

	go c.readLoop(newConn, generation)
	go c.heartbeat(newConn, generation)
	return nil
}

// Reconnect resets the attempt counter and dials again. It is the explicit
// resumption path after the cap was exhausted.
func (c *Channel) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.attempts = 0
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Close terminates the channel. No reconnect follows.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.generation++
	current := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if current != nil {
		deadline := time.Now().Add(time.Second)
		current.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return current.Close()
	}
	return nil
}

// Subscribe adds topics to the tracked set and, when open, tells the server.
// The set survives reconnects.
func (c *Channel) Subscribe(topics ...string) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	for _, topic := range topics {
		c.topics[topic] = struct{}{}
	}
	current := c.conn
	c.mu.Unlock()

	if current != nil {
		return c.send(current, outboundMessage{Type: "subscribe", Topics: topics})
	}
	return nil
}

// Unsubscribe removes topics from the tracked set and, when open, tells the
// server.
func (c *Channel) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	for _, topic := range topics {
		delete(c.topics, topic)
	}
	current := c.conn
	c.mu.Unlock()

	if current != nil {
		return c.send(current, outboundMessage{Type: "unsubscribe", Topics: topics})
	}
	return nil
}

// Topics returns the tracked subscription set.
func (c *Channel) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topicsLocked()
}

// OnNotification registers a listener and returns its unsubscribe handle.
func (c *Channel) OnNotification(listener Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listenerSeq++
	id := c.listenerSeq
	c.listeners[id] = listener
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// OnStateChange registers a lifecycle observer and returns its unsubscribe
// handle.
func (c *Channel) OnStateChange(listener StateListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listenerSeq++
	id := c.listenerSeq
	c.stateListeners[id] = listener
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateListeners, id)
	}
}

func (c *Channel) topicsLocked() []string {
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	return topics
}

// setStateLocked updates state and notifies observers. Callers hold c.mu.
func (c *Channel) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.state = next
	observers := make([]StateListener, 0, len(c.stateListeners))
	for _, observer := range c.stateListeners {
		observers = append(observers, observer)
	}
	go func() {
		for _, observer := range observers {
			observer(next)
		}
	}()
}

func (c *Channel) send(target conn, message outboundMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return target.WriteMessage(websocket.TextMessage, data)
}

func (c *Channel) readLoop(current conn, generation int) {
	readDeadline := 3 * c.opts.HeartbeatInterval
	current.SetReadDeadline(time.Now().Add(readDeadline))
	current.SetPongHandler(func(string) error {
		return current.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, payload, err := current.ReadMessage()
		if err != nil {
			c.handleDisconnect(current, generation, err)
			return
		}
		current.SetReadDeadline(time.Now().Add(readDeadline))
		c.handleMessage(payload)
	}
}

func (c *Channel) heartbeat(current conn, generation int) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		live := c.generation == generation && c.conn == current
		c.mu.Unlock()
		if !live {
			return
		}
		deadline := time.Now().Add(5 * time.Second)
		if err := current.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}

func (c *Channel) handleMessage(payload []byte) {
	var notification Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return
	}

	switch notification.Type {
	case "connected":
		var control struct {
			ConnectionID string `json:"connectionId"`
		}
		if err := json.Unmarshal(payload, &control); err == nil {
			c.mu.Lock()
			c.connectionID = control.ConnectionID
			c.mu.Unlock()
		}
		return
	case "pong", "subscribed", "unsubscribed":
		return
	}

	c.dispatch(&notification)
}

// dispatch delivers a notification to every listener at most once, dropping
// duplicate IDs the transport may produce.
func (c *Channel) dispatch(notification *Notification) {
	c.mu.Lock()
	if notification.ID != "" {
		if _, duplicate := c.seen[notification.ID]; duplicate {
			c.mu.Unlock()
			return
		}
		if evicted := c.seenRing[c.seenNext]; evicted != "" {
			delete(c.seen, evicted)
		}
		c.seenRing[c.seenNext] = notification.ID
		c.seenNext = (c.seenNext + 1) % dedupeRingSize
		c.seen[notification.ID] = struct{}{}
	}
	targets := make([]Listener, 0, len(c.listeners))
	for _, listener := range c.listeners {
		targets = append(targets, listener)
	}
	c.mu.Unlock()

	for _, listener := range targets {
		listener(notification)
	}
}

// handleDisconnect runs when a read fails. A stale generation means a newer
// connect already superseded this connection. Only a non-normal close
// schedules a reconnect; a normal close from the peer parks the channel
// disconnected until an explicit Connect.
func (c *Channel) handleDisconnect(current conn, generation int, cause error) {
	current.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed || generation != c.generation {
		return
	}
	if c.conn == current {
		c.conn = nil
		c.connectionID = ""
	}
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.lastErr = nil
		c.setStateLocked(StateDisconnected)
		c.opts.Logger.Info("channel closed by peer")
		return
	}
	c.lastErr = cause
	c.setStateLocked(StateDisconnected)
	c.opts.Logger.Warn("channel disconnected", "error", cause.Error())
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the next attempt at baseInterval * attempt,
// or records exhaustion once the cap is reached. Callers hold c.mu.
func (c *Channel) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > c.opts.MaxReconnectAttempts {
		c.lastErr = ErrReconnectExhausted
		c.opts.Logger.Warn("reconnect attempts exhausted", "attempts", c.attempts-1)
		return
	}

	delay := c.opts.BaseReconnectInterval * time.Duration(c.attempts)
	generation := c.generation
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := c.state != StateDisconnected || generation != c.generation
		c.mu.Unlock()
		if stale {
			return
		}
		c.Connect(context.Background())
	})
}
