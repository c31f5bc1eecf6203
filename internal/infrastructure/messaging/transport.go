package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrPeerGone marks a delivery failure whose cause is a departed peer. The
// broadcaster prunes the connection's registry record when it sees this.
var ErrPeerGone = errors.New("peer gone")

// Transport delivers payloads to individual connections.
type Transport interface {
	// Send writes a payload to one connection. A failure wrapping ErrPeerGone
	// means the peer is unreachable and the connection should be pruned.
	Send(ctx context.Context, connectionID string, payload []byte) error
	// CloseConnection tears down local transport state for a connection.
	CloseConnection(connectionID string)
}

// WebSocketTransport tracks the gorilla websocket conns owned by this node
// and serializes writes per connection.
type WebSocketTransport struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketTransport creates an empty websocket transport.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{conns: make(map[string]*wsConn)}
}

var _ Transport = (*WebSocketTransport)(nil)

// Attach registers an upgraded connection under its connection ID.
func (wt *WebSocketTransport) Attach(connectionID string, conn *websocket.Conn) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.conns[connectionID] = &wsConn{conn: conn}
}

// Send writes a text frame to one connection. A connection this node does not
// hold, or a write error, both report the peer as gone.
func (wt *WebSocketTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	wt.mu.RLock()
	wc, exists := wt.conns[connectionID]
	wt.mu.RUnlock()

	if !exists {
		return fmt.Errorf("connection %s not attached: %w", connectionID, ErrPeerGone)
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()

	wc.conn.SetWriteDeadline(deadline)
	if err := wc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write to %s failed: %w", connectionID, errors.Join(err, ErrPeerGone))
	}
	return nil
}

// CloseConnection closes and forgets a connection's websocket.
func (wt *WebSocketTransport) CloseConnection(connectionID string) {
	wt.mu.Lock()
	wc, exists := wt.conns[connectionID]
	delete(wt.conns, connectionID)
	wt.mu.Unlock()

	if exists {
		wc.conn.Close()
	}
}
