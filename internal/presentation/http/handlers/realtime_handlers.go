package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/messaging"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/internal/presentation/http/middleware"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// clientMessage is what a connected client may send over the socket.
type clientMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// RealtimeHandlers owns the websocket endpoint: handshake, registration, and
// the per-connection read pump.
type RealtimeHandlers struct {
	registry  messaging.ConnectionRegistry
	transport *messaging.WebSocketTransport
	logger    *logging.ChanneledLogger
	upgrader  websocket.Upgrader
}

// NewRealtimeHandlers creates the websocket handlers.
func NewRealtimeHandlers(registry messaging.ConnectionRegistry, transport *messaging.WebSocketTransport, logger *logging.ChanneledLogger) *RealtimeHandlers {
	return &RealtimeHandlers{
		registry:  registry,
		transport: transport,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser origins are already filtered by CORS on the upgrade
			// request; the token is the real gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the connection and registers it. Every connection
// is auto-subscribed to its user's subscription topic; catalog topics arrive
// via subscribe messages once the client is open.
func (h *RealtimeHandlers) HandleWebSocket(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Realtime().Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	connectionID := ulid.Make().String()
	record := &messaging.ConnectionRecord{
		ConnectionID: connectionID,
		UserID:       identity.UserID,
		Topics:       []string{messaging.SubscriptionTopic(identity.UserID)},
		LastSeenAt:   time.Now().UTC(),
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.registry.Register(ctx, record); err != nil {
		h.logger.Realtime().Error("Connection registration failed",
			"connectionId", connectionID, "error", err.Error())
		conn.Close()
		return
	}

	h.transport.Attach(connectionID, conn)
	h.logger.Realtime().Info("Connection established",
		"connectionId", connectionID, "userId", identity.UserID)

	h.sendControl(ctx, connectionID, gin.H{"type": "connected", "connectionId": connectionID})

	go h.readPump(ctx, connectionID, conn)
}

// readPump consumes client messages until the socket dies. Any inbound
// traffic counts as liveness and refreshes the registry record.
func (h *RealtimeHandlers) readPump(ctx context.Context, connectionID string, conn *websocket.Conn) {
	readDeadline := 3 * config.HeartbeatInterval
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.registry.Touch(ctx, connectionID, time.Now().UTC())
		return nil
	})

	defer func() {
		h.transport.CloseConnection(connectionID)
		if err := h.registry.Remove(ctx, connectionID); err != nil {
			h.logger.Realtime().Warn("Failed to remove connection record",
				"connectionId", connectionID, "error", err.Error())
		}
		h.logger.Realtime().Info("Connection closed", "connectionId", connectionID)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.registry.Touch(ctx, connectionID, time.Now().UTC())

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Realtime().Debug("Ignoring malformed client message",
				"connectionId", connectionID)
			continue
		}

		switch msg.Type {
		case "subscribe":
			if err := h.registry.Subscribe(ctx, connectionID, msg.Topics); err != nil {
				h.logger.Realtime().Warn("Subscribe failed",
					"connectionId", connectionID, "error", err.Error())
				continue
			}
			h.sendControl(ctx, connectionID, gin.H{"type": "subscribed", "topics": msg.Topics})
		case "unsubscribe":
			if err := h.registry.Unsubscribe(ctx, connectionID, msg.Topics); err != nil {
				h.logger.Realtime().Warn("Unsubscribe failed",
					"connectionId", connectionID, "error", err.Error())
				continue
			}
			h.sendControl(ctx, connectionID, gin.H{"type": "unsubscribed", "topics": msg.Topics})
		case "ping":
			h.sendControl(ctx, connectionID, gin.H{"type": "pong"})
		default:
			h.logger.Realtime().Debug("Unknown client message type",
				"connectionId", connectionID, "type", msg.Type)
		}
	}
}

func (h *RealtimeHandlers) sendControl(ctx context.Context, connectionID string, body gin.H) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := h.transport.Send(ctx, connectionID, payload); err != nil {
		h.logger.Realtime().Debug("Control message send failed",
			"connectionId", connectionID, "error", err.Error())
	}
}
