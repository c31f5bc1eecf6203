package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
)

type fakeTransport struct {
	mu        sync.Mutex
	delivered map[string][][]byte
	failWith  map[string]error
	closed    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		delivered: make(map[string][][]byte),
		failWith:  make(map[string]error),
	}
}

func (ft *fakeTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if err, ok := ft.failWith[connectionID]; ok {
		return err
	}
	ft.delivered[connectionID] = append(ft.delivered[connectionID], payload)
	return nil
}

func (ft *fakeTransport) CloseConnection(connectionID string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.closed = append(ft.closed, connectionID)
}

func testLogger() *logging.ChanneledLogger {
	return logging.NewChanneledLogger(logging.DefaultLoggerConfig())
}

func registerConn(t *testing.T, registry ConnectionRegistry, connectionID, userID string, topics ...string) {
	t.Helper()
	require.NoError(t, registry.Register(context.Background(), &ConnectionRecord{
		ConnectionID: connectionID,
		UserID:       userID,
		Topics:       topics,
		LastSeenAt:   time.Now().UTC(),
	}))
}

func TestPublishFansOutToMatchingConnections(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	transport := newFakeTransport()
	broadcaster := NewBroadcaster(registry, transport, testLogger())

	registerConn(t, registry, "conn-1", "user-1", "partner_paris")
	registerConn(t, registry, "conn-2", "user-2", "partner")
	registerConn(t, registry, "conn-3", "user-3", "partner_lyon")

	notification := NewNotification(EntityPartner, ActionUpdated, nil)
	notification.Topic = "partner_paris"
	notification.City = "paris"
	notification.Category = "food"
	err := broadcaster.Publish(ctx, []string{"partner", "partner_paris"}, notification)
	require.NoError(t, err)

	assert.Len(t, transport.delivered["conn-1"], 1)
	assert.Len(t, transport.delivered["conn-2"], 1)
	assert.Empty(t, transport.delivered["conn-3"], "connection on another city must not receive the notification")

	var decoded Notification
	require.NoError(t, json.Unmarshal(transport.delivered["conn-1"][0], &decoded))
	assert.Equal(t, notification.ID, decoded.ID)
	assert.Equal(t, ActionUpdated, decoded.Action)
}

func TestPublishIsolatesDeliveryFailures(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	transport := newFakeTransport()
	broadcaster := NewBroadcaster(registry, transport, testLogger())

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("conn-%d", i)
		registerConn(t, registry, id, fmt.Sprintf("user-%d", i), "partner")
	}
	transport.failWith["conn-2"] = fmt.Errorf("send: %w", ErrPeerGone)

	notification := NewNotification(EntityPartner, ActionCreated, nil)
	notification.Topic = "partner"
	require.NoError(t, broadcaster.Publish(ctx, []string{"partner"}, notification))

	assert.Len(t, transport.delivered["conn-1"], 1)
	assert.Len(t, transport.delivered["conn-3"], 1)
}

func TestPublishPrunesGonePeers(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	transport := newFakeTransport()
	broadcaster := NewBroadcaster(registry, transport, testLogger())

	registerConn(t, registry, "conn-live", "user-1", "partner")
	registerConn(t, registry, "conn-dead", "user-2", "partner")
	transport.failWith["conn-dead"] = fmt.Errorf("write: %w", ErrPeerGone)

	notification := NewNotification(EntityPartner, ActionDeleted, nil)
	notification.Topic = "partner"
	require.NoError(t, broadcaster.Publish(ctx, []string{"partner"}, notification))

	_, err := registry.Get(ctx, "conn-dead")
	assert.True(t, errors.Is(err, ErrConnectionNotFound), "dead peer must be pruned from the registry")

	_, err = registry.Get(ctx, "conn-live")
	assert.NoError(t, err, "healthy connection must survive")
	assert.Contains(t, transport.closed, "conn-dead")
}

func TestPublishTransientFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	transport := newFakeTransport()
	broadcaster := NewBroadcaster(registry, transport, testLogger())

	registerConn(t, registry, "conn-1", "user-1", "partner")
	transport.failWith["conn-1"] = errors.New("temporary congestion")

	notification := NewNotification(EntityPartner, ActionUpdated, nil)
	notification.Topic = "partner"
	require.NoError(t, broadcaster.Publish(ctx, []string{"partner"}, notification))

	_, err := registry.Get(ctx, "conn-1")
	assert.NoError(t, err, "transient failures must not prune the connection")
	assert.Empty(t, transport.closed)
}
