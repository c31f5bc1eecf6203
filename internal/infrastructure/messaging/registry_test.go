package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenSubscribeMergesTopics(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	registerConn(t, registry, "conn-1", "user-1", "partner")
	require.NoError(t, registry.Subscribe(ctx, "conn-1", []string{"partner_paris", "partner"}))

	record, err := registry.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"partner", "partner_paris"}, record.Topics, "subscribe must union topics without duplicates")
}

func TestUnsubscribeNarrowsTopics(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	registerConn(t, registry, "conn-1", "user-1", "partner", "partner_paris", "partner_paris_food")
	require.NoError(t, registry.Unsubscribe(ctx, "conn-1", []string{"partner_paris"}))

	record, err := registry.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"partner", "partner_paris_food"}, record.Topics)
}

func TestReregisterReplacesSubscriptions(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	registerConn(t, registry, "conn-1", "user-1", "partner_paris")
	registerConn(t, registry, "conn-1", "user-1", "partner_lyon")

	record, err := registry.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"partner_lyon"}, record.Topics, "a fresh register replaces the previous record wholesale")

	count, err := registry.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConnectionsForTopicsMatchesAnySubscribedTopic(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	registerConn(t, registry, "conn-broad", "user-1", "partner")
	registerConn(t, registry, "conn-city", "user-2", "partner_paris")
	registerConn(t, registry, "conn-other", "user-3", "subscription_user-3")

	records, err := registry.ConnectionsForTopics(ctx, []string{"partner", "partner_paris"})
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ConnectionID)
	}
	assert.ElementsMatch(t, []string{"conn-broad", "conn-city"}, ids)
}

func TestTouchUnknownConnection(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	err := registry.Touch(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestPruneStaleRemovesOnlyIdleConnections(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	registerConn(t, registry, "conn-fresh", "user-1", "partner")
	registerConn(t, registry, "conn-stale", "user-2", "partner")
	require.NoError(t, registry.Touch(ctx, "conn-stale", time.Now().Add(-time.Hour)))

	pruned, err := registry.PruneStale(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = registry.Get(ctx, "conn-stale")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	_, err = registry.Get(ctx, "conn-fresh")
	assert.NoError(t, err)
}
