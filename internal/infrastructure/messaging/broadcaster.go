package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// Broadcaster fans notifications out to every registered connection whose
// subscription matches one of the published topics. Delivery is best-effort:
// a failed send never fails the publish, and a send that reports ErrPeerGone
// removes the dead connection's record on the spot.
type Broadcaster struct {
	registry  ConnectionRegistry
	transport Transport
	logger    *logging.ChanneledLogger

	parallelism int
}

// NewBroadcaster wires a broadcaster over a registry and a transport.
func NewBroadcaster(registry ConnectionRegistry, transport Transport, logger *logging.ChanneledLogger) *Broadcaster {
	parallelism := config.BroadcastParallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Broadcaster{
		registry:    registry,
		transport:   transport,
		logger:      logger,
		parallelism: parallelism,
	}
}

// Publish delivers a notification to all connections subscribed to any of the
// given topics. The payload is marshaled once and sent concurrently with
// bounded parallelism. Publish only errors when the recipient set cannot be
// determined; per-connection delivery failures are logged and absorbed.
func (b *Broadcaster) Publish(ctx context.Context, topics []string, notification *Notification) error {
	if len(topics) == 0 {
		return nil
	}

	records, err := b.registry.ConnectionsForTopics(ctx, topics)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	b.logger.Realtime().Debug("Broadcasting notification",
		"notificationId", notification.ID,
		"action", notification.Action,
		"topics", topics,
		"recipients", len(records))

	sem := make(chan struct{}, b.parallelism)
	var wg sync.WaitGroup
	for _, record := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *ConnectionRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			b.deliver(ctx, rec, payload, notification.ID)
		}(record)
	}
	wg.Wait()

	return nil
}

func (b *Broadcaster) deliver(ctx context.Context, record *ConnectionRecord, payload []byte, notificationID string) {
	sendCtx, cancel := context.WithTimeout(ctx, config.BroadcastSendTimeout)
	defer cancel()

	err := b.transport.Send(sendCtx, record.ConnectionID, payload)
	if err == nil {
		return
	}

	if errors.Is(err, ErrPeerGone) {
		// Lazy pruning: the registry only learns a peer died when a delivery
		// to it fails.
		b.logger.Realtime().Debug("Pruning dead connection",
			"connectionId", record.ConnectionID,
			"notificationId", notificationID)
		b.transport.CloseConnection(record.ConnectionID)
		if removeErr := b.registry.Remove(context.WithoutCancel(ctx), record.ConnectionID); removeErr != nil {
			b.logger.Realtime().Warn("Failed to prune connection record",
				"connectionId", record.ConnectionID,
				"error", removeErr.Error())
		}
		return
	}

	b.logger.Realtime().Warn("Notification delivery failed",
		"connectionId", record.ConnectionID,
		"notificationId", notificationID,
		"error", err.Error())
}
