package realtime

import (
	"encoding/json"
	"sync"
)

// PendingUpdate is a pushed change waiting to be applied. Patch carries the
// server's payload when one was included; RequiresRefetch marks updates the
// consumer must resolve by refetching instead of patching in place.
type PendingUpdate struct {
	ID              string          `json:"id"`
	Topic           string          `json:"topic"`
	Action          string          `json:"action"`
	Patch           json.RawMessage `json:"patch,omitempty"`
	RequiresRefetch bool            `json:"requiresRefetch"`
}

// PendingUpdates collects channel notifications into an acknowledgeable
// queue. Each update is handed out until acknowledged and an id can never be
// pending twice, so applying then acking gives at-most-once application.
type PendingUpdates struct {
	mu      sync.Mutex
	pending []PendingUpdate
	byID    map[string]struct{}
	detach  func()
}

// NewPendingUpdates attaches a collector to a channel. Call Close to detach.
func NewPendingUpdates(ch *Channel) *PendingUpdates {
	p := &PendingUpdates{byID: make(map[string]struct{})}
	p.detach = ch.OnNotification(p.ingest)
	return p
}

func (p *PendingUpdates) ingest(n *Notification) {
	update := PendingUpdate{
		ID:     n.ID,
		Topic:  n.Topic,
		Action: n.Action,
		Patch:  n.Data,
	}
	if n.Action == "cache_invalidated" || len(n.Data) == 0 {
		update.RequiresRefetch = true
		update.Patch = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if update.ID != "" {
		if _, exists := p.byID[update.ID]; exists {
			return
		}
		p.byID[update.ID] = struct{}{}
	}
	p.pending = append(p.pending, update)
}

// Pending returns a snapshot of unacknowledged updates in arrival order.
func (p *PendingUpdates) Pending() []PendingUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingUpdate, len(p.pending))
	copy(out, p.pending)
	return out
}

// Ack consumes one update. It reports whether the id was pending, so a second
// Ack for the same id returns false and the caller knows not to apply again.
func (p *PendingUpdates) Ack(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, update := range p.pending {
		if update.ID == id {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Close detaches the collector from its channel.
func (p *PendingUpdates) Close() {
	p.detach()
}
