package messaging

import (
	"context"
	"errors"
	"time"
)

// ConnectionState tracks a connection through its lifecycle. Records only
// exist in the registry while OPEN; CLOSED is terminal and means deletion.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

// ErrConnectionNotFound is returned for lookups of unknown connection IDs.
var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionRecord is one live client connection and its topic subscriptions.
// The registry is the sole writer; everything else only reads records to
// select fan-out targets.
type ConnectionRecord struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Topics       []string  `json:"topics"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// HasAnyTopic reports whether the record subscribes to at least one of the
// given topics.
func (r *ConnectionRecord) HasAnyTopic(topics []string) bool {
	for _, want := range topics {
		for _, have := range r.Topics {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ConnectionRegistry is the durable record of open connections. Implementations
// must make Subscribe and Unsubscribe idempotent set operations.
type ConnectionRegistry interface {
	// Register stores a newly opened connection.
	Register(ctx context.Context, record *ConnectionRecord) error
	// Subscribe adds topics to a connection's subscription set.
	Subscribe(ctx context.Context, connectionID string, topics []string) error
	// Unsubscribe removes topics from a connection's subscription set.
	Unsubscribe(ctx context.Context, connectionID string, topics []string) error
	// Get returns one connection record.
	Get(ctx context.Context, connectionID string) (*ConnectionRecord, error)
	// ConnectionsForTopics returns every open connection subscribed to at
	// least one of the topics.
	ConnectionsForTopics(ctx context.Context, topics []string) ([]*ConnectionRecord, error)
	// Touch updates a connection's last-seen time.
	Touch(ctx context.Context, connectionID string, at time.Time) error
	// Remove deletes a connection record. Removing an unknown ID is not an error.
	Remove(ctx context.Context, connectionID string) error
	// PruneStale deletes records not seen since the cutoff and returns how
	// many were removed. Registry hygiene only; correctness relies on lazy
	// pruning during delivery.
	PruneStale(ctx context.Context, cutoff time.Time) (int, error)
	// Count returns the number of registered connections.
	Count(ctx context.Context) (int, error)
}

// mergeTopics unions existing and added topics, preserving first-seen order.
func mergeTopics(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, topic := range existing {
		if _, dup := seen[topic]; !dup {
			seen[topic] = struct{}{}
			merged = append(merged, topic)
		}
	}
	for _, topic := range added {
		if _, dup := seen[topic]; !dup {
			seen[topic] = struct{}{}
			merged = append(merged, topic)
		}
	}
	return merged
}

// removeTopics subtracts removed from existing.
func removeTopics(existing, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, topic := range removed {
		drop[topic] = struct{}{}
	}
	kept := make([]string, 0, len(existing))
	for _, topic := range existing {
		if _, gone := drop[topic]; !gone {
			kept = append(kept, topic)
		}
	}
	return kept
}
