package messaging

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is an in-process ConnectionRegistry for single-node
// deployments and tests.
type MemoryRegistry struct {
	mu          sync.RWMutex
	connections map[string]*ConnectionRecord
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{connections: make(map[string]*ConnectionRecord)}
}

var _ ConnectionRegistry = (*MemoryRegistry)(nil)

func (mr *MemoryRegistry) Register(ctx context.Context, record *ConnectionRecord) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	stored := *record
	stored.Topics = append([]string(nil), record.Topics...)
	mr.connections[record.ConnectionID] = &stored
	return nil
}

func (mr *MemoryRegistry) Subscribe(ctx context.Context, connectionID string, topics []string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	record, exists := mr.connections[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}
	record.Topics = mergeTopics(record.Topics, topics)
	return nil
}

func (mr *MemoryRegistry) Unsubscribe(ctx context.Context, connectionID string, topics []string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	record, exists := mr.connections[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}
	record.Topics = removeTopics(record.Topics, topics)
	return nil
}

func (mr *MemoryRegistry) Get(ctx context.Context, connectionID string) (*ConnectionRecord, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	record, exists := mr.connections[connectionID]
	if !exists {
		return nil, ErrConnectionNotFound
	}
	snapshot := *record
	snapshot.Topics = append([]string(nil), record.Topics...)
	return &snapshot, nil
}

func (mr *MemoryRegistry) ConnectionsForTopics(ctx context.Context, topics []string) ([]*ConnectionRecord, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	var matched []*ConnectionRecord
	for _, record := range mr.connections {
		if record.HasAnyTopic(topics) {
			snapshot := *record
			snapshot.Topics = append([]string(nil), record.Topics...)
			matched = append(matched, &snapshot)
		}
	}
	return matched, nil
}

func (mr *MemoryRegistry) Touch(ctx context.Context, connectionID string, at time.Time) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	record, exists := mr.connections[connectionID]
	if !exists {
		return ErrConnectionNotFound
	}
	record.LastSeenAt = at
	return nil
}

func (mr *MemoryRegistry) Remove(ctx context.Context, connectionID string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	delete(mr.connections, connectionID)
	return nil
}

func (mr *MemoryRegistry) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	removed := 0
	for id, record := range mr.connections {
		if record.LastSeenAt.Before(cutoff) {
			delete(mr.connections, id)
			removed++
		}
	}
	return removed, nil
}

func (mr *MemoryRegistry) Count(ctx context.Context) (int, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.connections), nil
}
