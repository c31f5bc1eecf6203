package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteRegistry is the durable ConnectionRegistry. Connection rows survive
// server restarts, so invalidation pushes can resume fan-out to clients that
// reconnect before their rows go stale.
type SQLiteRegistry struct {
	db *sql.DB
}

var _ ConnectionRegistry = (*SQLiteRegistry)(nil)

// NewSQLiteRegistry creates the registry, ensuring its table exists.
func NewSQLiteRegistry(db *sql.DB) (*SQLiteRegistry, error) {
	query := `CREATE TABLE IF NOT EXISTS realtime_connections (
		connection_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		topics TEXT NOT NULL DEFAULT '[]',
		last_seen_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create realtime_connections table: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

func (sr *SQLiteRegistry) Register(ctx context.Context, record *ConnectionRecord) error {
	topicsJSON, err := json.Marshal(record.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	query := `INSERT INTO realtime_connections (connection_id, user_id, topics, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET user_id = excluded.user_id,
			topics = excluded.topics, last_seen_at = excluded.last_seen_at`
	if _, err := sr.db.ExecContext(ctx, query, record.ConnectionID, record.UserID, string(topicsJSON), record.LastSeenAt.UTC()); err != nil {
		return fmt.Errorf("failed to register connection %s: %w", record.ConnectionID, err)
	}
	return nil
}

// Subscribe performs an atomic read-modify-write of the topic set.
func (sr *SQLiteRegistry) Subscribe(ctx context.Context, connectionID string, topics []string) error {
	return sr.updateTopics(ctx, connectionID, func(existing []string) []string {
		return mergeTopics(existing, topics)
	})
}

func (sr *SQLiteRegistry) Unsubscribe(ctx context.Context, connectionID string, topics []string) error {
	return sr.updateTopics(ctx, connectionID, func(existing []string) []string {
		return removeTopics(existing, topics)
	})
}

func (sr *SQLiteRegistry) updateTopics(ctx context.Context, connectionID string, apply func([]string) []string) error {
	tx, err := sr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin topic update: %w", err)
	}
	defer tx.Rollback()

	var topicsJSON string
	err = tx.QueryRowContext(ctx, `SELECT topics FROM realtime_connections WHERE connection_id = ?`, connectionID).Scan(&topicsJSON)
	if err == sql.ErrNoRows {
		return ErrConnectionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read topics for %s: %w", connectionID, err)
	}

	var existing []string
	if err := json.Unmarshal([]byte(topicsJSON), &existing); err != nil {
		return fmt.Errorf("failed to unmarshal topics for %s: %w", connectionID, err)
	}

	updated, err := json.Marshal(apply(existing))
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE realtime_connections SET topics = ? WHERE connection_id = ?`, string(updated), connectionID); err != nil {
		return fmt.Errorf("failed to update topics for %s: %w", connectionID, err)
	}
	return tx.Commit()
}

func (sr *SQLiteRegistry) Get(ctx context.Context, connectionID string) (*ConnectionRecord, error) {
	row := sr.db.QueryRowContext(ctx,
		`SELECT connection_id, user_id, topics, last_seen_at FROM realtime_connections WHERE connection_id = ?`,
		connectionID)
	record, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, ErrConnectionNotFound
	}
	return record, err
}

// ConnectionsForTopics scans all rows and intersects topic sets in Go. The
// registry holds live connections only, so the scan stays small.
func (sr *SQLiteRegistry) ConnectionsForTopics(ctx context.Context, topics []string) ([]*ConnectionRecord, error) {
	rows, err := sr.db.QueryContext(ctx,
		`SELECT connection_id, user_id, topics, last_seen_at FROM realtime_connections`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan connections: %w", err)
	}
	defer rows.Close()

	var matched []*ConnectionRecord
	for rows.Next() {
		record, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		if record.HasAnyTopic(topics) {
			matched = append(matched, record)
		}
	}
	return matched, rows.Err()
}

func (sr *SQLiteRegistry) Touch(ctx context.Context, connectionID string, at time.Time) error {
	result, err := sr.db.ExecContext(ctx,
		`UPDATE realtime_connections SET last_seen_at = ? WHERE connection_id = ?`, at.UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("failed to touch connection %s: %w", connectionID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (sr *SQLiteRegistry) Remove(ctx context.Context, connectionID string) error {
	if _, err := sr.db.ExecContext(ctx,
		`DELETE FROM realtime_connections WHERE connection_id = ?`, connectionID); err != nil {
		return fmt.Errorf("failed to remove connection %s: %w", connectionID, err)
	}
	return nil
}

func (sr *SQLiteRegistry) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := sr.db.ExecContext(ctx,
		`DELETE FROM realtime_connections WHERE last_seen_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale connections: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (sr *SQLiteRegistry) Count(ctx context.Context) (int, error) {
	var count int
	if err := sr.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM realtime_connections`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*ConnectionRecord, error) {
	var record ConnectionRecord
	var topicsJSON string
	if err := row.Scan(&record.ConnectionID, &record.UserID, &topicsJSON, &record.LastSeenAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topicsJSON), &record.Topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topics for %s: %w", record.ConnectionID, err)
	}
	return &record, nil
}
