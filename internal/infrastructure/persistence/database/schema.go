package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		city TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		address TEXT,
		latitude REAL,
		longitude REAL,
		image_path TEXT,
		offered_discount INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		changed TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_partners_city ON partners(city)`,
	`CREATE INDEX IF NOT EXISTS idx_partners_city_category ON partners(city, category)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		plan TEXT NOT NULL DEFAULT 'free',
		city TEXT,
		expires_at TIMESTAMP,
		created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		changed TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id)`,
}

// EnsureSchema creates the catalog and subscription tables if missing. The
// realtime connection table is owned by the messaging registry.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
