// Package subscriptions provides the subscription repository.
package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PerkCity/perkcity-go/internal/domain/entities/subscription"
	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
)

// ErrNotFound is returned when a user has no subscription record.
var ErrNotFound = errors.New("subscription not found")

type SubscriptionRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewSubscriptionRepository(db *sql.DB, logger *logging.ChanneledLogger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan, city, expires_at, created, changed
		FROM subscriptions WHERE user_id = ?`, userID)

	var sub subscription.Subscription
	var city sql.NullString
	var expiresAt, changed sql.NullTime

	err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &city, &expiresAt, &sub.Created, &changed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subscription for user %s: %w", userID, err)
	}

	if city.Valid {
		sub.City = &city.String
	}
	if expiresAt.Valid {
		sub.ExpiresAt = &expiresAt.Time
	}
	if changed.Valid {
		sub.Changed = &changed.Time
	}
	return &sub, nil
}

// Upsert writes a user's subscription, replacing any prior plan.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	now := time.Now().UTC()
	if sub.Created.IsZero() {
		sub.Created = now
	}
	sub.Changed = &now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, city, expires_at, created, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan = excluded.plan,
			city = excluded.city,
			expires_at = excluded.expires_at,
			changed = excluded.changed`,
		sub.ID, sub.UserID, sub.Plan, sub.City, sub.ExpiresAt, sub.Created, sub.Changed)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for user %s: %w", sub.UserID, err)
	}

	r.logger.Subscription().Info("Subscription written", "userId", sub.UserID, "plan", sub.Plan)
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription for user %s: %w", userID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	r.logger.Subscription().Info("Subscription deleted", "userId", userID)
	return nil
}
