package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/store"
)

const subscriptionColumns = `id, name, email, phone, locations, threshold, active, created_at, updated_at`

// CreateSubscription inserts a new active subscription and fills in its id and timestamps
func (db *DB) CreateSubscription(ctx context.Context, s *aqi.Subscription) error {
	now := time.Now().UTC()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Active = true
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (:id, :name, :email, :phone, :locations, :threshold, :active, :created_at, :updated_at)
	`
	if _, err := db.NamedExecContext(ctx, query, toSubscriptionRow(s)); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a subscription by id
func (db *DB) GetSubscription(ctx context.Context, id uuid.UUID) (aqi.Subscription, error) {
	var row subscriptionRow
	err := db.GetContext(ctx, &row, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return aqi.Subscription{}, store.ErrNotFound
	}
	if err != nil {
		return aqi.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return row.subscription(), nil
}

// UpdateSubscription replaces the recipient, locations and threshold of an
// active subscription
func (db *DB) UpdateSubscription(ctx context.Context, s *aqi.Subscription) error {
	s.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE subscriptions
		SET name = :name, email = :email, phone = :phone, locations = :locations,
		    threshold = :threshold, updated_at = :updated_at
		WHERE id = :id AND active = TRUE
	`
	res, err := db.NamedExecContext(ctx, query, toSubscriptionRow(s))
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return requireAffected(res)
}

// DeactivateSubscription marks a subscription inactive. Subscriptions are never deleted.
func (db *DB) DeactivateSubscription(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE subscriptions SET active = FALSE, updated_at = $2
		WHERE id = $1 AND active = TRUE
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	return requireAffected(res)
}

// ActiveSubscriptions returns the active subscriptions covering a location
func (db *DB) ActiveSubscriptions(ctx context.Context, locationID string) ([]aqi.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE active = TRUE AND locations @> $1
		ORDER BY created_at
	`

	var rows []subscriptionRow
	if err := db.SelectContext(ctx, &rows, query, pq.StringArray{locationID}); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	subs := make([]aqi.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.subscription())
	}
	return subs, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
