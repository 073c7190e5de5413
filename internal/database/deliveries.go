package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordDelivery stores the outcome of one delivery attempt. A later attempt
// for the same alert, subscription and channel overwrites an earlier failure
// but never a success.
func (db *DB) RecordDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	query := `
		INSERT INTO deliveries (id, alert_id, subscription_id, channel, recipient, status, error, attempted_at)
		VALUES (:id, :alert_id, :subscription_id, :channel, :recipient, :status, :error, :attempted_at)
		ON CONFLICT (alert_id, subscription_id, channel) DO UPDATE
		SET status = EXCLUDED.status,
		    error = EXCLUDED.error,
		    recipient = EXCLUDED.recipient,
		    attempted_at = EXCLUDED.attempted_at
		WHERE deliveries.status <> 'sent'
	`
	if _, err := db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// WasDelivered reports whether the alert already reached the subscription on channel
func (db *DB) WasDelivered(ctx context.Context, alertID, subscriptionID uuid.UUID, channel string) (bool, error) {
	var sent bool
	err := db.GetContext(ctx, &sent, `
		SELECT EXISTS (
			SELECT 1 FROM deliveries
			WHERE alert_id = $1 AND subscription_id = $2 AND channel = $3 AND status = 'sent'
		)`, alertID, subscriptionID, channel)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return sent, nil
}

// ListDeliveries returns the audit trail of an alert
func (db *DB) ListDeliveries(ctx context.Context, alertID uuid.UUID) ([]Delivery, error) {
	deliveries := []Delivery{}
	err := db.SelectContext(ctx, &deliveries, `
		SELECT id, alert_id, subscription_id, channel, recipient, status, error, attempted_at
		FROM deliveries
		WHERE alert_id = $1
		ORDER BY attempted_at
	`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}
