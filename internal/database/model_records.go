package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smukkama/aqi-server/internal/store"
)

// SaveModelRecord stores the metadata of a trained model
func (db *DB) SaveModelRecord(ctx context.Context, m *ModelRecord) error {
	query := `
		INSERT INTO models (
			id, location_id, feature_set_id, artifact_key, rmse, mae, r2, accuracy,
			train_samples, test_samples, trained_from, trained_to, trained_at
		) VALUES (
			:id, :location_id, :feature_set_id, :artifact_key, :rmse, :mae, :r2, :accuracy,
			:train_samples, :test_samples, :trained_from, :trained_to, :trained_at
		)`
	if _, err := db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to save model record: %w", err)
	}
	return nil
}

// LatestModelRecord returns the most recently trained model for a location
func (db *DB) LatestModelRecord(ctx context.Context, locationID string) (ModelRecord, error) {
	var m ModelRecord
	err := db.GetContext(ctx, &m, `
		SELECT id, location_id, feature_set_id, artifact_key, rmse, mae, r2, accuracy,
		       train_samples, test_samples, trained_from, trained_to, trained_at
		FROM models
		WHERE location_id = $1
		ORDER BY trained_at DESC
		LIMIT 1
	`, locationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, store.ErrNotFound
	}
	if err != nil {
		return ModelRecord{}, fmt.Errorf("failed to get model record: %w", err)
	}
	return m, nil
}
