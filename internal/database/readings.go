package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/store"
)

var _ store.Readings = (*DB)(nil)

const readingColumns = `location_id, lat, lon, aqi, provider_index, pm25, pm10, co, no2, o3, observed_at, source`

// Append inserts a reading. A reading already stored for the same location
// and observation time is rejected with store.ErrDuplicateKey.
func (db *DB) Append(ctx context.Context, r aqi.Reading) error {
	query := `
		INSERT INTO readings (` + readingColumns + `)
		VALUES (:location_id, :lat, :lon, :aqi, :provider_index, :pm25, :pm10, :co, :no2, :o3, :observed_at, :source)
		ON CONFLICT (location_id, observed_at) DO NOTHING
		RETURNING id
	`

	r.Timestamp = r.Timestamp.UTC()
	rows, err := db.NamedQueryContext(ctx, query, r)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
		return store.ErrDuplicateKey
	}
	return nil
}

// Query returns readings for a location with from <= observed_at < to, oldest first
func (db *DB) Query(ctx context.Context, locationID string, from, to time.Time) ([]aqi.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE location_id = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY observed_at ASC
	`

	readings := []aqi.Reading{}
	if err := db.SelectContext(ctx, &readings, query, locationID, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.UTC()
	}
	return readings, nil
}

// Latest returns the most recent reading for a location
func (db *DB) Latest(ctx context.Context, locationID string) (aqi.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings
		WHERE location_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	var r aqi.Reading
	err := db.GetContext(ctx, &r, query, locationID)
	if errors.Is(err, sql.ErrNoRows) {
		return aqi.Reading{}, store.ErrNotFound
	}
	if err != nil {
		return aqi.Reading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}
