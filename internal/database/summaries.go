package database

import (
	"context"
	"fmt"
	"time"
)

// UpsertDailySummary stores or replaces the summary for a location and day
func (db *DB) UpsertDailySummary(ctx context.Context, s *DailySummary) error {
	query := `
		INSERT INTO daily_summaries (location_id, day, min_aqi, avg_aqi, max_aqi, sample_count, good_air)
		VALUES (:location_id, :day, :min_aqi, :avg_aqi, :max_aqi, :sample_count, :good_air)
		ON CONFLICT (location_id, day) DO UPDATE
		SET min_aqi = EXCLUDED.min_aqi,
		    avg_aqi = EXCLUDED.avg_aqi,
		    max_aqi = EXCLUDED.max_aqi,
		    sample_count = EXCLUDED.sample_count,
		    good_air = EXCLUDED.good_air,
		    created_at = CURRENT_TIMESTAMP
	`
	if _, err := db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return nil
}

// ListDailySummaries returns summaries for days in [from, to), oldest first
func (db *DB) ListDailySummaries(ctx context.Context, locationID string, from, to time.Time) ([]DailySummary, error) {
	summaries := []DailySummary{}
	err := db.SelectContext(ctx, &summaries, `
		SELECT location_id, day, min_aqi, avg_aqi, max_aqi, sample_count, good_air, created_at
		FROM daily_summaries
		WHERE location_id = $1 AND day >= $2 AND day < $3
		ORDER BY day
	`, locationID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}
	return summaries, nil
}
