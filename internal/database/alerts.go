package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// alertRow is an alert with its triggering reading as JSONB
type alertRow struct {
	aqi.Alert
	ReadingJSON types.NullJSONText `db:"reading"`
}

func newAlertRow(a *aqi.Alert) (alertRow, error) {
	row := alertRow{Alert: *a}
	if a.Reading.Timestamp.IsZero() {
		return row, nil
	}
	data, err := json.Marshal(a.Reading)
	if err != nil {
		return row, fmt.Errorf("failed to marshal alert reading: %w", err)
	}
	row.ReadingJSON = types.NullJSONText{JSONText: data, Valid: true}
	return row, nil
}

func (r alertRow) alert() (aqi.Alert, error) {
	a := r.Alert
	if r.ReadingJSON.Valid {
		if err := r.ReadingJSON.Unmarshal(&a.Reading); err != nil {
			return a, fmt.Errorf("failed to decode reading of alert %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// InsertAlert stores an alert. Inserting an id that already exists is a no-op.
func (db *DB) InsertAlert(ctx context.Context, alert *aqi.Alert) error {
	row, err := newAlertRow(alert)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (id, location_id, tier, aqi, message, reading_at, created_at, reading)
		VALUES (:id, :location_id, :tier, :aqi, :message, :reading_at, :created_at, :reading)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts for a location raised from readings in
// [from, to), newest first
func (db *DB) ListAlerts(ctx context.Context, locationID string, from, to time.Time, limit int) ([]aqi.Alert, error) {
	query := `
		SELECT id, location_id, tier, aqi, message, reading_at, created_at, reading
		FROM alerts
		WHERE location_id = $1 AND reading_at >= $2 AND reading_at < $3
		ORDER BY reading_at DESC
		LIMIT $4
	`

	var rows []alertRow
	if err := db.SelectContext(ctx, &rows, query, locationID, from.UTC(), to.UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	alerts := make([]aqi.Alert, 0, len(rows))
	for _, row := range rows {
		a, err := row.alert()
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
