package database

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/store"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return &DB{sqlx.NewDb(conn, "postgres")}, mock
}

func TestAppend_NoReturnedRowIsDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	r := aqi.Reading{LocationID: "delhi", AQI: 120, Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}

	mock.ExpectQuery("INSERT INTO readings").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO readings").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	require.NoError(t, db.Append(context.Background(), r))
	assert.ErrorIs(t, db.Append(context.Background(), r), store.ErrDuplicateKey)
}

func TestAppend_QueryErrorIsNotDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO readings").WillReturnError(errors.New("connection reset"))

	err := db.Append(context.Background(), aqi.Reading{LocationID: "delhi", Timestamp: time.Now()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrDuplicateKey)
}

// readingJSON matches a JSONB argument carrying the given PM2.5
type readingJSON struct{ pm25 float64 }

func (m readingJSON) Match(v driver.Value) bool {
	data, ok := v.([]byte)
	if !ok {
		return false
	}
	var r aqi.Reading
	return json.Unmarshal(data, &r) == nil && r.PM25 == m.pm25
}

func TestInsertAlert_StoresReading(t *testing.T) {
	db, mock := newMockDB(t)
	r := aqi.Reading{LocationID: "delhi", AQI: 180, PM25: 96.5, Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	alert := aqi.NewAlert(r, aqi.TierHigh, time.Now())

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(alert.ID, "delhi", sqlmock.AnyArg(), 180.0, alert.Message, alert.ReadingAt, alert.CreatedAt, readingJSON{pm25: 96.5}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.InsertAlert(context.Background(), alert))
}

func TestListAlerts_DecodesReading(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	withReading := uuid.New()
	legacy := uuid.New()

	columns := []string{"id", "location_id", "tier", "aqi", "message", "reading_at", "created_at", "reading"}
	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs("delhi", at.Add(-time.Hour), at.Add(time.Hour), 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(withReading.String(), "delhi", int64(aqi.TierHigh), 180.0, "high", at, at, []byte(`{"pm2_5": 96.5, "pm10": 140}`)).
			AddRow(legacy.String(), "delhi", int64(aqi.TierMedium), 120.0, "medium", at.Add(-time.Minute), at, nil))

	alerts, err := db.ListAlerts(context.Background(), "delhi", at.Add(-time.Hour), at.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, withReading, alerts[0].ID)
	assert.Equal(t, aqi.TierHigh, alerts[0].Tier)
	assert.Equal(t, 96.5, alerts[0].Reading.PM25)
	assert.Equal(t, 140.0, alerts[0].Reading.PM10)

	assert.Equal(t, legacy, alerts[1].ID)
	assert.Zero(t, alerts[1].Reading)
}

func TestListDeliveries_AuditTrail(t *testing.T) {
	db, mock := newMockDB(t)
	alertID := uuid.New()
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	columns := []string{"id", "alert_id", "subscription_id", "channel", "recipient", "status", "error", "attempted_at"}
	mock.ExpectQuery("FROM deliveries").
		WithArgs(alertID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), alertID.String(), uuid.NewString(), "email", "a@example.com", DeliveryStatusSent, "", at))

	deliveries, err := db.ListDeliveries(context.Background(), alertID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "email", deliveries[0].Channel)
	assert.Equal(t, DeliveryStatusSent, deliveries[0].Status)
}
