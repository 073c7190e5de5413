package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/store"
)

func TestMigrationNames_Ordered(t *testing.T) {
	names, err := migrationNames(migrationFiles)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, []string{"001_init.sql", "002_alert_reading.sql"}, names[:2])
	assert.IsNonDecreasing(t, names)
}

func TestSubscriptionRow_RoundTrip(t *testing.T) {
	s := aqi.Subscription{
		ID:        uuid.New(),
		Name:      "Asha",
		Email:     "asha@example.com",
		Locations: []string{"delhi", "pune"},
		Threshold: aqi.TierHigh,
		Active:    true,
	}

	row := toSubscriptionRow(&s)
	assert.Equal(t, []string{"delhi", "pune"}, []string(row.Locations))
	assert.Equal(t, s, row.subscription())
}

// openTestDB connects to the database named by AQI_TEST_DATABASE_URL
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("AQI_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AQI_TEST_DATABASE_URL not set")
	}
	db, err := Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background()))
	return db
}

func TestDB_AppendRejectsDuplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	loc := "test-" + uuid.NewString()
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r := aqi.Reading{LocationID: loc, AQI: 120, PM25: 70, Timestamp: ts, Source: "test"}

	require.NoError(t, db.Append(ctx, r))
	assert.ErrorIs(t, db.Append(ctx, r), store.ErrDuplicateKey)

	require.NoError(t, db.Append(ctx, aqi.Reading{LocationID: loc, AQI: 90, Timestamp: ts.Add(-time.Hour), Source: "test"}))

	readings, err := db.Query(ctx, loc, ts.Add(-2*time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.True(t, readings[0].Timestamp.Before(readings[1].Timestamp))

	latest, err := db.Latest(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, ts, latest.Timestamp)
}

func TestDB_AlertInsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	loc := "test-" + uuid.NewString()
	r := aqi.Reading{LocationID: loc, AQI: 180, Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	alert := aqi.NewAlert(r, aqi.TierHigh, time.Now())

	require.NoError(t, db.InsertAlert(ctx, alert))
	require.NoError(t, db.InsertAlert(ctx, alert))

	alerts, err := db.ListAlerts(ctx, loc, r.Timestamp.Add(-time.Hour), r.Timestamp.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, aqi.TierHigh, alerts[0].Tier)
	assert.Equal(t, 180.0, alerts[0].Reading.AQI)
}

func TestDB_SubscriptionLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	loc := "test-" + uuid.NewString()
	s := &aqi.Subscription{Name: "Ravi", Email: "ravi@example.com", Locations: []string{loc}, Threshold: aqi.TierMedium}
	require.NoError(t, db.CreateSubscription(ctx, s))

	active, err := db.ActiveSubscriptions(ctx, loc)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, db.DeactivateSubscription(ctx, s.ID))
	assert.ErrorIs(t, db.DeactivateSubscription(ctx, s.ID), store.ErrNotFound)

	active, err = db.ActiveSubscriptions(ctx, loc)
	require.NoError(t, err)
	assert.Empty(t, active)

	got, err := db.GetSubscription(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}
