package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/store"
)

type memoryWriter struct {
	summaries map[string]database.DailySummary
}

func (m *memoryWriter) UpsertDailySummary(ctx context.Context, s *database.DailySummary) error {
	m.summaries[s.LocationID+"/"+s.Day.Format("2006-01-02")] = *s
	return nil
}

func TestSummarize(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	readings := []aqi.Reading{{AQI: 30}, {AQI: 60}, {AQI: 45}}

	s, ok := Summarize("delhi", day, readings)
	require.True(t, ok)
	assert.Equal(t, 30.0, s.MinAQI)
	assert.Equal(t, 60.0, s.MaxAQI)
	assert.Equal(t, 45.0, s.AvgAQI)
	assert.Equal(t, 3, s.SampleCount)
	assert.True(t, s.GoodAir)

	_, ok = Summarize("delhi", day, nil)
	assert.False(t, ok)
}

func TestDailyAggregator_PreviousDay(t *testing.T) {
	readings := store.NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 30; h++ {
		require.NoError(t, readings.Append(ctx, aqi.Reading{
			LocationID: "delhi",
			AQI:        100 + float64(h),
			Timestamp:  day.Add(time.Duration(h) * time.Hour),
		}))
	}

	writer := &memoryWriter{summaries: map[string]database.DailySummary{}}
	agg := NewDailyAggregator(readings, writer, []aqi.Location{{ID: "delhi"}, {ID: "pune"}})
	agg.now = func() time.Time { return day.Add(36 * time.Hour) }

	n, err := agg.AggregatePreviousDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, ok := writer.summaries["delhi/2026-01-05"]
	require.True(t, ok)
	assert.Equal(t, 24, s.SampleCount)
	assert.Equal(t, 100.0, s.MinAQI)
	assert.Equal(t, 123.0, s.MaxAQI)
	assert.False(t, s.GoodAir)
}
