package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/store"
)

// GoodAirLimit is the highest daily mean AQI that still counts as a good air day
const GoodAirLimit = 50

// SummaryWriter stores daily summaries
type SummaryWriter interface {
	UpsertDailySummary(ctx context.Context, s *database.DailySummary) error
}

// Summarize rolls one day of readings into a summary. It reports false when
// there are no readings.
func Summarize(locationID string, day time.Time, readings []aqi.Reading) (database.DailySummary, bool) {
	if len(readings) == 0 {
		return database.DailySummary{}, false
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.AQI
	}
	mean := stat.Mean(values, nil)

	return database.DailySummary{
		LocationID:  locationID,
		Day:         day,
		MinAQI:      floats.Min(values),
		AvgAQI:      mean,
		MaxAQI:      floats.Max(values),
		SampleCount: len(values),
		GoodAir:     mean <= GoodAirLimit,
	}, true
}

// DailyAggregator performs daily aggregation
type DailyAggregator struct {
	readings  store.Readings
	writer    SummaryWriter
	locations []aqi.Location
	now       func() time.Time
}

// NewDailyAggregator creates a new daily aggregator
func NewDailyAggregator(readings store.Readings, writer SummaryWriter, locations []aqi.Location) *DailyAggregator {
	return &DailyAggregator{
		readings:  readings,
		writer:    writer,
		locations: locations,
		now:       time.Now,
	}
}

// Aggregate summarises the UTC day containing targetDate for every location.
// Re-running a day replaces its summaries.
func (d *DailyAggregator) Aggregate(ctx context.Context, targetDate time.Time) (int, error) {
	day := targetDate.UTC().Truncate(24 * time.Hour)
	log := slog.With("component", "aggregator", "day", day.Format("2006-01-02"))

	written := 0
	var firstErr error
	for _, loc := range d.locations {
		readings, err := d.readings.Query(ctx, loc.ID, day, day.Add(24*time.Hour))
		if err != nil {
			log.Error("failed to load readings", "location", loc.ID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", loc.ID, err)
			}
			continue
		}

		summary, ok := Summarize(loc.ID, day, readings)
		if !ok {
			log.Info("no readings for day", "location", loc.ID)
			continue
		}
		if err := d.writer.UpsertDailySummary(ctx, &summary); err != nil {
			log.Error("failed to store summary", "location", loc.ID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", loc.ID, err)
			}
			continue
		}
		written++
	}

	log.Info("daily aggregation completed", "locations", written)
	return written, firstErr
}

// AggregatePreviousDay aggregates the previous full UTC day
func (d *DailyAggregator) AggregatePreviousDay(ctx context.Context) (int, error) {
	return d.Aggregate(ctx, d.now().UTC().AddDate(0, 0, -1))
}
