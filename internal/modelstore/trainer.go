package modelstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/predictor"
	"github.com/smukkama/aqi-server/internal/store"
)

// TrainResult is the outcome of training one location
type TrainResult struct {
	LocationID string
	Record     database.ModelRecord
	Skipped    bool // not enough history yet
	Err        error
}

// Trainer retrains every location's model from the historical store. It
// only reads readings, so it can run while ingestion is writing.
type Trainer struct {
	readings  store.Readings
	registry  *Registry
	locations []aqi.Location
	lookback  time.Duration
	opts      predictor.Options
	now       func() time.Time
	log       *slog.Logger
}

// NewTrainer creates a trainer. lookback bounds how much history is used.
func NewTrainer(readings store.Readings, registry *Registry, locations []aqi.Location, lookback time.Duration, opts predictor.Options) *Trainer {
	if lookback < predictor.MinHistory {
		lookback = 30 * 24 * time.Hour
	}
	return &Trainer{
		readings:  readings,
		registry:  registry,
		locations: locations,
		lookback:  lookback,
		opts:      opts,
		now:       time.Now,
		log:       slog.With("component", "trainer"),
	}
}

// TrainAll trains each location in turn. One failing location does not stop the rest.
func (t *Trainer) TrainAll(ctx context.Context) []TrainResult {
	results := make([]TrainResult, 0, len(t.locations))
	for _, loc := range t.locations {
		if ctx.Err() != nil {
			results = append(results, TrainResult{LocationID: loc.ID, Err: ctx.Err()})
			continue
		}
		results = append(results, t.TrainLocation(ctx, loc.ID))
	}
	return results
}

// TrainLocation trains and saves one location's model
func (t *Trainer) TrainLocation(ctx context.Context, locationID string) TrainResult {
	log := t.log.With("location", locationID)
	result := TrainResult{LocationID: locationID}

	to := t.now().UTC()
	history, err := t.readings.Query(ctx, locationID, to.Add(-t.lookback), to)
	if err != nil {
		log.Error("failed to load history", "error", err)
		result.Err = err
		return result
	}

	model, err := predictor.TrainFromReadings(locationID, history, t.opts)
	if errors.Is(err, predictor.ErrInsufficientHistory) {
		log.Info("skipping training", "reason", err.Error(), "readings", len(history))
		result.Skipped = true
		return result
	}
	if err != nil {
		log.Error("training failed", "error", err)
		result.Err = err
		return result
	}

	rec, err := t.registry.Save(ctx, model)
	if err != nil {
		log.Error("failed to save model", "error", err)
		result.Err = err
		return result
	}

	log.Info("model trained",
		"model_id", rec.ID,
		"rmse", rec.RMSE,
		"r2", rec.R2,
		"accuracy", rec.Accuracy,
		"train_samples", rec.TrainSamples,
	)
	result.Record = rec
	return result
}
