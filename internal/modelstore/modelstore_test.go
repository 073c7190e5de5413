package modelstore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/features"
	"github.com/smukkama/aqi-server/internal/predictor"
	"github.com/smukkama/aqi-server/internal/store"
)

var base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *store.MemoryStore, loc string, hours int) {
	t.Helper()
	for i := 0; i < hours; i++ {
		v := 110 + 35*math.Sin(2*math.Pi*float64(i%24)/24)
		require.NoError(t, s.Append(context.Background(), aqi.Reading{
			LocationID: loc,
			AQI:        v,
			PM25:       v * 0.4,
			PM10:       v * 0.7,
			CO:         240 + float64(i%5),
			NO2:        18,
			O3:         30 + float64(i%3),
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
}

func newTestTrainer(readings store.Readings, locations ...string) (*Trainer, *Registry) {
	registry := NewRegistry(NewMemoryMetadata(), NewMemoryArtifacts())
	var locs []aqi.Location
	for _, id := range locations {
		locs = append(locs, aqi.Location{ID: id, Lat: 20, Lon: 78})
	}
	trainer := NewTrainer(readings, registry, locs, 30*24*time.Hour, predictor.DefaultOptions())
	trainer.now = func() time.Time { return base.Add(21 * 24 * time.Hour) }
	return trainer, registry
}

func TestTrainer_TrainAllSavesModels(t *testing.T) {
	readings := store.NewMemoryStore()
	seed(t, readings, "delhi", 21*24)
	seed(t, readings, "pune", 3*24)

	trainer, registry := newTestTrainer(readings, "delhi", "pune")
	results := trainer.TrainAll(context.Background())
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, "delhi/"+results[0].Record.ID.String()+".json", results[0].Record.ArtifactKey)
	assert.Greater(t, results[0].Record.R2, 0.8)

	assert.True(t, results[1].Skipped)
	assert.NoError(t, results[1].Err)

	model, rec, err := registry.Latest(context.Background(), "delhi")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, model.ID)
	assert.Equal(t, features.SetID(), model.FeatureSetID)

	history, err := readings.Query(context.Background(), "delhi", base, base.Add(30*24*time.Hour))
	require.NoError(t, err)
	forecast, err := predictor.Forecast(model, history, 6)
	require.NoError(t, err)
	assert.Len(t, forecast, 6)

	_, _, err = registry.Latest(context.Background(), "pune")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegistry_LatestRejectsDriftedModel(t *testing.T) {
	meta := NewMemoryMetadata()
	registry := NewRegistry(meta, NewMemoryArtifacts())

	require.NoError(t, meta.SaveModelRecord(context.Background(), &database.ModelRecord{
		ID:           uuid.New(),
		LocationID:   "delhi",
		FeatureSetID: "00000000",
		ArtifactKey:  "delhi/old.json",
		TrainedAt:    base,
	}))

	_, _, err := registry.Latest(context.Background(), "delhi")
	assert.ErrorIs(t, err, predictor.ErrFeatureDrift)
}

func TestMemoryMetadata_LatestByTrainedAt(t *testing.T) {
	meta := NewMemoryMetadata()
	ctx := context.Background()

	newer := database.ModelRecord{ID: uuid.New(), LocationID: "delhi", TrainedAt: base.Add(time.Hour)}
	older := database.ModelRecord{ID: uuid.New(), LocationID: "delhi", TrainedAt: base}
	require.NoError(t, meta.SaveModelRecord(ctx, &newer))
	require.NoError(t, meta.SaveModelRecord(ctx, &older))

	got, err := meta.LatestModelRecord(ctx, "delhi")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}
