package modelstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/features"
	"github.com/smukkama/aqi-server/internal/predictor"
	"github.com/smukkama/aqi-server/internal/store"
)

// MetadataStore holds model metadata rows
type MetadataStore interface {
	SaveModelRecord(ctx context.Context, m *database.ModelRecord) error
	LatestModelRecord(ctx context.Context, locationID string) (database.ModelRecord, error)
}

// Registry saves and loads trained models
type Registry struct {
	meta      MetadataStore
	artifacts ArtifactStore
}

// NewRegistry creates a registry over a metadata store and an artifact store
func NewRegistry(meta MetadataStore, artifacts ArtifactStore) *Registry {
	return &Registry{meta: meta, artifacts: artifacts}
}

// ArtifactKey is the object key a model artifact is stored under
func ArtifactKey(m *predictor.TrainedModel) string {
	return fmt.Sprintf("%s/%s.json", m.LocationID, m.ID)
}

// Save uploads the artifact, then records its metadata. A model is only
// visible once both writes have succeeded.
func (r *Registry) Save(ctx context.Context, m *predictor.TrainedModel) (database.ModelRecord, error) {
	data, err := m.Marshal()
	if err != nil {
		return database.ModelRecord{}, fmt.Errorf("failed to encode model: %w", err)
	}

	key := ArtifactKey(m)
	if err := r.artifacts.Put(ctx, key, data); err != nil {
		return database.ModelRecord{}, err
	}

	rec := database.ModelRecord{
		ID:           m.ID,
		LocationID:   m.LocationID,
		FeatureSetID: m.FeatureSetID,
		ArtifactKey:  key,
		RMSE:         m.Metrics.RMSE,
		MAE:          m.Metrics.MAE,
		R2:           m.Metrics.R2,
		Accuracy:     m.Metrics.ToleranceAccuracy,
		TrainSamples: m.TrainSamples,
		TestSamples:  m.TestSamples,
		TrainedFrom:  m.TrainedFrom,
		TrainedTo:    m.TrainedTo,
		TrainedAt:    m.TrainedAt,
	}
	if err := r.meta.SaveModelRecord(ctx, &rec); err != nil {
		return database.ModelRecord{}, err
	}
	return rec, nil
}

// Latest loads the newest model for a location. A model built on another
// feature list is reported as predictor.ErrFeatureDrift.
func (r *Registry) Latest(ctx context.Context, locationID string) (*predictor.TrainedModel, database.ModelRecord, error) {
	rec, err := r.meta.LatestModelRecord(ctx, locationID)
	if err != nil {
		return nil, database.ModelRecord{}, err
	}
	if rec.FeatureSetID != features.SetID() {
		return nil, rec, fmt.Errorf("%w: model %s uses %s", predictor.ErrFeatureDrift, rec.ID, rec.FeatureSetID)
	}

	data, err := r.artifacts.Get(ctx, rec.ArtifactKey)
	if err != nil {
		return nil, rec, err
	}
	m, err := predictor.Unmarshal(data)
	if err != nil {
		return nil, rec, err
	}
	return m, rec, nil
}

// MemoryMetadata is an in-process MetadataStore
type MemoryMetadata struct {
	mu      sync.RWMutex
	records map[string][]database.ModelRecord
}

// NewMemoryMetadata creates an empty MemoryMetadata
func NewMemoryMetadata() *MemoryMetadata {
	return &MemoryMetadata{records: make(map[string][]database.ModelRecord)}
}

func (m *MemoryMetadata) SaveModelRecord(ctx context.Context, rec *database.ModelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.records[rec.LocationID], *rec)
	sort.SliceStable(list, func(i, j int) bool { return list[i].TrainedAt.Before(list[j].TrainedAt) })
	m.records[rec.LocationID] = list
	return nil
}

func (m *MemoryMetadata) LatestModelRecord(ctx context.Context, locationID string) (database.ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.records[locationID]
	if len(list) == 0 {
		return database.ModelRecord{}, store.ErrNotFound
	}
	return list[len(list)-1], nil
}
