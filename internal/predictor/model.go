package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientHistory is returned when a training set does not cover
	// the minimum lag depth or has too few valid rows.
	ErrInsufficientHistory = errors.New("insufficient history to train model")

	// ErrFeatureDrift is returned when a vector was built with a feature list
	// other than the one the model was trained on.
	ErrFeatureDrift = errors.New("feature list does not match model")
)

// Metrics summarises a model's fit on a held-out set
type Metrics struct {
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	R2                float64 `json:"r2"`
	ToleranceAccuracy float64 `json:"tolerance_accuracy"`
	Tolerance         float64 `json:"tolerance"`
	Samples           int     `json:"samples"`
}

// TrainedModel is a fitted ridge regression for one location. Models are
// never mutated; a new training run produces a new model that supersedes it.
type TrainedModel struct {
	ID           uuid.UUID `json:"id"`
	LocationID   string    `json:"location_id"`
	FeatureSetID string    `json:"feature_set_id"`
	FeatureNames []string  `json:"feature_names"`

	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	Lambda       float64   `json:"lambda"`

	// ResidualStd is the training residual spread, used for prediction intervals
	ResidualStd float64 `json:"residual_std"`

	TrainedAt    time.Time `json:"trained_at"`
	TrainedFrom  time.Time `json:"trained_from"`
	TrainedTo    time.Time `json:"trained_to"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	Metrics      Metrics   `json:"metrics"`
}

// Prediction is a point estimate with a ~95% interval
type Prediction struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Marshal serialises the model artifact
func (m *TrainedModel) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a model artifact and checks that its shape is consistent
func Unmarshal(data []byte) (*TrainedModel, error) {
	var m TrainedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	n := len(m.FeatureNames)
	if len(m.Coefficients) != n || len(m.Means) != n || len(m.Scales) != n {
		return nil, fmt.Errorf("model %s: parameter shape does not match %d features", m.ID, n)
	}
	return &m, nil
}
