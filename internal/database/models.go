package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// Delivery statuses
const (
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
	DeliveryStatusSkipped = "skipped"
)

// Delivery is the audit row for one notification attempt
type Delivery struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AlertID        uuid.UUID `db:"alert_id" json:"alert_id"`
	SubscriptionID uuid.UUID `db:"subscription_id" json:"subscription_id"`
	Channel        string    `db:"channel" json:"channel"`
	Recipient      string    `db:"recipient" json:"recipient"`
	Status         string    `db:"status" json:"status"`
	Error          string    `db:"error" json:"error,omitempty"`
	AttemptedAt    time.Time `db:"attempted_at" json:"attempted_at"`
}

// ModelRecord is the metadata of a trained model. The artifact itself lives
// in object storage under ArtifactKey.
type ModelRecord struct {
	ID           uuid.UUID `db:"id" json:"id"`
	LocationID   string    `db:"location_id" json:"location_id"`
	FeatureSetID string    `db:"feature_set_id" json:"feature_set_id"`
	ArtifactKey  string    `db:"artifact_key" json:"artifact_key"`
	RMSE         float64   `db:"rmse" json:"rmse"`
	MAE          float64   `db:"mae" json:"mae"`
	R2           float64   `db:"r2" json:"r2"`
	Accuracy     float64   `db:"accuracy" json:"accuracy"`
	TrainSamples int       `db:"train_samples" json:"train_samples"`
	TestSamples  int       `db:"test_samples" json:"test_samples"`
	TrainedFrom  time.Time `db:"trained_from" json:"trained_from"`
	TrainedTo    time.Time `db:"trained_to" json:"trained_to"`
	TrainedAt    time.Time `db:"trained_at" json:"trained_at"`
}

// DailySummary is the per-location daily AQI rollup
type DailySummary struct {
	LocationID  string    `db:"location_id" json:"location_id"`
	Day         time.Time `db:"day" json:"day"`
	MinAQI      float64   `db:"min_aqi" json:"min_aqi"`
	AvgAQI      float64   `db:"avg_aqi" json:"avg_aqi"`
	MaxAQI      float64   `db:"max_aqi" json:"max_aqi"`
	SampleCount int       `db:"sample_count" json:"sample_count"`
	GoodAir     bool      `db:"good_air" json:"good_air"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type subscriptionRow struct {
	ID        uuid.UUID      `db:"id"`
	Name      string         `db:"name"`
	Email     string         `db:"email"`
	Phone     string         `db:"phone"`
	Locations pq.StringArray `db:"locations"`
	Threshold aqi.Tier       `db:"threshold"`
	Active    bool           `db:"active"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func toSubscriptionRow(s *aqi.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Phone:     s.Phone,
		Locations: pq.StringArray(s.Locations),
		Threshold: s.Threshold,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (r subscriptionRow) subscription() aqi.Subscription {
	return aqi.Subscription{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Locations: []string(r.Locations),
		Threshold: r.Threshold,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
