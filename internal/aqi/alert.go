package aqi

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// alertNamespace scopes deterministic alert ids
var alertNamespace = uuid.MustParse("6f1c2a8e-4d0b-4b7e-9a51-3f2d8c7e1b90")

// Alert is one severity-crossing event. Alerts are immutable and never deleted.
type Alert struct {
	ID         uuid.UUID `json:"id" db:"id"`
	LocationID string    `json:"location_id" db:"location_id"`
	Tier       Tier      `json:"tier" db:"tier"`
	AQI        float64   `json:"aqi" db:"aqi"`
	Message    string    `json:"message" db:"message"`
	ReadingAt  time.Time `json:"reading_at" db:"reading_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	Reading    Reading   `json:"reading" db:"-"`
}

// NewAlert builds the alert for a reading that crossed into tier. The id is
// derived from (location, tier, reading time) so re-evaluating the same
// reading yields the same alert.
func NewAlert(r Reading, tier Tier, now time.Time) *Alert {
	key := fmt.Sprintf("%s|%s|%d", r.LocationID, tier, r.Timestamp.Unix())
	return &Alert{
		ID:         uuid.NewSHA1(alertNamespace, []byte(key)),
		LocationID: r.LocationID,
		Tier:       tier,
		AQI:        r.AQI,
		Message: fmt.Sprintf("AQI %.0f (%s) at %s. %s",
			r.AQI, CategoryFor(r.AQI).Name, r.LocationID, tier.Message()),
		ReadingAt: r.Timestamp,
		CreatedAt: now.UTC(),
		Reading:   r,
	}
}

// Subscription is a recipient's notification preference. Subscriptions are
// deactivated, never deleted.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Locations []string  `json:"locations"`
	Threshold Tier      `json:"threshold"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matches reports whether the subscription should receive alert
func (s Subscription) Matches(a *Alert) bool {
	if !s.Active || a.Tier < s.Threshold || a.Tier == TierNone {
		return false
	}
	for _, loc := range s.Locations {
		if loc == a.LocationID {
			return true
		}
	}
	return false
}
