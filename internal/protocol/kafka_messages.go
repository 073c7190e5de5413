package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// ReadingMessage is published by the collector after a reading is stored
type ReadingMessage struct {
	RunID    string      `json:"run_id"`
	StoredAt time.Time   `json:"stored_at"`
	Reading  aqi.Reading `json:"reading"`
}

// AlertEvent is published by the alerting service for the notification service
type AlertEvent struct {
	Type       string    `json:"type"` // ALERT_TRIGGERED
	AlertID    uuid.UUID `json:"alert_id"`
	LocationID string    `json:"location_id"`
	Tier       aqi.Tier  `json:"tier"`
	AQI        float64   `json:"aqi"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	ReadingAt  time.Time `json:"reading_at"`
	CreatedAt  time.Time `json:"created_at"`
	// Reading is the observation that raised the alert. Events published
	// before it was carried decode with a zero reading.
	Reading aqi.Reading `json:"reading"`
}

const (
	AlertTypeTriggered = "ALERT_TRIGGERED"
)

// NewAlertEvent converts a stored alert into its wire form
func NewAlertEvent(a *aqi.Alert) *AlertEvent {
	return &AlertEvent{
		Type:       AlertTypeTriggered,
		AlertID:    a.ID,
		LocationID: a.LocationID,
		Tier:       a.Tier,
		AQI:        a.AQI,
		Category:   aqi.CategoryFor(a.AQI).Name,
		Message:    a.Message,
		ReadingAt:  a.ReadingAt,
		CreatedAt:  a.CreatedAt,
		Reading:    a.Reading,
	}
}

// Alert converts the event back into the domain alert
func (e *AlertEvent) Alert() *aqi.Alert {
	return &aqi.Alert{
		ID:         e.AlertID,
		LocationID: e.LocationID,
		Tier:       e.Tier,
		AQI:        e.AQI,
		Message:    e.Message,
		ReadingAt:  e.ReadingAt,
		CreatedAt:  e.CreatedAt,
		Reading:    e.Reading,
	}
}

// EncodeReadingMessage encodes a ReadingMessage to JSON
func EncodeReadingMessage(msg *ReadingMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeReadingMessage decodes and validates a ReadingMessage
func DecodeReadingMessage(data []byte) (*ReadingMessage, error) {
	var msg ReadingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Reading.LocationID == "" {
		return nil, fmt.Errorf("reading message without location id")
	}
	if msg.Reading.Timestamp.IsZero() {
		return nil, fmt.Errorf("reading message without timestamp")
	}
	return &msg, nil
}

// EncodeAlertEvent encodes an AlertEvent to JSON
func EncodeAlertEvent(event *AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeAlertEvent decodes and validates an AlertEvent
func DecodeAlertEvent(data []byte) (*AlertEvent, error) {
	var event AlertEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Type != AlertTypeTriggered {
		return nil, fmt.Errorf("unknown alert event type: %s", event.Type)
	}
	if event.AlertID == uuid.Nil {
		return nil, fmt.Errorf("alert event without id")
	}
	return &event, nil
}
