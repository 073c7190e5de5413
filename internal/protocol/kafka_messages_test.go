package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
)

func TestDecodeReadingMessage_Validation(t *testing.T) {
	_, err := DecodeReadingMessage([]byte(`{"reading":{"timestamp":"2026-01-01T00:00:00Z"}}`))
	assert.Error(t, err)

	_, err = DecodeReadingMessage([]byte(`{"reading":{"location_id":"delhi"}}`))
	assert.Error(t, err)

	_, err = DecodeReadingMessage([]byte(`not json`))
	assert.Error(t, err)

	msg, err := DecodeReadingMessage([]byte(`{"run_id":"r1","reading":{"location_id":"delhi","aqi":140,"timestamp":"2026-01-01T00:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, "delhi", msg.Reading.LocationID)
	assert.Equal(t, 140.0, msg.Reading.AQI)
}

func TestAlertEvent_CarriesTierAndCategory(t *testing.T) {
	r := aqi.Reading{LocationID: "delhi", AQI: 230, Timestamp: time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)}
	alert := aqi.NewAlert(r, aqi.TierVeryHigh, time.Date(2026, 1, 1, 5, 1, 0, 0, time.UTC))

	data, err := EncodeAlertEvent(NewAlertEvent(alert))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tier":"very_high"`)
	assert.Contains(t, string(data), `"category":"Very Unhealthy"`)

	event, err := DecodeAlertEvent(data)
	require.NoError(t, err)
	back := event.Alert()
	assert.Equal(t, alert.ID, back.ID)
	assert.Equal(t, aqi.TierVeryHigh, back.Tier)
	assert.True(t, alert.ReadingAt.Equal(back.ReadingAt))

	_, err = DecodeAlertEvent([]byte(`{"type":"ALARM_CLEARED"}`))
	assert.Error(t, err)
}

func TestAlertEvent_CarriesReading(t *testing.T) {
	r := aqi.Reading{
		LocationID: "delhi",
		AQI:        190,
		PM25:       96.5,
		PM10:       150,
		CO:         410,
		NO2:        38,
		O3:         52,
		Timestamp:  time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC),
		Source:     "openweather",
	}
	alert := aqi.NewAlert(r, aqi.TierHigh, time.Date(2026, 1, 1, 5, 1, 0, 0, time.UTC))

	data, err := EncodeAlertEvent(NewAlertEvent(alert))
	require.NoError(t, err)

	event, err := DecodeAlertEvent(data)
	require.NoError(t, err)
	assert.Equal(t, r, event.Alert().Reading)

	// events from before the reading was carried still decode
	legacy := `{"type":"ALERT_TRIGGERED","alert_id":"` + alert.ID.String() + `","location_id":"delhi","tier":"high","aqi":190,"reading_at":"2026-01-01T05:00:00Z"}`
	event, err = DecodeAlertEvent([]byte(legacy))
	require.NoError(t, err)
	assert.Zero(t, event.Alert().Reading)
}
