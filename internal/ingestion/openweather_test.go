package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
)

var delhi = aqi.Location{ID: "delhi", Name: "Delhi", Lat: 28.6139, Lon: 77.2090}

const samplePayload = `{"coord":{"lon":77.209,"lat":28.6139},"list":[{"main":{"aqi":5},
"components":{"co":1200.5,"no":0.1,"no2":45.2,"o3":30.1,"so2":10,"pm2_5":95.4,"pm10":150.2,"nh3":12},
"dt":1767232800}]}`

func newTestProvider(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *OpenWeatherProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenWeatherProvider(OpenWeatherConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: timeout,
	})
}

func TestOpenWeatherProvider_Fetch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, currentPath, r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "28.6139", r.URL.Query().Get("lat"))
		w.Write([]byte(samplePayload))
	}, time.Second)

	reading, err := p.Fetch(context.Background(), delhi)
	require.NoError(t, err)

	assert.Equal(t, "delhi", reading.LocationID)
	assert.Equal(t, aqi.FromPM25(95.4), reading.AQI)
	assert.Equal(t, 5, reading.ProviderIndex)
	assert.Equal(t, 150.2, reading.PM10)
	assert.Equal(t, "openweather", reading.Source)
	assert.Equal(t, time.Unix(1767232800, 0).UTC().Truncate(time.Hour), reading.Timestamp)
}

func TestOpenWeatherProvider_Forecast(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, forecastPath, r.URL.Path)
		w.Write([]byte(`{"list":[
			{"main":{"aqi":2},"components":{"pm2_5":20},"dt":1767232800},
			{"main":{"aqi":3},"components":{"pm2_5":40},"dt":1767236400}]}`))
	}, time.Second)

	readings, err := p.Forecast(context.Background(), delhi)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.True(t, readings[1].Timestamp.After(readings[0].Timestamp))
}

func TestOpenWeatherProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"cod":401}`, false},
		{"forbidden", http.StatusForbidden, `{}`, false},
		{"bad location", http.StatusBadRequest, `{"cod":"400","message":"wrong latitude"}`, false},
		{"not found", http.StatusNotFound, `{}`, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, true},
		{"server error", http.StatusInternalServerError, `{}`, true},
		{"bad gateway", http.StatusBadGateway, `{}`, true},
		{"malformed payload", http.StatusOK, `{"list":`, false},
		{"empty payload", http.StatusOK, `{"list":[]}`, false},
		{"missing components", http.StatusOK, `{"list":[{"dt":1767232800}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, time.Second)

			_, err := p.Fetch(context.Background(), delhi)
			require.Error(t, err)

			var transient *TransientFetchError
			var permanent *PermanentFetchError
			if tt.transient {
				require.True(t, errors.As(err, &transient), "got %v", err)
			} else {
				require.True(t, errors.As(err, &permanent), "got %v", err)
			}
		})
	}
}

func TestOpenWeatherProvider_Timeout(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := p.Fetch(context.Background(), delhi)
	var transient *TransientFetchError
	require.True(t, errors.As(err, &transient), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenWeatherProvider_MissingKey(t *testing.T) {
	p := NewOpenWeatherProvider(OpenWeatherConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := p.Fetch(context.Background(), delhi)
	var permanent *PermanentFetchError
	require.True(t, errors.As(err, &permanent))
	assert.ErrorIs(t, err, errMissingKey)
}

func TestOpenWeatherProvider_InvalidLocation(t *testing.T) {
	p := NewOpenWeatherProvider(OpenWeatherConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})

	_, err := p.Fetch(context.Background(), aqi.Location{ID: "nowhere", Lat: 123})
	var permanent *PermanentFetchError
	assert.True(t, errors.As(err, &permanent))
}
