package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/smukkama/aqi-server/internal/aqi"
)

const (
	openWeatherName    = "openweather"
	defaultBaseURL     = "https://api.openweathermap.org"
	currentPath        = "/data/2.5/air_pollution"
	forecastPath       = "/data/2.5/air_pollution/forecast"
	maxResponseBytes   = 1 << 20
	defaultHTTPTimeout = 10 * time.Second
)

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errMissingKey   = errors.New("api key is not configured")
	errEmptyPayload = errors.New("payload has no readings")
)

// OpenWeatherConfig configures the OpenWeather air pollution client
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// OpenWeatherProvider fetches current and forecast air pollution from
// OpenWeather and normalises PM2.5 to the Indian AQI scale.
type OpenWeatherProvider struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewOpenWeatherProvider creates a provider guarded by a circuit breaker
func NewOpenWeatherProvider(cfg OpenWeatherConfig) *OpenWeatherProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        openWeatherName,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  cfg.Client,
		circuit: cb,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return openWeatherName
}

// Fetch returns the current reading for loc
func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc aqi.Location) (aqi.Reading, error) {
	readings, err := p.get(ctx, currentPath, loc)
	if err != nil {
		return aqi.Reading{}, err
	}
	return readings[0], nil
}

// Forecast returns the provider's hourly forecast for loc
func (p *OpenWeatherProvider) Forecast(ctx context.Context, loc aqi.Location) ([]aqi.Reading, error) {
	return p.get(ctx, forecastPath, loc)
}

type rawResponse struct {
	status int
	body   []byte
}

type pollutionPayload struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components *struct {
			CO   float64 `json:"co"`
			NO2  float64 `json:"no2"`
			O3   float64 `json:"o3"`
			PM25 float64 `json:"pm2_5"`
			PM10 float64 `json:"pm10"`
		} `json:"components"`
	} `json:"list"`
}

func (p *OpenWeatherProvider) get(ctx context.Context, path string, loc aqi.Location) ([]aqi.Reading, error) {
	if p.apiKey == "" {
		return nil, p.permanent(loc, 0, errMissingKey)
	}
	if err := loc.Validate(); err != nil {
		return nil, p.permanent(loc, 0, err)
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
	values.Set("lon", strconv.FormatFloat(loc.Lon, 'f', 4, 64))
	values.Set("appid", p.apiKey)
	u := fmt.Sprintf("%s%s?%s", p.baseURL, path, values.Encode())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Only failures the provider may recover from count against the breaker.
	result, err := p.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &TransientFetchError{Provider: openWeatherName, LocationID: loc.ID, StatusCode: resp.StatusCode, Err: errRateLimited}
		}
		if resp.StatusCode >= 500 {
			return nil, &TransientFetchError{Provider: openWeatherName, LocationID: loc.ID, StatusCode: resp.StatusCode, Err: errServerError}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		return &rawResponse{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		var transient *TransientFetchError
		if errors.As(err, &transient) {
			return nil, transient
		}
		return nil, &TransientFetchError{Provider: openWeatherName, LocationID: loc.ID, Err: err}
	}

	raw := result.(*rawResponse)
	if raw.status < 200 || raw.status >= 300 {
		return nil, p.permanent(loc, raw.status, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(raw.body))))
	}

	return p.parse(loc, raw.body)
}

func (p *OpenWeatherProvider) parse(loc aqi.Location, body []byte) ([]aqi.Reading, error) {
	var payload pollutionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, p.permanent(loc, 0, fmt.Errorf("failed to decode payload: %w", err))
	}
	if len(payload.List) == 0 {
		return nil, p.permanent(loc, 0, errEmptyPayload)
	}

	readings := make([]aqi.Reading, 0, len(payload.List))
	for _, item := range payload.List {
		if item.Dt <= 0 || item.Components == nil {
			return nil, p.permanent(loc, 0, fmt.Errorf("incomplete reading in payload"))
		}
		c := item.Components
		readings = append(readings, aqi.Reading{
			LocationID:    loc.ID,
			Lat:           loc.Lat,
			Lon:           loc.Lon,
			AQI:           aqi.FromPM25(c.PM25),
			ProviderIndex: item.Main.AQI,
			PM25:          c.PM25,
			PM10:          c.PM10,
			CO:            c.CO,
			NO2:           c.NO2,
			O3:            c.O3,
			// Readings are keyed by observation hour
			Timestamp: time.Unix(item.Dt, 0).UTC().Truncate(time.Hour),
			Source:    openWeatherName,
		})
	}

	return readings, nil
}

func (p *OpenWeatherProvider) permanent(loc aqi.Location, status int, err error) error {
	return &PermanentFetchError{Provider: openWeatherName, LocationID: loc.ID, StatusCode: status, Err: err}
}
