package ingestion

import (
	"context"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// Provider is an air-quality data source. Fetch makes a single attempt;
// retrying is the caller's job. Errors are *TransientFetchError or
// *PermanentFetchError.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc aqi.Location) (aqi.Reading, error)
}

// ForecastProvider is implemented by providers that publish their own
// hourly pollution forecast.
type ForecastProvider interface {
	Forecast(ctx context.Context, loc aqi.Location) ([]aqi.Reading, error)
}
