package aqi

import (
	"fmt"
	"time"
)

// Location is a fixed monitoring point polled by the collector
type Location struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Validate checks that the location has an id and sane coordinates
func (l Location) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("location id is required")
	}
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("location %s: latitude %.4f out of range", l.ID, l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("location %s: longitude %.4f out of range", l.ID, l.Lon)
	}
	return nil
}

// Reading is one pollutant snapshot for a location at a point in time.
// Readings are immutable once stored and unique on (LocationID, Timestamp).
type Reading struct {
	LocationID    string    `json:"location_id" db:"location_id"`
	Lat           float64   `json:"lat" db:"lat"`
	Lon           float64   `json:"lon" db:"lon"`
	AQI           float64   `json:"aqi" db:"aqi"`
	ProviderIndex int       `json:"provider_index" db:"provider_index"`
	PM25          float64   `json:"pm2_5" db:"pm25"`
	PM10          float64   `json:"pm10" db:"pm10"`
	CO            float64   `json:"co" db:"co"`
	NO2           float64   `json:"no2" db:"no2"`
	O3            float64   `json:"o3" db:"o3"`
	Timestamp     time.Time `json:"timestamp" db:"observed_at"`
	Source        string    `json:"source" db:"source"`
}

// Key identifies the reading within the historical store
func (r Reading) Key() string {
	return fmt.Sprintf("%s@%d", r.LocationID, r.Timestamp.Unix())
}

// Pollutant names a numeric field of a Reading
type Pollutant string

const (
	PollutantAQI  Pollutant = "aqi"
	PollutantPM25 Pollutant = "pm2_5"
	PollutantPM10 Pollutant = "pm10"
	PollutantCO   Pollutant = "co"
	PollutantNO2  Pollutant = "no2"
	PollutantO3   Pollutant = "o3"
)

// Pollutants is the fixed order used wherever per-pollutant values are laid out
var Pollutants = []Pollutant{
	PollutantAQI,
	PollutantPM25,
	PollutantPM10,
	PollutantCO,
	PollutantNO2,
	PollutantO3,
}

// Value returns the reading's value for a pollutant
func (r Reading) Value(p Pollutant) float64 {
	switch p {
	case PollutantAQI:
		return r.AQI
	case PollutantPM25:
		return r.PM25
	case PollutantPM10:
		return r.PM10
	case PollutantCO:
		return r.CO
	case PollutantNO2:
		return r.NO2
	case PollutantO3:
		return r.O3
	default:
		return 0
	}
}
