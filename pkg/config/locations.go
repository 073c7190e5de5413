package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// DefaultLocations are polled when AQI_LOCATIONS is not set
var DefaultLocations = []aqi.Location{
	{ID: "delhi", Name: "Delhi", Lat: 28.6139, Lon: 77.2090},
	{ID: "mumbai", Name: "Mumbai", Lat: 19.0760, Lon: 72.8777},
	{ID: "bangalore", Name: "Bangalore", Lat: 12.9716, Lon: 77.5946},
	{ID: "kolkata", Name: "Kolkata", Lat: 22.5726, Lon: 88.3639},
	{ID: "chennai", Name: "Chennai", Lat: 13.0827, Lon: 80.2707},
	{ID: "hyderabad", Name: "Hyderabad", Lat: 17.3850, Lon: 78.4867},
	{ID: "pune", Name: "Pune", Lat: 18.5204, Lon: 73.8567},
	{ID: "ahmedabad", Name: "Ahmedabad", Lat: 23.0225, Lon: 72.5714},
	{ID: "jaipur", Name: "Jaipur", Lat: 26.9124, Lon: 75.7873},
	{ID: "lucknow", Name: "Lucknow", Lat: 26.8467, Lon: 80.9462},
}

// ParseLocations parses "id:name:lat:lon" entries separated by ";". An
// empty value yields DefaultLocations.
func ParseLocations(value string) ([]aqi.Location, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		out := make([]aqi.Location, len(DefaultLocations))
		copy(out, DefaultLocations)
		return out, nil
	}

	var locations []aqi.Location
	seen := make(map[string]bool)
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid location %q: expected id:name:lat:lon", item)
		}
		lat, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", item, err)
		}
		lon, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", item, err)
		}

		loc := aqi.Location{ID: parts[0], Name: parts[1], Lat: lat, Lon: lon}
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		if seen[loc.ID] {
			return nil, fmt.Errorf("duplicate location id %q", loc.ID)
		}
		seen[loc.ID] = true
		locations = append(locations, loc)
	}

	if len(locations) == 0 {
		return nil, fmt.Errorf("AQI_LOCATIONS has no locations")
	}
	return locations, nil
}
