package aqi

import "math"

// Category is the descriptive AQI band shown on the dashboard
type Category struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
}

var categories = []struct {
	upper float64
	cat   Category
}{
	{50, Category{
		Name:    "Good",
		Message: "Air quality is great! Perfect for outdoor activities.",
		Actions: []string{"Enjoy outdoor activities", "Open windows for fresh air", "Exercise outside"},
	}},
	{100, Category{
		Name:    "Moderate",
		Message: "Air quality is acceptable for most people.",
		Actions: []string{"Unusually sensitive people should consider reducing prolonged outdoor exertion", "General public can enjoy outdoor activities"},
	}},
	{150, Category{
		Name:    "Unhealthy for Sensitive",
		Message: "Sensitive groups may experience health effects.",
		Actions: []string{"Children, elderly, and people with respiratory issues should limit outdoor activities", "Wear masks if going outside", "Keep windows closed"},
	}},
	{200, Category{
		Name:    "Unhealthy",
		Message: "Everyone may begin to experience health effects.",
		Actions: []string{"Limit prolonged outdoor exertion", "Keep windows closed", "Use air purifiers indoors", "Wear N95 masks outside"},
	}},
	{300, Category{
		Name:    "Very Unhealthy",
		Message: "Health alert: everyone may experience serious effects.",
		Actions: []string{"Avoid outdoor activities", "Stay indoors with air purifiers", "Keep all windows closed", "Seek medical attention if feeling unwell"},
	}},
	{math.Inf(1), Category{
		Name:    "Hazardous",
		Message: "Health emergency: entire population affected.",
		Actions: []string{"Stay indoors at all times", "Use high-quality air purifiers", "Seal windows and doors", "Seek immediate medical attention if experiencing symptoms"},
	}},
}

// CategoryFor returns the band containing value
func CategoryFor(value float64) Category {
	for _, c := range categories {
		if value <= c.upper {
			return c.cat
		}
	}
	return categories[len(categories)-1].cat
}

// MaxAQI is the top of the Indian AQI scale
const MaxAQI = 500

// FromPM25 converts a PM2.5 concentration (µg/m³) to the Indian AQI scale
func FromPM25(pm25 float64) float64 {
	var v float64
	switch {
	case pm25 <= 0:
		v = 0
	case pm25 <= 30:
		v = pm25 / 30 * 50
	case pm25 <= 60:
		v = 50 + (pm25-30)/30*50
	case pm25 <= 90:
		v = 100 + (pm25-60)/30*100
	case pm25 <= 120:
		v = 200 + (pm25-90)/30*100
	case pm25 <= 250:
		v = 300 + (pm25-120)/130*100
	default:
		v = 400 + math.Min((pm25-250)/2, 100)
	}
	return math.Min(math.Floor(v), MaxAQI)
}
