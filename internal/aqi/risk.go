package aqi

import "math"

// HealthProfile describes the person a risk assessment is made for
type HealthProfile struct {
	Age               int  `json:"age" query:"age" validate:"gte=0,lte=120"`
	RespiratoryIssues bool `json:"respiratory_issues" query:"respiratory_issues"`
	HeartDisease      bool `json:"heart_disease" query:"heart_disease"`
	Pregnant          bool `json:"pregnant" query:"pregnant"`
}

// RiskAssessment is a personalised 0-10 score for an AQI value
type RiskAssessment struct {
	Score   float64  `json:"score"`
	Level   string   `json:"level"`
	Actions []string `json:"actions"`
}

// AssessRisk scores the exposure risk of profile at the given AQI
func AssessRisk(value float64, profile HealthProfile) RiskAssessment {
	base := value / 100

	ageFactor := 1.0
	switch {
	case profile.Age < 5 || profile.Age > 65:
		ageFactor = 1.5
	case profile.Age < 18 || profile.Age > 50:
		ageFactor = 1.2
	}

	healthFactor := 1.0
	if profile.RespiratoryIssues {
		healthFactor += 0.5
	}
	if profile.HeartDisease {
		healthFactor += 0.3
	}
	if profile.Pregnant {
		healthFactor += 0.4
	}

	score := math.Min(base*ageFactor*healthFactor*10, 10)
	level, actions := riskLevel(score)

	return RiskAssessment{Score: score, Level: level, Actions: actions}
}

func riskLevel(score float64) (string, []string) {
	switch {
	case score < 2:
		return "Low Risk", []string{
			"Safe to engage in outdoor activities",
			"No special precautions needed",
		}
	case score < 4:
		return "Moderate Risk", []string{
			"Sensitive individuals should reduce prolonged outdoor exertion",
			"Consider wearing a mask if exercising outdoors",
		}
	case score < 6:
		return "Elevated Risk", []string{
			"Limit outdoor activities",
			"Wear N95 masks when going outside",
			"Keep windows closed and use air purifiers",
		}
	case score < 8:
		return "High Risk", []string{
			"Avoid outdoor activities",
			"Stay indoors with air purification",
			"Consult doctor if experiencing symptoms",
		}
	default:
		return "Very High Risk", []string{
			"Stay indoors at all times",
			"Seal windows and doors",
			"Seek immediate medical attention if symptoms worsen",
		}
	}
}
