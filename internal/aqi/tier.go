package aqi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is an alert severity level. Tiers are totally ordered, TierNone < TierMedium < ...
type Tier int

const (
	TierNone Tier = iota
	TierMedium
	TierHigh
	TierVeryHigh
)

// ClassifyTier maps an AQI value to its alert tier. Upper bounds are inclusive.
func ClassifyTier(value float64) Tier {
	switch {
	case value > 200:
		return TierVeryHigh
	case value > 150:
		return TierHigh
	case value > 100:
		return TierMedium
	default:
		return TierNone
	}
}

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierVeryHigh:
		return "very_high"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Message is the advice sent to subscribers for the tier
func (t Tier) Message() string {
	switch t {
	case TierMedium:
		return "Sensitive groups should be cautious."
	case TierHigh:
		return "Limit outdoor activity."
	case TierVeryHigh:
		return "Avoid all outdoor activity."
	default:
		return ""
	}
}

// ParseTier is the inverse of Tier.String
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return TierNone, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	case "very_high", "veryhigh", "very-high":
		return TierVeryHigh, nil
	default:
		return TierNone, fmt.Errorf("unknown alert tier: %q", s)
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
