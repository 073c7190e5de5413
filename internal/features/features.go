// Package features derives model inputs from an ordered window of readings.
// Build is pure: the same readings always give the same vectors.
package features

import (
	"fmt"
	"hash/crc32"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/smukkama/aqi-server/internal/aqi"
)

const (
	// RollingWindow is the number of trailing samples for rolling statistics
	RollingWindow = 24

	// Lookback is the deepest lag, in hourly samples
	Lookback = 7 * 24
)

// Lags applied to every pollutant
var Lags = []time.Duration{
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
}

// Vector is the feature row for one (location, timestamp).
// Target is the AQI observed at Timestamp; it is only meaningful when HasTarget is set.
type Vector struct {
	LocationID string
	Timestamp  time.Time
	Values     []float64
	Target     float64
	HasTarget  bool
}

var names = buildNames()

func buildNames() []string {
	var out []string
	for _, p := range aqi.Pollutants {
		for _, lag := range Lags {
			out = append(out, fmt.Sprintf("%s_lag_%dh", p, int(lag.Hours())))
		}
	}
	for _, p := range aqi.Pollutants {
		out = append(out,
			fmt.Sprintf("%s_roll%d_mean", p, RollingWindow),
			fmt.Sprintf("%s_roll%d_std", p, RollingWindow),
		)
	}
	return append(out, "hour_sin", "hour_cos", "month_sin", "month_cos")
}

// Names returns the feature list in column order
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// SetID fingerprints the feature list. A model trained under a different
// SetID must not be used for prediction.
func SetID() string {
	return fmt.Sprintf("fs-%08x", crc32.ChecksumIEEE([]byte(strings.Join(names, ","))))
}

// Build returns one vector per reading whose lags and rolling window resolve.
// Readings must belong to a single location; they are sorted defensively.
func Build(readings []aqi.Reading) []Vector {
	if len(readings) <= RollingWindow {
		return nil
	}

	sorted := make([]aqi.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	idx := indexByHour(sorted)

	var out []Vector
	for i := RollingWindow; i < len(sorted); i++ {
		values, ok := row(sorted, idx, i, sorted[i].Timestamp)
		if !ok {
			continue
		}
		out = append(out, Vector{
			LocationID: sorted[i].LocationID,
			Timestamp:  sorted[i].Timestamp,
			Values:     values,
			Target:     sorted[i].AQI,
			HasTarget:  true,
		})
	}
	return out
}

// At builds the vector for a timestamp after the last reading in history,
// used to forecast. ok is false when the lags or rolling window cannot resolve.
func At(history []aqi.Reading, ts time.Time) (Vector, bool) {
	sorted := make([]aqi.Reading, 0, len(history))
	for _, r := range history {
		if r.Timestamp.Before(ts) {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) < RollingWindow {
		return Vector{}, false
	}

	values, ok := row(sorted, indexByHour(sorted), len(sorted), ts)
	if !ok {
		return Vector{}, false
	}
	return Vector{
		LocationID: sorted[len(sorted)-1].LocationID,
		Timestamp:  ts,
		Values:     values,
	}, true
}

func hourKey(ts time.Time) int64 {
	return ts.UTC().Truncate(time.Hour).Unix()
}

func indexByHour(sorted []aqi.Reading) map[int64]int {
	idx := make(map[int64]int, len(sorted))
	for i, r := range sorted {
		idx[hourKey(r.Timestamp)] = i
	}
	return idx
}

// row computes features for ts from sorted[:end], the samples strictly before ts
func row(sorted []aqi.Reading, idx map[int64]int, end int, ts time.Time) ([]float64, bool) {
	if end < RollingWindow {
		return nil, false
	}

	values := make([]float64, 0, len(names))

	for _, p := range aqi.Pollutants {
		for _, lag := range Lags {
			j, ok := idx[hourKey(ts.Add(-lag))]
			if !ok || j >= end {
				return nil, false
			}
			values = append(values, sorted[j].Value(p))
		}
	}

	window := sorted[end-RollingWindow : end]
	buf := make([]float64, RollingWindow)
	for _, p := range aqi.Pollutants {
		for k, r := range window {
			buf[k] = r.Value(p)
		}
		mean, std := stat.MeanStdDev(buf, nil)
		values = append(values, mean, std)
	}

	utc := ts.UTC()
	hour := float64(utc.Hour())
	month := float64(utc.Month())
	values = append(values,
		math.Sin(2*math.Pi*hour/24),
		math.Cos(2*math.Pi*hour/24),
		math.Sin(2*math.Pi*month/12),
		math.Cos(2*math.Pi*month/12),
	)

	return values, true
}
