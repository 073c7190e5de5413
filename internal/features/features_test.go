package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int, value func(i int) float64) []aqi.Reading {
	out := make([]aqi.Reading, n)
	for i := range out {
		v := value(i)
		out[i] = aqi.Reading{
			LocationID: "delhi",
			AQI:        v,
			PM25:       v / 2,
			PM10:       v / 3,
			CO:         200,
			NO2:        10,
			O3:         30,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestBuild_RequiresSevenDayLag(t *testing.T) {
	readings := hourly(200, func(i int) float64 { return float64(i) })

	vectors := Build(readings)

	require.Len(t, vectors, 200-Lookback)
	assert.LessOrEqual(t, len(vectors), len(readings)-Lookback)
	assert.Equal(t, base.Add(Lookback*time.Hour), vectors[0].Timestamp)
	for _, v := range vectors {
		assert.Len(t, v.Values, len(Names()))
		assert.True(t, v.HasTarget)
	}
}

func TestBuild_TooShortHistory(t *testing.T) {
	assert.Empty(t, Build(hourly(Lookback, func(i int) float64 { return 50 })))
	assert.Empty(t, Build(nil))
}

func TestBuild_DropsRowsWithMissingLag(t *testing.T) {
	readings := hourly(200, func(i int) float64 { return float64(i) })

	// Remove the sample at hour 10; rows at 11h (1h lag), 34h (24h lag) and
	// 178h (7d lag) can no longer resolve.
	gap := append([]aqi.Reading{}, readings[:10]...)
	gap = append(gap, readings[11:]...)

	vectors := Build(gap)
	for _, v := range vectors {
		assert.NotEqual(t, base.Add(178*time.Hour), v.Timestamp)
	}
	assert.Len(t, vectors, 200-Lookback-1)
}

func TestBuild_FeatureValues(t *testing.T) {
	readings := hourly(Lookback+1, func(i int) float64 { return float64(i) })

	vectors := Build(readings)
	require.Len(t, vectors, 1)
	v := vectors[0]
	names := Names()

	col := func(name string) float64 {
		for i, n := range names {
			if n == name {
				return v.Values[i]
			}
		}
		t.Fatalf("no feature %s", name)
		return 0
	}

	assert.Equal(t, float64(Lookback), v.Target)
	assert.Equal(t, float64(Lookback-1), col("aqi_lag_1h"))
	assert.Equal(t, float64(Lookback-24), col("aqi_lag_24h"))
	assert.Equal(t, 0.0, col("aqi_lag_168h"))

	// Trailing 24 samples are 144..167.
	assert.InDelta(t, 155.5, col("aqi_roll24_mean"), 1e-9)
	assert.InDelta(t, math.Sqrt(50), col("aqi_roll24_std"), 1e-9)
	assert.Equal(t, 0.0, col("co_roll24_std"))

	// 168h after midnight Jan 1 is midnight Jan 8.
	assert.InDelta(t, 0, col("hour_sin"), 1e-9)
	assert.InDelta(t, 1, col("hour_cos"), 1e-9)
	assert.InDelta(t, math.Sin(2*math.Pi/12), col("month_sin"), 1e-9)
}

func TestBuild_Deterministic(t *testing.T) {
	readings := hourly(220, func(i int) float64 { return 100 + 20*math.Sin(float64(i)/5) })

	assert.Equal(t, Build(readings), Build(readings))

	// Input order does not matter.
	reversed := make([]aqi.Reading, len(readings))
	for i, r := range readings {
		reversed[len(readings)-1-i] = r
	}
	assert.Equal(t, Build(readings), Build(reversed))
}

func TestAt_NextHour(t *testing.T) {
	readings := hourly(Lookback, func(i int) float64 { return float64(i) })
	next := base.Add(Lookback * time.Hour)

	v, ok := At(readings, next)
	require.True(t, ok)
	assert.False(t, v.HasTarget)
	assert.Equal(t, float64(Lookback-1), v.Values[0])

	_, ok = At(readings[:Lookback-1], next)
	assert.False(t, ok)
}

func TestSetID_Stable(t *testing.T) {
	assert.Equal(t, SetID(), SetID())
	assert.Regexp(t, `^fs-[0-9a-f]{8}$`, SetID())
}
