// Package predictor fits and applies per-location AQI regression models.
package predictor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/features"
)

// MinHistory is the shortest history span a usable model may be trained on
const MinHistory = 7 * 24 * time.Hour

// Options controls a training run
type Options struct {
	// TestFraction is the trailing share of vectors held out for evaluation
	TestFraction float64
	// Tolerance is the absolute AQI margin for tolerance accuracy
	Tolerance float64
	// Lambda is the ridge penalty on standardised coefficients
	Lambda float64
	// MinSamples is the minimum number of training rows
	MinSamples int
	// Now stamps TrainedAt; defaults to time.Now
	Now func() time.Time
}

// DefaultOptions returns the options used by the trainer service
func DefaultOptions() Options {
	return Options{
		TestFraction: 0.2,
		Tolerance:    10,
		Lambda:       1.0,
		MinSamples:   48,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		o.TestFraction = d.TestFraction
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Lambda < 0 {
		o.Lambda = d.Lambda
	}
	if o.MinSamples <= 0 {
		o.MinSamples = d.MinSamples
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Split divides vectors chronologically: every train timestamp precedes
// every test timestamp. Vectors are never shuffled.
func Split(vectors []features.Vector, testFraction float64) (train, test []features.Vector) {
	sorted := make([]features.Vector, len(vectors))
	copy(sorted, vectors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	nTest := int(math.Round(float64(len(sorted)) * testFraction))
	if nTest < 1 && len(sorted) > 1 {
		nTest = 1
	}
	cut := len(sorted) - nTest
	return sorted[:cut], sorted[cut:]
}

// Train fits a ridge regression for one location on labelled vectors
func Train(locationID string, vectors []features.Vector, opts Options) (*TrainedModel, error) {
	opts = opts.withDefaults()

	var labelled []features.Vector
	for _, v := range vectors {
		if v.HasTarget {
			labelled = append(labelled, v)
		}
	}
	if len(labelled) == 0 {
		return nil, fmt.Errorf("%w: no valid feature vectors for %s", ErrInsufficientHistory, locationID)
	}

	train, test := Split(labelled, opts.TestFraction)
	if len(train) < opts.MinSamples {
		return nil, fmt.Errorf("%w: %d training rows for %s, need %d",
			ErrInsufficientHistory, len(train), locationID, opts.MinSamples)
	}

	nFeatures := len(features.Names())
	for _, v := range labelled {
		if len(v.Values) != nFeatures {
			return nil, fmt.Errorf("%w: vector at %s has %d values, want %d",
				ErrFeatureDrift, v.Timestamp.Format(time.RFC3339), len(v.Values), nFeatures)
		}
	}

	means, scales := standardisation(train, nFeatures)
	intercept, coef, err := solveRidge(train, means, scales, opts.Lambda)
	if err != nil {
		return nil, fmt.Errorf("failed to fit model for %s: %w", locationID, err)
	}

	model := &TrainedModel{
		ID:           uuid.New(),
		LocationID:   locationID,
		FeatureSetID: features.SetID(),
		FeatureNames: features.Names(),
		Intercept:    intercept,
		Coefficients: coef,
		Means:        means,
		Scales:       scales,
		Lambda:       opts.Lambda,
		TrainedAt:    opts.Now().UTC(),
		TrainedFrom:  train[0].Timestamp,
		TrainedTo:    train[len(train)-1].Timestamp,
		TrainSamples: len(train),
		TestSamples:  len(test),
	}

	var sq float64
	for _, v := range train {
		d := model.raw(v.Values) - v.Target
		sq += d * d
	}
	model.ResidualStd = math.Sqrt(sq / float64(len(train)))

	if len(test) > 0 {
		model.Metrics = evaluate(model, test, opts.Tolerance)
	}

	return model, nil
}

func standardisation(train []features.Vector, n int) (means, scales []float64) {
	means = make([]float64, n)
	scales = make([]float64, n)
	for _, v := range train {
		for j, x := range v.Values {
			means[j] += x
		}
	}
	for j := range means {
		means[j] /= float64(len(train))
	}
	for _, v := range train {
		for j, x := range v.Values {
			d := x - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / float64(len(train)))
		if scales[j] < 1e-12 {
			// Constant column; it standardises to zero and drops out.
			scales[j] = 1
		}
	}
	return means, scales
}

// solveRidge solves min ||Xb - (y - ȳ)||² + λ||b||² on standardised X by QR
// on the augmented system [X; √λ·I].
func solveRidge(train []features.Vector, means, scales []float64, lambda float64) (float64, []float64, error) {
	n := len(train)
	p := len(means)

	var yMean float64
	for _, v := range train {
		yMean += v.Target
	}
	yMean /= float64(n)

	rows := n + p
	x := mat.NewDense(rows, p, nil)
	y := mat.NewDense(rows, 1, nil)
	for i, v := range train {
		for j, val := range v.Values {
			x.Set(i, j, (val-means[j])/scales[j])
		}
		y.Set(i, 0, v.Target-yMean)
	}
	// A tiny floor keeps the system full rank when lambda is zero.
	sqrtLambda := math.Sqrt(math.Max(lambda, 1e-8))
	for j := 0; j < p; j++ {
		x.Set(n+j, j, sqrtLambda)
	}

	var qr mat.QR
	qr.Factorize(x)

	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y); err != nil {
		return 0, nil, err
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.At(j, 0)
	}
	return yMean, coef, nil
}

func (m *TrainedModel) raw(values []float64) float64 {
	out := m.Intercept
	for j, x := range values {
		out += m.Coefficients[j] * (x - m.Means[j]) / m.Scales[j]
	}
	return out
}

// Predict returns the estimate for a single vector
func Predict(m *TrainedModel, v features.Vector) (Prediction, error) {
	if m.FeatureSetID != features.SetID() || len(v.Values) != len(m.Coefficients) {
		return Prediction{}, fmt.Errorf("%w: model %s uses %s", ErrFeatureDrift, m.ID, m.FeatureSetID)
	}

	value := clamp(m.raw(v.Values))
	margin := 1.96 * m.ResidualStd

	return Prediction{
		Timestamp: v.Timestamp,
		Value:     value,
		Lower:     clamp(value - margin),
		Upper:     clamp(value + margin),
	}, nil
}

// Evaluate scores m against labelled held-out vectors
func Evaluate(m *TrainedModel, heldOut []features.Vector, tolerance float64) (Metrics, error) {
	if m.FeatureSetID != features.SetID() {
		return Metrics{}, fmt.Errorf("%w: model %s uses %s", ErrFeatureDrift, m.ID, m.FeatureSetID)
	}
	var labelled []features.Vector
	for _, v := range heldOut {
		if !v.HasTarget {
			continue
		}
		if len(v.Values) != len(m.Coefficients) {
			return Metrics{}, fmt.Errorf("%w: vector has %d values", ErrFeatureDrift, len(v.Values))
		}
		labelled = append(labelled, v)
	}
	if len(labelled) == 0 {
		return Metrics{}, fmt.Errorf("no labelled vectors to evaluate")
	}
	if tolerance <= 0 {
		tolerance = DefaultOptions().Tolerance
	}
	return evaluate(m, labelled, tolerance), nil
}

func evaluate(m *TrainedModel, set []features.Vector, tolerance float64) Metrics {
	var mean float64
	for _, v := range set {
		mean += v.Target
	}
	mean /= float64(len(set))

	var sse, sae, sst float64
	within := 0
	for _, v := range set {
		d := clamp(m.raw(v.Values)) - v.Target
		sse += d * d
		sae += math.Abs(d)
		sst += (v.Target - mean) * (v.Target - mean)
		if math.Abs(d) <= tolerance {
			within++
		}
	}

	n := float64(len(set))
	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}

	return Metrics{
		RMSE:              math.Sqrt(sse / n),
		MAE:               sae / n,
		R2:                r2,
		ToleranceAccuracy: float64(within) / n,
		Tolerance:         tolerance,
		Samples:           len(set),
	}
}

// Forecast predicts hourly AQI for the next `hours` hours after the last
// reading in history. Each step feeds its estimate back as the next step's
// history; the non-AQI pollutants are carried forward from the last reading.
func Forecast(m *TrainedModel, history []aqi.Reading, hours int) ([]Prediction, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be greater than zero")
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: empty history", ErrInsufficientHistory)
	}

	window := make([]aqi.Reading, len(history))
	copy(window, history)
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	last := window[len(window)-1]
	next := last.Timestamp.UTC().Truncate(time.Hour).Add(time.Hour)

	out := make([]Prediction, 0, hours)
	for step := 0; step < hours; step++ {
		v, ok := features.At(window, next)
		if !ok {
			return nil, fmt.Errorf("%w: cannot build features for %s",
				ErrInsufficientHistory, next.Format(time.RFC3339))
		}
		p, err := Predict(m, v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)

		synthetic := last
		synthetic.AQI = p.Value
		synthetic.Timestamp = next
		synthetic.Source = "forecast"
		window = append(window, synthetic)
		next = next.Add(time.Hour)
	}

	return out, nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(v, aqi.MaxAQI))
}

// TrainFromReadings checks the history span, builds features and trains
func TrainFromReadings(locationID string, readings []aqi.Reading, opts Options) (*TrainedModel, error) {
	if len(readings) < 2 {
		return nil, fmt.Errorf("%w: %d readings for %s", ErrInsufficientHistory, len(readings), locationID)
	}

	first, last := readings[0].Timestamp, readings[0].Timestamp
	for _, r := range readings[1:] {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	if span := last.Sub(first); span < MinHistory {
		return nil, fmt.Errorf("%w: %s spans %s, need %s",
			ErrInsufficientHistory, locationID, span.Round(time.Hour), MinHistory)
	}

	return Train(locationID, features.Build(readings), opts)
}
