package alarming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/protocol"
)

type fakeRecorder struct {
	mu     sync.Mutex
	alerts map[string]*aqi.Alert
	fail   error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{alerts: make(map[string]*aqi.Alert)}
}

func (f *fakeRecorder) InsertAlert(ctx context.Context, a *aqi.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.alerts[a.ID.String()] = a
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	keys     []string
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, value)
	return nil
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func reading(hour int, value float64) aqi.Reading {
	return aqi.Reading{
		LocationID: "delhi",
		AQI:        value,
		Timestamp:  start.Add(time.Duration(hour) * time.Hour),
	}
}

func TestEvaluator_RampEmitsOneAlertPerTier(t *testing.T) {
	recorder := newFakeRecorder()
	publisher := &fakePublisher{}
	e := NewEvaluator(NewMemoryStateStore(), recorder, publisher, 6*time.Hour)
	ctx := context.Background()

	var tiers []aqi.Tier
	for i := 0; i < 200; i++ {
		value := 40 + float64(i)*(250-40)/199
		alert, _, err := e.Evaluate(ctx, reading(i, value))
		require.NoError(t, err)
		if alert != nil {
			tiers = append(tiers, alert.Tier)
		}
	}

	assert.Equal(t, []aqi.Tier{aqi.TierMedium, aqi.TierHigh, aqi.TierVeryHigh}, tiers)
	assert.Len(t, recorder.alerts, 3)
	require.Len(t, publisher.messages, 3)
	assert.Equal(t, []string{"delhi", "delhi", "delhi"}, publisher.keys)

	event, err := protocol.DecodeAlertEvent(publisher.messages[2])
	require.NoError(t, err)
	assert.Equal(t, aqi.TierVeryHigh, event.Tier)
	assert.Equal(t, event.AQI, event.Reading.AQI)
	assert.True(t, event.ReadingAt.Equal(event.Reading.Timestamp))
}

func TestEvaluator_BoundaryReadings(t *testing.T) {
	cases := []struct {
		value float64
		tier  aqi.Tier
	}{
		{100, aqi.TierNone},
		{101, aqi.TierMedium},
		{150, aqi.TierMedium},
		{151, aqi.TierHigh},
		{200, aqi.TierHigh},
		{201, aqi.TierVeryHigh},
	}

	for _, c := range cases {
		e := NewEvaluator(NewMemoryStateStore(), nil, nil, time.Hour)
		alert, outcome, err := e.Evaluate(context.Background(), reading(0, c.value))
		require.NoError(t, err)
		if c.tier == aqi.TierNone {
			assert.Nil(t, alert, "AQI=%v", c.value)
			assert.Equal(t, OutcomeQuiet, outcome)
			continue
		}
		require.NotNil(t, alert, "AQI=%v", c.value)
		assert.Equal(t, c.tier, alert.Tier, "AQI=%v", c.value)
	}
}

func TestEvaluator_CooldownSuppressesOscillation(t *testing.T) {
	e := NewEvaluator(NewMemoryStateStore(), nil, nil, 6*time.Hour)
	ctx := context.Background()

	// Noisy readings around the High boundary.
	values := []float64{149, 152, 148, 153, 147, 155}
	var alerts int
	for i, v := range values {
		alert, _, err := e.Evaluate(ctx, reading(i, v))
		require.NoError(t, err)
		if alert != nil {
			alerts++
		}
	}
	assert.Equal(t, 2, alerts, "one Medium and one High within the cool-down")

	// After the cool-down a fresh entry into High alerts again.
	_, _, err := e.Evaluate(ctx, reading(20, 140))
	require.NoError(t, err)
	alert, outcome, err := e.Evaluate(ctx, reading(21, 160))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, OutcomeAlerted, outcome)
}

func TestEvaluator_ReplayIsIdempotent(t *testing.T) {
	recorder := newFakeRecorder()
	e := NewEvaluator(NewMemoryStateStore(), recorder, nil, time.Hour)
	ctx := context.Background()

	alert, _, err := e.Evaluate(ctx, reading(0, 180))
	require.NoError(t, err)
	require.NotNil(t, alert)

	again, outcome, err := e.Evaluate(ctx, reading(0, 180))
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, OutcomeStale, outcome)
	assert.Len(t, recorder.alerts, 1)
}

func TestEvaluator_RecorderFailureKeepsState(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.fail = errors.New("db down")
	states := NewMemoryStateStore()
	e := NewEvaluator(states, recorder, nil, time.Hour)
	ctx := context.Background()

	_, _, err := e.Evaluate(ctx, reading(0, 180))
	require.Error(t, err)

	// The reading was not acknowledged, so a retry alerts once the store recovers.
	recorder.fail = nil
	alert, _, err := e.Evaluate(ctx, reading(0, 180))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, aqi.TierHigh, alert.Tier)
}

func TestMemoryStateStore_Isolation(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	state, err := s.GetState(ctx, "delhi")
	require.NoError(t, err)
	assert.Equal(t, aqi.TierNone, state.Tier)

	state.Tier = aqi.TierHigh
	state.LastSent["high"] = start
	require.NoError(t, s.SetState(ctx, "delhi", state))

	state.LastSent["medium"] = start
	stored, err := s.GetState(ctx, "delhi")
	require.NoError(t, err)
	assert.Equal(t, aqi.TierHigh, stored.Tier)
	assert.Len(t, stored.LastSent, 1)
}
