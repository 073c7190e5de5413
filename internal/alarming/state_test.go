package alarming

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/aqi-server/internal/aqi"
)

func newRedisStates(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStateStore(client, time.Hour), mr
}

func TestRedisStateStore_RoundTrip(t *testing.T) {
	states, mr := newRedisStates(t)
	ctx := context.Background()

	fresh, err := states.GetState(ctx, "delhi")
	require.NoError(t, err)
	assert.Equal(t, aqi.TierNone, fresh.Tier)
	assert.NotNil(t, fresh.LastSent)

	want := &AlertState{
		Tier:          aqi.TierHigh,
		LastReadingAt: start,
		LastSent:      map[string]time.Time{aqi.TierHigh.String(): start},
	}
	require.NoError(t, states.SetState(ctx, "delhi", want))

	got, err := states.GetState(ctx, "delhi")
	require.NoError(t, err)
	assert.Equal(t, want.Tier, got.Tier)
	assert.True(t, want.LastReadingAt.Equal(got.LastReadingAt))
	assert.Len(t, got.LastSent, 1)
	assert.Equal(t, time.Hour, mr.TTL(stateKey("delhi")))
}

func TestRedisStateStore_GetAllStates(t *testing.T) {
	states, mr := newRedisStates(t)
	ctx := context.Background()

	require.NoError(t, states.SetState(ctx, "delhi", &AlertState{Tier: aqi.TierVeryHigh, LastReadingAt: start}))
	require.NoError(t, states.SetState(ctx, "pune", &AlertState{Tier: aqi.TierMedium, LastReadingAt: start}))
	require.NoError(t, mr.Set(stateKey("broken"), "{not json"))
	require.NoError(t, mr.Set("unrelated", "x"))

	all, err := states.GetAllStates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, aqi.TierVeryHigh, all["delhi"].Tier)
	assert.Equal(t, aqi.TierMedium, all["pune"].Tier)
	assert.NotNil(t, all["pune"].LastSent)
}

func TestMemoryStateStore_GetAllStatesCopies(t *testing.T) {
	states := NewMemoryStateStore()
	ctx := context.Background()
	require.NoError(t, states.SetState(ctx, "delhi", &AlertState{
		Tier:     aqi.TierHigh,
		LastSent: map[string]time.Time{"high": start},
	}))

	all, err := states.GetAllStates(ctx)
	require.NoError(t, err)
	all["delhi"].LastSent["high"] = start.Add(time.Hour)

	again, err := states.GetState(ctx, "delhi")
	require.NoError(t, err)
	assert.True(t, again.LastSent["high"].Equal(start))
}
