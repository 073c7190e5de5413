package alarming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// AlertState is the per-location memory the evaluator needs for
// tier-change triggering and cool-down suppression
type AlertState struct {
	Tier          aqi.Tier             `json:"tier"`
	LastReadingAt time.Time            `json:"last_reading_at"`
	LastSent      map[string]time.Time `json:"last_sent,omitempty"` // tier -> reading time of last emitted alert
}

func newAlertState() *AlertState {
	return &AlertState{Tier: aqi.TierNone, LastSent: make(map[string]time.Time)}
}

// StateStore persists AlertState per location
type StateStore interface {
	GetState(ctx context.Context, locationID string) (*AlertState, error)
	SetState(ctx context.Context, locationID string, state *AlertState) error
}

// RedisStateStore keeps alert states in Redis
type RedisStateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStateStore creates a Redis backed state store. States expire after
// ttl without updates.
func NewRedisStateStore(redisClient *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStateStore{redis: redisClient, ttl: ttl}
}

func stateKey(locationID string) string {
	return fmt.Sprintf("aqi_alert_state:%s", locationID)
}

// GetState retrieves the alert state for a location
func (s *RedisStateStore) GetState(ctx context.Context, locationID string) (*AlertState, error) {
	data, err := s.redis.Get(ctx, stateKey(locationID)).Result()
	if err == redis.Nil {
		return newAlertState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	state := newAlertState()
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.LastSent == nil {
		state.LastSent = make(map[string]time.Time)
	}

	return state, nil
}

// SetState saves the alert state for a location
func (s *RedisStateStore) SetState(ctx context.Context, locationID string, state *AlertState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.redis.Set(ctx, stateKey(locationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}

	return nil
}

// GetAllStates returns every stored state keyed by location. Entries that
// expire or fail to decode between the scan and the read are left out.
func (s *RedisStateStore) GetAllStates(ctx context.Context) (map[string]*AlertState, error) {
	prefix := stateKey("")
	var keys []string
	iter := s.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan states: %w", err)
	}

	states := make(map[string]*AlertState, len(keys))
	if len(keys) == 0 {
		return states, nil
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read states: %w", err)
	}
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		state := newAlertState()
		if err := json.Unmarshal([]byte(data), state); err != nil {
			slog.Warn("skipping undecodable alert state", "key", keys[i], "error", err)
			continue
		}
		if state.LastSent == nil {
			state.LastSent = make(map[string]time.Time)
		}
		states[strings.TrimPrefix(keys[i], prefix)] = state
	}
	return states, nil
}

// MemoryStateStore is an in-process StateStore
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]AlertState
}

// NewMemoryStateStore creates an empty MemoryStateStore
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]AlertState)}
}

func (m *MemoryStateStore) GetState(ctx context.Context, locationID string) (*AlertState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.states[locationID]
	if !ok {
		return newAlertState(), nil
	}
	state := stored
	state.LastSent = make(map[string]time.Time, len(stored.LastSent))
	for k, v := range stored.LastSent {
		state.LastSent[k] = v
	}
	return &state, nil
}

func (m *MemoryStateStore) SetState(ctx context.Context, locationID string, state *AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *state
	stored.LastSent = make(map[string]time.Time, len(state.LastSent))
	for k, v := range state.LastSent {
		stored.LastSent[k] = v
	}
	m.states[locationID] = stored
	return nil
}

func (m *MemoryStateStore) GetAllStates(ctx context.Context) (map[string]*AlertState, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	states := make(map[string]*AlertState, len(ids))
	for _, id := range ids {
		state, _ := m.GetState(ctx, id)
		states[id] = state
	}
	return states, nil
}
