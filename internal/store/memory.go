package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// MemoryStore is a concurrency-safe in-memory Readings implementation.
// Each location's readings are kept sorted by timestamp.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location id
	data map[string][]aqi.Reading
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]aqi.Reading),
	}
}

// Append inserts r at its sorted position or returns ErrDuplicateKey
func (s *MemoryStore) Append(ctx context.Context, r aqi.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.Timestamp = r.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[r.LocationID]
	i := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.Before(r.Timestamp)
	})
	if i < len(history) && history[i].Timestamp.Equal(r.Timestamp) {
		return ErrDuplicateKey
	}

	history = append(history, aqi.Reading{})
	copy(history[i+1:], history[i:])
	history[i] = r
	s.data[r.LocationID] = history

	return nil
}

// Query returns readings with from <= timestamp < to, ascending
func (s *MemoryStore) Query(ctx context.Context, locationID string, from, to time.Time) ([]aqi.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[locationID]
	start := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.Before(from)
	})
	end := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.Before(to)
	})
	if start >= end {
		return []aqi.Reading{}, nil
	}

	result := make([]aqi.Reading, end-start)
	copy(result, history[start:end])
	return result, nil
}

// Latest returns the most recent reading for a location
func (s *MemoryStore) Latest(ctx context.Context, locationID string) (aqi.Reading, error) {
	if err := ctx.Err(); err != nil {
		return aqi.Reading{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[locationID]
	if len(history) == 0 {
		return aqi.Reading{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

// Count returns the number of readings held for a location
func (s *MemoryStore) Count(locationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[locationID])
}
