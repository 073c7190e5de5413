package store

import (
	"context"
	"errors"
	"time"

	"github.com/smukkama/aqi-server/internal/aqi"
)

var (
	// ErrDuplicateKey is returned by Append when a reading already exists for
	// the same (location, timestamp). It is a defined outcome, not a failure:
	// retried and replayed polls land here.
	ErrDuplicateKey = errors.New("reading already stored for location and timestamp")

	// ErrNotFound is returned when no data exists for the requested key
	ErrNotFound = errors.New("not found")
)

// Readings is the historical store contract. Appends are reject-on-duplicate.
type Readings interface {
	Append(ctx context.Context, r aqi.Reading) error
	Query(ctx context.Context, locationID string, from, to time.Time) ([]aqi.Reading, error)
	Latest(ctx context.Context, locationID string) (aqi.Reading, error)
}
