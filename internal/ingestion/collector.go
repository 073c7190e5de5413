package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/protocol"
	"github.com/smukkama/aqi-server/internal/store"
)

// Publisher forwards stored readings to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Status is the result of collecting one location
type Status string

const (
	StatusStored    Status = "stored"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// LocationResult is the outcome for one location in a pass
type LocationResult struct {
	LocationID string
	Status     Status
	Reading    aqi.Reading
	Err        error
}

// PassResult summarises one ingestion pass
type PassResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []LocationResult
}

// Count returns the number of locations that ended with status
func (p PassResult) Count(status Status) int {
	n := 0
	for _, r := range p.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// CollectorConfig configures a Collector
type CollectorConfig struct {
	Locations   []aqi.Location
	Concurrency int
	Backoff     Backoff
}

// Collector runs ingestion passes: fetch every location with bounded
// parallelism, append complete readings, publish what was stored.
type Collector struct {
	provider    Provider
	store       store.Readings
	publisher   Publisher
	locations   []aqi.Location
	concurrency int
	backoff     Backoff
	now         func() time.Time
	log         *slog.Logger
}

// NewCollector creates a collector. publisher may be nil.
func NewCollector(provider Provider, readings store.Readings, publisher Publisher, cfg CollectorConfig) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Collector{
		provider:    provider,
		store:       readings,
		publisher:   publisher,
		locations:   cfg.Locations,
		concurrency: cfg.Concurrency,
		backoff:     cfg.Backoff,
		now:         time.Now,
		log:         slog.With("component", "collector", "provider", provider.Name()),
	}
}

// RunPass collects every configured location once. A failing location never
// aborts the pass.
func (c *Collector) RunPass(ctx context.Context) PassResult {
	pass := PassResult{
		RunID:     uuid.New().String(),
		StartedAt: c.now().UTC(),
		Results:   make([]LocationResult, len(c.locations)),
	}
	log := c.log.With("run_id", pass.RunID)
	log.Info("ingestion pass started", "locations", len(c.locations))

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for i, loc := range c.locations {
		wg.Add(1)
		go func(i int, loc aqi.Location) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				pass.Results[i] = LocationResult{LocationID: loc.ID, Status: StatusFailed, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			pass.Results[i] = c.collect(ctx, pass.RunID, loc)
		}(i, loc)
	}
	wg.Wait()

	pass.FinishedAt = c.now().UTC()
	log.Info("ingestion pass completed",
		"stored", pass.Count(StatusStored),
		"duplicates", pass.Count(StatusDuplicate),
		"failed", pass.Count(StatusFailed),
		"duration", pass.FinishedAt.Sub(pass.StartedAt),
	)
	return pass
}

func (c *Collector) collect(ctx context.Context, runID string, loc aqi.Location) LocationResult {
	log := c.log.With("run_id", runID, "location", loc.ID)
	result := LocationResult{LocationID: loc.ID}

	var reading aqi.Reading
	err := c.backoff.Retry(ctx, func(ctx context.Context) error {
		r, err := c.provider.Fetch(ctx, loc)
		if err != nil {
			var transient *TransientFetchError
			if errors.As(err, &transient) {
				log.Warn("transient fetch failure", "error", err)
			}
			return err
		}
		reading = r
		return nil
	})
	if err != nil {
		log.Error("fetch failed", "error", err)
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Reading = reading

	if err := c.store.Append(ctx, reading); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			log.Debug("reading already stored", "observed_at", reading.Timestamp)
			result.Status = StatusDuplicate
			return result
		}
		log.Error("failed to store reading", "error", err)
		result.Status = StatusFailed
		result.Err = fmt.Errorf("append: %w", err)
		return result
	}
	result.Status = StatusStored

	if c.publisher != nil {
		data, err := protocol.EncodeReadingMessage(&protocol.ReadingMessage{
			RunID:    runID,
			StoredAt: c.now().UTC(),
			Reading:  reading,
		})
		if err == nil {
			err = c.publisher.Publish(ctx, loc.ID, data)
		}
		if err != nil {
			// The reading stays stored; only the event is lost.
			log.Error("failed to publish reading", "error", err)
			result.Err = fmt.Errorf("publish: %w", err)
		}
	}

	log.Info("reading stored", "aqi", reading.AQI, "observed_at", reading.Timestamp)
	return result
}
