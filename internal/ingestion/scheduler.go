package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs the collector on a fixed interval
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector *Collector
	interval  time.Duration
	timeout   time.Duration
}

// NewScheduler creates a scheduler. Each pass is bounded by timeout.
func NewScheduler(collector *Collector, interval, timeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		collector: collector,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the pass, runs it immediately and returns. Passes never
// overlap; a pass still running when the next is due delays it.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		passCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		s.collector.RunPass(passCtx)
	})
	if err != nil {
		return err
	}

	slog.Info("ingestion scheduler started", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
