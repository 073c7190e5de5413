package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/aqi-server/internal/aggregation"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/logging"
	"github.com/smukkama/aqi-server/internal/timer"
	"github.com/smukkama/aqi-server/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.Setup("aggregator", cfg.LogLevel)

	log.Info("starting aggregation service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to database")

	clock, err := timer.ParseClock(cfg.Aggregation.DailyTime)
	if err != nil {
		log.Error("invalid aggregation time", "value", cfg.Aggregation.DailyTime, "error", err)
		os.Exit(1)
	}

	// Create timer manager
	timerManager := timer.NewManager(2)
	timerManager.Start(ctx)
	defer timerManager.Stop()
	log.Info("timer manager started")

	dailyAgg := aggregation.NewDailyAggregator(db, db, cfg.Ingestion.Locations)

	aggregate := func(ctx context.Context) {
		if _, err := dailyAgg.AggregatePreviousDay(ctx); err != nil {
			log.Error("daily aggregation failed", "error", err)
		}
	}

	// Schedule daily aggregation. A daily run makes a pending catch-up redundant.
	err = timerManager.ScheduleDaily("daily-aggregation", clock, func(ctx context.Context) {
		timerManager.Cancel("catch-up-aggregation")
		aggregate(ctx)
	})
	if err != nil {
		log.Error("failed to schedule daily aggregation", "error", err)
		os.Exit(1)
	}

	// Summaries are upserts, so re-running a day the last process already
	// covered is harmless.
	if cfg.Aggregation.CatchUpDelay > 0 {
		if err := timerManager.Schedule("catch-up-aggregation", time.Now().Add(cfg.Aggregation.CatchUpDelay), aggregate); err != nil {
			log.Error("failed to schedule catch-up aggregation", "error", err)
			os.Exit(1)
		}
	}

	next, _ := timerManager.NextRun("daily-aggregation")
	log.Info("aggregation service is running", "next_run", next.Format("2006-01-02 15:04:05"))

	// Wait for interrupt signal
	<-ctx.Done()

	stats := timerManager.Stats()
	log.Info("shutting down gracefully", "jobs_executed", stats.ExecutedTasks, "jobs_running", stats.RunningTasks)
}
