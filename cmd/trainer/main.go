package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/logging"
	"github.com/smukkama/aqi-server/internal/modelstore"
	"github.com/smukkama/aqi-server/internal/predictor"
	"github.com/smukkama/aqi-server/internal/timer"
	"github.com/smukkama/aqi-server/pkg/config"
)

func main() {
	once := flag.Bool("once", false, "train every location once and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.Setup("trainer", cfg.LogLevel)

	log.Info("starting training service")

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

	artifacts, err := modelstore.NewMinioArtifacts(ctx, modelstore.MinioConfig{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		Region:    cfg.Minio.Region,
		Secure:    cfg.Minio.Secure,
	})
	if err != nil {
		log.Error("failed to connect to minio", "error", err)
		os.Exit(1)
	}
	log.Info("connected to minio", "bucket", cfg.Minio.Bucket)

	opts := predictor.DefaultOptions()
	opts.TestFraction = cfg.Training.TestFraction
	opts.Tolerance = cfg.Training.Tolerance
	opts.Lambda = cfg.Training.Lambda

	registry := modelstore.NewRegistry(db, artifacts)
	trainer := modelstore.NewTrainer(db, registry, cfg.Ingestion.Locations, cfg.Training.Lookback, opts)

	train := func(ctx context.Context) {
		var trained, skipped, failed int
		for _, r := range trainer.TrainAll(ctx) {
			switch {
			case r.Err != nil:
				failed++
			case r.Skipped:
				skipped++
			default:
				trained++
			}
		}
		log.Info("training run completed", "trained", trained, "skipped", skipped, "failed", failed)
	}

	if *once {
		train(ctx)
		return
	}

	clock, err := timer.ParseClock(cfg.Training.DailyTime)
	if err != nil {
		log.Error("invalid training time", "value", cfg.Training.DailyTime, "error", err)
		os.Exit(1)
	}

	// Create timer manager
	timerManager := timer.NewManager(1)
	timerManager.Start(ctx)
	defer timerManager.Stop()

	if err := timerManager.ScheduleDaily("daily-training", clock, train); err != nil {
		log.Error("failed to schedule training", "error", err)
		os.Exit(1)
	}
	next, _ := timerManager.NextRun("daily-training")
	log.Info("training service is running", "next_run", next.Format("2006-01-02 15:04:05"))

	// Wait for interrupt signal
	<-ctx.Done()

	stats := timerManager.Stats()
	log.Info("shutting down gracefully", "jobs_executed", stats.ExecutedTasks, "jobs_running", stats.RunningTasks)
}
