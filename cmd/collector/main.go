package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/ingestion"
	"github.com/smukkama/aqi-server/internal/logging"
	"github.com/smukkama/aqi-server/internal/queue"
	"github.com/smukkama/aqi-server/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.Setup("collector", cfg.LogLevel)

	log.Info("starting collector service", "locations", len(cfg.Ingestion.Locations))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info("connected to database")

	// Create Kafka topics if they don't exist
	if err := queue.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.NumPartitions, 1,
		cfg.Kafka.TopicReadings, cfg.Kafka.TopicAlerts); err != nil {
		log.Warn("failed to ensure kafka topics", "error", err)
	}

	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings)
	defer producer.Close()
	log.Info("kafka producer initialized", "topic", cfg.Kafka.TopicReadings)

	provider := ingestion.NewOpenWeatherProvider(ingestion.OpenWeatherConfig{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	})

	collector := ingestion.NewCollector(provider, db, producer, ingestion.CollectorConfig{
		Locations:   cfg.Ingestion.Locations,
		Concurrency: cfg.Ingestion.Concurrency,
		Backoff: ingestion.Backoff{
			MaxAttempts:     cfg.Ingestion.RetryAttempts,
			InitialInterval: cfg.Ingestion.RetryMin,
			MaxInterval:     cfg.Ingestion.RetryMax,
		},
	})

	scheduler := ingestion.NewScheduler(collector, cfg.Ingestion.Interval, cfg.Ingestion.PassTimeout)
	if err := scheduler.Start(ctx); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	log.Info("collector service is running")

	// Wait for interrupt signal
	<-ctx.Done()

	log.Info("shutting down gracefully")
}
