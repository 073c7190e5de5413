package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/aqi-server/internal/alarming"
	"github.com/smukkama/aqi-server/internal/api"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/ingestion"
	"github.com/smukkama/aqi-server/internal/logging"
	"github.com/smukkama/aqi-server/internal/modelstore"
	"github.com/smukkama/aqi-server/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.Setup("api", cfg.LogLevel)

	log.Info("starting api service")

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

	deps := api.Dependencies{
		Locations:     cfg.Ingestion.Locations,
		Readings:      db,
		Alerts:        db,
		Deliveries:    db,
		Summaries:     db,
		Subscriptions: db,
		Models:        modelstore.NewRegistry(db, artifacts),
	}
	// Alert states live in the alerting service's Redis; the API serves
	// everything else without it.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, alert states will not be served", "error", err)
	} else {
		deps.AlertStates = alarming.NewRedisStateStore(redisClient, cfg.Alerting.StateTTL)
	}

	if cfg.Provider.APIKey != "" {
		deps.Forecasts = ingestion.NewOpenWeatherProvider(ingestion.OpenWeatherConfig{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
			Timeout: cfg.Provider.Timeout,
		})
	}

	app := api.NewApp(api.Config{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		AccessLog:    true,
	}, deps)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Error("http server stopped", "error", err)
			stop()
		}
	}()
	log.Info("api service is running", "addr", addr)

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("shutting down gracefully")
}
