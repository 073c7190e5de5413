package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/aqi-server/internal/alarming"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/logging"
	"github.com/smukkama/aqi-server/internal/protocol"
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
	log := logging.Setup("alerting", cfg.LogLevel)

	log.Info("starting alerting service")

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

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	states := alarming.NewRedisStateStore(redisClient, cfg.Alerting.StateTTL)

	// Create alert producer (for notifications)
	alertProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
	defer alertProducer.Close()

	evaluator := alarming.NewEvaluator(states, db, alertProducer, cfg.Alerting.Cooldown)

	// Create consumer for readings
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings, "alerting-group")
	defer consumer.Close()
	log.Info("kafka consumer initialized", "topic", cfg.Kafka.TopicReadings)

	go consumer.ReportStats(ctx, cfg.Kafka.StatsInterval)

	handler := queue.Decoded(protocol.DecodeReadingMessage, func(ctx context.Context, msg *protocol.ReadingMessage) error {
		_, _, err := evaluator.Evaluate(ctx, msg.Reading)
		return err
	})
	processor := queue.NewProcessor("alerting", consumer, handler, queue.ProcessorConfig{})

	log.Info("alerting service is running", "cooldown", cfg.Alerting.Cooldown)

	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped", "error", err)
	}

	log.Info("shutting down gracefully")
}
