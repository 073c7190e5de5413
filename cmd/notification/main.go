package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/logging"
	"github.com/smukkama/aqi-server/internal/notification"
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
	log := logging.Setup("notification", cfg.LogLevel)

	log.Info("starting notification service")

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

	var senders []notification.Sender
	if cfg.SMTP.Configured() {
		senders = append(senders, notification.NewEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	} else {
		log.Warn("SMTP credentials not configured, email deliveries will be skipped")
	}
	if cfg.SMS.Configured() {
		senders = append(senders, notification.NewSMSSender(notification.SMSConfig{
			URL:      cfg.SMS.URL,
			Username: cfg.SMS.Username,
			Password: cfg.SMS.Password,
		}))
	} else {
		log.Warn("SMS gateway not configured, SMS deliveries will be skipped")
	}

	dispatcher := notification.NewDispatcher(db, 30*time.Second, senders...)

	// Create consumer for alert events
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "notification-group")
	defer consumer.Close()
	log.Info("kafka consumer initialized", "topic", cfg.Kafka.TopicAlerts)

	go consumer.ReportStats(ctx, cfg.Kafka.StatsInterval)

	handler := queue.Decoded(protocol.DecodeAlertEvent, func(ctx context.Context, event *protocol.AlertEvent) error {
		alert := event.Alert()
		subs, err := db.ActiveSubscriptions(ctx, alert.LocationID)
		if err != nil {
			return err
		}

		// A retry skips recipients that were already sent
		failed := 0
		for _, r := range dispatcher.Dispatch(ctx, alert, subs) {
			if r.Status == database.DeliveryStatusFailed {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("alert %s: %d deliveries failed", alert.ID, failed)
		}
		return nil
	})
	processor := queue.NewProcessor("notification", consumer, handler,
		queue.ProcessorConfig{MaxAttempts: 3, RetryInterval: 5 * time.Second})

	log.Info("notification service is running", "channels", len(senders))

	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped", "error", err)
	}

	log.Info("shutting down gracefully")
}
