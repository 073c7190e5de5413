// Package api is the read-only HTTP surface over the historical store, the
// alert log, trained models and daily summaries, plus subscription
// self-service.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/smukkama/aqi-server/internal/alarming"
	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/ingestion"
	"github.com/smukkama/aqi-server/internal/predictor"
)

var validate = validator.New()

// ReadingStore is the read side of the historical store
type ReadingStore interface {
	Query(ctx context.Context, locationID string, from, to time.Time) ([]aqi.Reading, error)
	Latest(ctx context.Context, locationID string) (aqi.Reading, error)
}

type AlertStore interface {
	ListAlerts(ctx context.Context, locationID string, from, to time.Time, limit int) ([]aqi.Alert, error)
}

// DeliveryStore is the notification audit trail
type DeliveryStore interface {
	ListDeliveries(ctx context.Context, alertID uuid.UUID) ([]database.Delivery, error)
}

// AlertStateSource exposes the evaluator's per-location memory
type AlertStateSource interface {
	GetAllStates(ctx context.Context) (map[string]*alarming.AlertState, error)
}

type SummaryStore interface {
	ListDailySummaries(ctx context.Context, locationID string, from, to time.Time) ([]database.DailySummary, error)
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s *aqi.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (aqi.Subscription, error)
	UpdateSubscription(ctx context.Context, s *aqi.Subscription) error
	DeactivateSubscription(ctx context.Context, id uuid.UUID) error
}

// ModelSource returns the newest usable model for a location
type ModelSource interface {
	Latest(ctx context.Context, locationID string) (*predictor.TrainedModel, database.ModelRecord, error)
}

// Dependencies are the stores behind the API. Forecasts and AlertStates are
// optional.
type Dependencies struct {
	Locations     []aqi.Location
	Readings      ReadingStore
	Alerts        AlertStore
	Deliveries    DeliveryStore
	AlertStates   AlertStateSource
	Summaries     SummaryStore
	Subscriptions SubscriptionStore
	Models        ModelSource
	Forecasts     ingestion.ForecastProvider
}

// Config holds the HTTP server settings
type Config struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AccessLog    bool
}

// NewApp builds the fiber app with every route registered
func NewApp(cfg Config, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "aqi-api",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          ErrorHandler,
	})

	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	RegisterRoutes(app, NewHandler(deps))
	return app
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	} else {
		slog.Error("request failed", "op", "api.ErrorHandler", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")

	v1.Get("/locations", h.ListLocations)
	v1.Get("/alert-states", h.AlertStates)
	v1.Get("/alerts/:aid/deliveries", h.AlertDeliveries)

	v1.Get("/locations/:id/readings", h.requireLocation, h.Readings)
	v1.Get("/locations/:id/readings/latest", h.requireLocation, h.LatestReading)
	v1.Get("/locations/:id/readings/export.csv", h.requireLocation, h.ExportReadings)
	v1.Get("/locations/:id/alerts", h.requireLocation, h.Alerts)
	v1.Get("/locations/:id/summaries", h.requireLocation, h.Summaries)
	v1.Get("/locations/:id/model", h.requireLocation, h.LatestModel)
	v1.Get("/locations/:id/forecast", h.requireLocation, h.Forecast)
	v1.Get("/locations/:id/health-risk", h.requireLocation, h.HealthRisk)

	v1.Post("/subscriptions", h.CreateSubscription)
	v1.Get("/subscriptions/:sid", h.GetSubscription)
	v1.Put("/subscriptions/:sid", h.UpdateSubscription)
	v1.Delete("/subscriptions/:sid", h.DeactivateSubscription)
}
