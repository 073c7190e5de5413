package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
	"github.com/smukkama/aqi-server/internal/predictor"
	"github.com/smukkama/aqi-server/internal/store"
)

const (
	defaultReadingWindow = 24 * time.Hour
	defaultAlertWindow   = 7 * 24 * time.Hour
	defaultSummaryWindow = 30 * 24 * time.Hour
	exportWindow         = 30 * 24 * time.Hour
	maxForecastHours     = 168
)

// Handler serves the API routes
type Handler struct {
	deps      Dependencies
	locations map[string]aqi.Location
	now       func() time.Time
}

// NewHandler creates a handler over deps
func NewHandler(deps Dependencies) *Handler {
	locations := make(map[string]aqi.Location, len(deps.Locations))
	for _, loc := range deps.Locations {
		locations[loc.ID] = loc
	}
	return &Handler{deps: deps, locations: locations, now: time.Now}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"service":   "aqi-api",
		"locations": len(h.locations),
	})
}

func (h *Handler) ListLocations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"locations": h.deps.Locations})
}

// requireLocation rejects unknown location ids before any handler runs
func (h *Handler) requireLocation(c *fiber.Ctx) error {
	loc, ok := h.locations[c.Params("id")]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown location")
	}
	c.Locals("location", loc)
	return c.Next()
}

func location(c *fiber.Ctx) aqi.Location {
	loc, _ := c.Locals("location").(aqi.Location)
	return loc
}

func (h *Handler) Readings(c *fiber.Ctx) error {
	loc := location(c)
	r, err := parseRange(c, h.now(), defaultReadingWindow)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	readings, err := h.deps.Readings.Query(c.Context(), loc.ID, r.From, r.To)
	if err != nil {
		return fmt.Errorf("query readings: %w", err)
	}

	return c.JSON(fiber.Map{
		"location": loc,
		"from":     r.From,
		"to":       r.To,
		"readings": readings,
	})
}

func (h *Handler) LatestReading(c *fiber.Ctx) error {
	loc := location(c)
	reading, err := h.deps.Readings.Latest(c.Context(), loc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no readings for location")
	}
	if err != nil {
		return fmt.Errorf("latest reading: %w", err)
	}

	return c.JSON(fiber.Map{
		"location": loc,
		"reading":  reading,
		"category": aqi.CategoryFor(reading.AQI),
		"tier":     aqi.ClassifyTier(reading.AQI),
	})
}

var csvHeader = []string{"timestamp", "aqi", "provider_index", "pm2_5", "pm10", "co", "no2", "o3", "source"}

// ExportReadings streams the location's history as CSV
func (h *Handler) ExportReadings(c *fiber.Ctx) error {
	loc := location(c)
	r, err := parseRange(c, h.now(), exportWindow)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	readings, err := h.deps.Readings.Query(c.Context(), loc.ID, r.From, r.To)
	if err != nil {
		return fmt.Errorf("query readings: %w", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s_aqi.csv"`, loc.ID))

	w := csv.NewWriter(c.Response().BodyWriter())
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, rd := range readings {
		row := []string{
			rd.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(rd.AQI),
			strconv.Itoa(rd.ProviderIndex),
			formatFloat(rd.PM25),
			formatFloat(rd.PM10),
			formatFloat(rd.CO),
			formatFloat(rd.NO2),
			formatFloat(rd.O3),
			rd.Source,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (h *Handler) Alerts(c *fiber.Ctx) error {
	loc := location(c)
	r, err := parseRange(c, h.now(), defaultAlertWindow)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	limit, err := intQuery(c, "limit", 100, 1, 1000)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	alerts, err := h.deps.Alerts.ListAlerts(c.Context(), loc.ID, r.From, r.To, limit)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	return c.JSON(fiber.Map{
		"location": loc,
		"from":     r.From,
		"to":       r.To,
		"alerts":   alerts,
	})
}

// AlertDeliveries lists every delivery attempt recorded for an alert
func (h *Handler) AlertDeliveries(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("aid"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid alert id")
	}

	deliveries, err := h.deps.Deliveries.ListDeliveries(c.Context(), id)
	if err != nil {
		return fmt.Errorf("list deliveries: %w", err)
	}

	sent := 0
	for _, d := range deliveries {
		if d.Status == database.DeliveryStatusSent {
			sent++
		}
	}
	return c.JSON(fiber.Map{
		"alert_id":   id,
		"sent":       sent,
		"deliveries": deliveries,
	})
}

// AlertStates reports the tier each location was last seen in
func (h *Handler) AlertStates(c *fiber.Ctx) error {
	if h.deps.AlertStates == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "alert states unavailable")
	}
	states, err := h.deps.AlertStates.GetAllStates(c.Context())
	if err != nil {
		return fmt.Errorf("alert states: %w", err)
	}
	return c.JSON(fiber.Map{"states": states})
}

func (h *Handler) Summaries(c *fiber.Ctx) error {
	loc := location(c)
	r, err := parseRange(c, h.now(), defaultSummaryWindow)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	summaries, err := h.deps.Summaries.ListDailySummaries(c.Context(), loc.ID, r.From, r.To)
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}

	goodDays := 0
	for _, s := range summaries {
		if s.GoodAir {
			goodDays++
		}
	}

	return c.JSON(fiber.Map{
		"location":        loc,
		"from":            r.From,
		"to":              r.To,
		"good_air_days":   goodDays,
		"daily_summaries": summaries,
	})
}

// LatestModel reports the newest model's metadata. A model trained on an
// older feature list is returned with usable=false.
func (h *Handler) LatestModel(c *fiber.Ctx) error {
	loc := location(c)
	_, rec, err := h.deps.Models.Latest(c.Context(), loc.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no trained model for location")
	case errors.Is(err, predictor.ErrFeatureDrift):
		return c.JSON(fiber.Map{"model": rec, "usable": false})
	case err != nil:
		return fmt.Errorf("latest model: %w", err)
	}
	return c.JSON(fiber.Map{"model": rec, "usable": true})
}

// Forecast predicts the next hours from the latest model and appends the
// provider's own forecast when one is configured.
func (h *Handler) Forecast(c *fiber.Ctx) error {
	loc := location(c)
	hours, err := intQuery(c, "hours", 24, 1, maxForecastHours)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.Context()
	model, rec, err := h.deps.Models.Latest(ctx, loc.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no trained model for location")
	case errors.Is(err, predictor.ErrFeatureDrift):
		return fiber.NewError(fiber.StatusConflict, "model was trained on an outdated feature list")
	case err != nil:
		return fmt.Errorf("latest model: %w", err)
	}

	latest, err := h.deps.Readings.Latest(ctx, loc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no readings for location")
	}
	if err != nil {
		return fmt.Errorf("latest reading: %w", err)
	}

	from := latest.Timestamp.Add(-predictor.MinHistory - 48*time.Hour)
	history, err := h.deps.Readings.Query(ctx, loc.ID, from, latest.Timestamp.Add(time.Second))
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	predictions, err := predictor.Forecast(model, history, hours)
	if errors.Is(err, predictor.ErrInsufficientHistory) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	resp := fiber.Map{
		"location":    loc,
		"model":       rec,
		"predictions": predictions,
	}

	if h.deps.Forecasts != nil {
		provided, err := h.deps.Forecasts.Forecast(ctx, loc)
		if err != nil {
			slog.Warn("provider forecast unavailable", "op", "api.Forecast", "location", loc.ID, "error", err)
		} else {
			resp["provider_forecast"] = provided
		}
	}

	return c.JSON(resp)
}

// HealthRisk scores the latest reading against the caller's health profile
func (h *Handler) HealthRisk(c *fiber.Ctx) error {
	loc := location(c)

	// Adult default; an omitted age must not score as an infant
	profile := aqi.HealthProfile{Age: 30}
	if err := c.QueryParser(&profile); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(profile); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	reading, err := h.deps.Readings.Latest(c.Context(), loc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no readings for location")
	}
	if err != nil {
		return fmt.Errorf("latest reading: %w", err)
	}

	return c.JSON(fiber.Map{
		"location": loc,
		"aqi":      reading.AQI,
		"at":       reading.Timestamp,
		"category": aqi.CategoryFor(reading.AQI),
		"risk":     aqi.AssessRisk(reading.AQI, profile),
	})
}
