package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/relvacode/iso8601"
)

// timeRange holds the from/to query parameters of a range endpoint
type timeRange struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

// parseRange reads from and to, defaulting to the window ending now
func parseRange(c *fiber.Ctx, now time.Time, window time.Duration) (timeRange, error) {
	r := timeRange{To: now.UTC()}

	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return r, fmt.Errorf("invalid to: %w", err)
		}
		r.To = to
	}
	r.From = r.To.Add(-window)
	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return r, fmt.Errorf("invalid from: %w", err)
		}
		r.From = from
	}

	if err := validate.Struct(r); err != nil {
		return r, validationError(err)
	}
	return r, nil
}

// validationError turns the first failed rule into a client-facing message
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "required_without":
		return fmt.Errorf("%s is required when %s is empty", field, strings.ToLower(fe.Param()))
	case "gtefield":
		return fmt.Errorf("%s must not be before %s", field, strings.ToLower(fe.Param()))
	case "email":
		return fmt.Errorf("%s must be a valid email address", field)
	case "e164":
		return fmt.Errorf("%s must be an E.164 phone number", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Errorf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", field, fe.Tag())
	}
}

// parseTime accepts ISO-8601 timestamps or Unix seconds
func parseTime(s string) (time.Time, error) {
	if ts, err := iso8601.ParseString(s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use ISO-8601 or unix seconds")
}

// intQuery reads an integer query parameter within [min, max]
func intQuery(c *fiber.Ctx, key string, def, min, max int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, min, max)
	}
	return v, nil
}
