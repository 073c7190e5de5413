package alarming

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/protocol"
)

// AlertRecorder persists alerts. Inserting an alert id that already exists must be a no-op.
type AlertRecorder interface {
	InsertAlert(ctx context.Context, alert *aqi.Alert) error
}

// Publisher hands encoded alert events to the notification service
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Outcome describes what the evaluator did with a reading
type Outcome string

const (
	OutcomeQuiet      Outcome = "quiet"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeStale      Outcome = "stale"
	OutcomeAlerted    Outcome = "alerted"
)

// Evaluator classifies readings into tiers and emits an alert only when a
// location enters a tier it has not been alerted for within the cool-down.
//
// Readings for one location must be evaluated serially; the collector keys
// reading messages by location so each location lands on one partition.
type Evaluator struct {
	states    StateStore
	recorder  AlertRecorder
	publisher Publisher
	cooldown  time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewEvaluator creates a new alert evaluator. recorder and publisher may be nil.
func NewEvaluator(states StateStore, recorder AlertRecorder, publisher Publisher, cooldown time.Duration) *Evaluator {
	return &Evaluator{
		states:    states,
		recorder:  recorder,
		publisher: publisher,
		cooldown:  cooldown,
		now:       time.Now,
		log:       slog.With("component", "alarming"),
	}
}

// Evaluate processes one reading. It returns the emitted alert, or nil.
// Re-evaluating a reading already seen is a no-op.
func (e *Evaluator) Evaluate(ctx context.Context, r aqi.Reading) (*aqi.Alert, Outcome, error) {
	tier := aqi.ClassifyTier(r.AQI)

	state, err := e.states.GetState(ctx, r.LocationID)
	if err != nil {
		return nil, "", err
	}

	if !state.LastReadingAt.IsZero() && !r.Timestamp.After(state.LastReadingAt) {
		return nil, OutcomeStale, nil
	}

	previous := state.Tier
	state.Tier = tier
	state.LastReadingAt = r.Timestamp

	outcome := OutcomeUnchanged
	var alert *aqi.Alert

	switch {
	case tier == aqi.TierNone:
		outcome = OutcomeQuiet
	case tier == previous:
		outcome = OutcomeUnchanged
	case e.inCooldown(state, tier, r.Timestamp):
		outcome = OutcomeSuppressed
		e.log.Info("alert suppressed by cool-down",
			"location", r.LocationID, "tier", tier.String(), "aqi", r.AQI)
	default:
		alert = aqi.NewAlert(r, tier, e.now())
		if err := e.emit(ctx, alert); err != nil {
			return nil, "", err
		}
		state.LastSent[tier.String()] = r.Timestamp
		outcome = OutcomeAlerted
	}

	if err := e.states.SetState(ctx, r.LocationID, state); err != nil {
		return nil, "", err
	}

	return alert, outcome, nil
}

func (e *Evaluator) inCooldown(state *AlertState, tier aqi.Tier, at time.Time) bool {
	last, ok := state.LastSent[tier.String()]
	return ok && at.Sub(last) < e.cooldown
}

func (e *Evaluator) emit(ctx context.Context, alert *aqi.Alert) error {
	e.log.Warn("alert triggered",
		"location", alert.LocationID,
		"tier", alert.Tier.String(),
		"aqi", alert.AQI,
		"alert_id", alert.ID,
	)

	if e.recorder != nil {
		if err := e.recorder.InsertAlert(ctx, alert); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if e.publisher != nil {
		data, err := protocol.EncodeAlertEvent(protocol.NewAlertEvent(alert))
		if err != nil {
			return fmt.Errorf("failed to encode alert event: %w", err)
		}
		if err := e.publisher.Publish(ctx, alert.LocationID, data); err != nil {
			return fmt.Errorf("failed to publish alert event: %w", err)
		}
	}

	return nil
}
