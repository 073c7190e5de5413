package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/aqi-server/internal/aqi"
	"github.com/smukkama/aqi-server/internal/database"
)

// Delivery channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Sender delivers an alert to one recipient over one channel
type Sender interface {
	Channel() string
	Send(ctx context.Context, recipient string, alert *aqi.Alert) error
}

// DeliveryRecorder keeps the delivery audit trail
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d *database.Delivery) error
	WasDelivered(ctx context.Context, alertID, subscriptionID uuid.UUID, channel string) (bool, error)
}

// DeliveryFailure is a failed delivery to a single recipient
type DeliveryFailure struct {
	SubscriptionID uuid.UUID
	Channel        string
	Recipient      string
	Err            error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery to %s via %s failed: %v", e.SubscriptionID, e.Channel, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// DeliveryResult is the outcome for one subscription and channel
type DeliveryResult struct {
	SubscriptionID uuid.UUID
	Channel        string
	Recipient      string
	Status         string // sent, failed or skipped
	Reason         string
	Err            error
}

// Dispatcher fans an alert out to matching subscriptions
type Dispatcher struct {
	senders  map[string]Sender
	recorder DeliveryRecorder
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(recorder DeliveryRecorder, timeout time.Duration, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Dispatcher{
		senders:  make(map[string]Sender, len(senders)),
		recorder: recorder,
		timeout:  timeout,
		now:      time.Now,
		log:      slog.With("component", "dispatcher"),
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

func contacts(sub aqi.Subscription) map[string]string {
	out := make(map[string]string, 2)
	if sub.Email != "" {
		out[ChannelEmail] = sub.Email
	}
	if sub.Phone != "" {
		out[ChannelSMS] = sub.Phone
	}
	return out
}

// Dispatch delivers alert to every active subscription covering its location
// at or above its threshold. Failures are isolated per recipient and
// returned as results, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *aqi.Alert, subs []aqi.Subscription) []DeliveryResult {
	var results []DeliveryResult

	for _, sub := range subs {
		if !sub.Matches(alert) {
			continue
		}
		for _, channel := range []string{ChannelEmail, ChannelSMS} {
			recipient, ok := contacts(sub)[channel]
			if !ok {
				continue
			}
			result := d.deliver(ctx, alert, sub, channel, recipient)
			d.record(ctx, alert, result)
			results = append(results, result)
		}
	}

	return results
}

func (d *Dispatcher) deliver(ctx context.Context, alert *aqi.Alert, sub aqi.Subscription, channel, recipient string) (result DeliveryResult) {
	result = DeliveryResult{SubscriptionID: sub.ID, Channel: channel, Recipient: recipient}

	sender, ok := d.senders[channel]
	if !ok {
		result.Status = database.DeliveryStatusSkipped
		result.Reason = "channel not configured"
		return result
	}

	if d.recorder != nil {
		sent, err := d.recorder.WasDelivered(ctx, alert.ID, sub.ID, channel)
		if err != nil {
			d.log.Warn("failed to check delivery history", "alert_id", alert.ID, "error", err)
		}
		if sent {
			result.Status = database.DeliveryStatusSkipped
			result.Reason = "already delivered"
			return result
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = database.DeliveryStatusFailed
			result.Err = &DeliveryFailure{SubscriptionID: sub.ID, Channel: channel, Recipient: recipient, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(sendCtx, recipient, alert); err != nil {
		result.Status = database.DeliveryStatusFailed
		result.Err = &DeliveryFailure{SubscriptionID: sub.ID, Channel: channel, Recipient: recipient, Err: err}
		return result
	}

	result.Status = database.DeliveryStatusSent
	return result
}

func (d *Dispatcher) record(ctx context.Context, alert *aqi.Alert, result DeliveryResult) {
	log := d.log.With(
		"alert_id", alert.ID,
		"location", alert.LocationID,
		"subscription_id", result.SubscriptionID,
		"channel", result.Channel,
		"status", result.Status,
	)
	switch result.Status {
	case database.DeliveryStatusFailed:
		log.Error("delivery failed", "error", result.Err)
	case database.DeliveryStatusSkipped:
		log.Info("delivery skipped", "reason", result.Reason)
	default:
		log.Info("delivery sent")
	}

	if d.recorder == nil {
		return
	}

	errText := result.Reason
	if result.Err != nil {
		errText = result.Err.Error()
	}
	err := d.recorder.RecordDelivery(ctx, &database.Delivery{
		AlertID:        alert.ID,
		SubscriptionID: result.SubscriptionID,
		Channel:        result.Channel,
		Recipient:      result.Recipient,
		Status:         result.Status,
		Error:          errText,
		AttemptedAt:    d.now().UTC(),
	})
	if err != nil {
		log.Error("failed to record delivery", "error", err)
	}
}
