package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// SMSConfig configures the SMS gateway
type SMSConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// SMSSender delivers alerts through an HTTP SMS gateway
type SMSSender struct {
	url      string
	username string
	password string
	client   *http.Client
}

type smsPayload struct {
	TextMessage struct {
		Text string `json:"text"`
	} `json:"textMessage"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// NewSMSSender creates an SMS sender posting to cfg.URL
func NewSMSSender(cfg SMSConfig) *SMSSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMSSender{
		url:      strings.TrimRight(cfg.URL, "/") + "/message",
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *SMSSender) Channel() string { return ChannelSMS }

// Send posts a short alert text to recipient
func (s *SMSSender) Send(ctx context.Context, recipient string, alert *aqi.Alert) error {
	log := slog.With("op", "SMSSender.Send", "alert_id", alert.ID)

	payload := smsPayload{PhoneNumbers: []string{recipient}}
	payload.TextMessage.Text = smsText(alert)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.SetBasicAuth(s.username, s.password)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error("sms gateway returned non-success status",
			"status_code", resp.StatusCode,
			"response_body", string(responseBody),
		)
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}

	log.Info("sms sent", "elapsed", time.Since(start))
	return nil
}

func smsText(alert *aqi.Alert) string {
	return fmt.Sprintf("AQI alert %s: %s AQI %.0f at %s. %s",
		alert.LocationID, tierLabel(alert.Tier), alert.AQI,
		alert.ReadingAt.Format("02 Jan 15:04"), alert.Tier.Message())
}
