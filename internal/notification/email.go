package notification

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"gopkg.in/gomail.v2"

	"github.com/smukkama/aqi-server/internal/aqi"
)

// SMTPConfig configures the email sender
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailer is the part of gomail.Dialer the sender uses
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers alerts by email
type EmailSender struct {
	from   string
	mailer mailer
}

// NewEmailSender creates an email sender over SMTP
func NewEmailSender(cfg SMTPConfig) *EmailSender {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailSender{
		from:   from,
		mailer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (e *EmailSender) Channel() string { return ChannelEmail }

// Send renders the alert and mails it to recipient
func (e *EmailSender) Send(ctx context.Context, recipient string, alert *aqi.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderAlertEmail(alert)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", alertSubject(alert))
	m.SetBody("text/plain", body)

	// DialAndSend takes no context and sets no deadlines once connected, so
	// it runs apart from the caller. A stalled server holds only the goroutine.
	done := make(chan error, 1)
	go func() {
		done <- e.mailer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	}

	slog.Info("email sent", "alert_id", alert.ID, "to", recipient)
	return nil
}

func alertSubject(alert *aqi.Alert) string {
	return fmt.Sprintf("Air quality alert: %s AQI at %s", tierLabel(alert.Tier), alert.LocationID)
}

func tierLabel(t aqi.Tier) string {
	switch t {
	case aqi.TierMedium:
		return "Medium"
	case aqi.TierHigh:
		return "High"
	case aqi.TierVeryHigh:
		return "Very High"
	default:
		return "No"
	}
}

var alertEmailTemplate = template.Must(template.New("alert").Parse(`
Air Quality Alert
=================

Location: {{.Alert.LocationID}}
Severity: {{.Tier}}
AQI: {{printf "%.0f" .Alert.AQI}} ({{.Category.Name}})
Reading Time: {{.Alert.ReadingAt.Format "2006-01-02 15:04 MST"}}
Alert ID: {{.Alert.ID}}
{{with .Reading}}
Pollutants (ug/m3):
  PM2.5: {{printf "%.1f" .PM25}}
  PM10:  {{printf "%.1f" .PM10}}
  CO:    {{printf "%.1f" .CO}}
  NO2:   {{printf "%.1f" .NO2}}
  O3:    {{printf "%.1f" .O3}}
{{end}}
{{.Alert.Tier.Message}}

{{.Category.Message}}
{{range .Category.Actions}}
  - {{.}}{{end}}

---
AQI Monitoring Notification System
`))

func renderAlertEmail(alert *aqi.Alert) (string, error) {
	data := struct {
		Alert    *aqi.Alert
		Tier     string
		Category aqi.Category
		Reading  *aqi.Reading
	}{
		Alert:    alert,
		Tier:     tierLabel(alert.Tier),
		Category: aqi.CategoryFor(alert.AQI),
	}
	// alerts stored before readings were kept have none to show
	if !alert.Reading.Timestamp.IsZero() {
		data.Reading = &alert.Reading
	}

	var buf bytes.Buffer
	if err := alertEmailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
