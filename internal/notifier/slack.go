package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/health"
)

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack Incoming Webhook URL (includes the token).
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls.
	Timeout time.Duration
}

// SlackNotifier sends alert notifications to Slack via Incoming Webhook.
// The delivery rate is capped at 1 request per second, matching the Slack
// webhook limit.
type SlackNotifier struct {
	hook   *webhook
	logger *slog.Logger
}

// NewSlackNotifier creates a Slack notifier for the given configuration.
func NewSlackNotifier(cfg SlackConfig, clk clock.Clock, logger *slog.Logger) *SlackNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		hook:   newWebhook(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout}, clk, 1.0, 1),
		logger: logger,
	}
}

// slackPayload is the Block Kit message sent to the webhook.
type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const maxSlackTextLength = 3000

func severityEmoji(s health.Severity) string {
	switch s {
	case health.SeverityCritical:
		return ":rotating_light:"
	case health.SeverityHigh:
		return ":red_circle:"
	case health.SeverityMedium:
		return ":large_orange_circle:"
	default:
		return ":large_yellow_circle:"
	}
}

func (n *SlackNotifier) buildPayload(alert health.Alert) slackPayload {
	header := fmt.Sprintf("%s *%s* alert: %s", severityEmoji(alert.Severity), alert.Severity, alert.Type)
	body := fmt.Sprintf("service: `%s`\n%s", alert.Service, truncate(alert.Message, maxSlackTextLength))
	return slackPayload{Blocks: []slackBlock{
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: header}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: body}},
	}}
}

// NotifyAlert delivers one alert to the configured webhook.
func (n *SlackNotifier) NotifyAlert(ctx context.Context, alert health.Alert) error {
	payload, err := json.Marshal(n.buildPayload(alert))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.hook.post(ctx, payload); err != nil {
		n.logger.Error("slack notification failed",
			slog.String("alert_id", alert.ID),
			slog.Any("error", err))
		return err
	}
	n.logger.Info("slack notification sent", slog.String("alert_id", alert.ID))
	return nil
}
