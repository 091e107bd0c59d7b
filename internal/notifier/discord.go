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

// DiscordConfig contains configuration for Discord webhook notifications.
type DiscordConfig struct {
	// WebhookURL is the Discord webhook URL (includes the token).
	WebhookURL string

	// Timeout is the HTTP request timeout for Discord API calls.
	Timeout time.Duration
}

// DiscordNotifier sends alert notifications to Discord via webhook. The
// delivery rate is capped at 0.5 requests per second (the webhook limit of
// 30 per minute) with a burst of 3.
type DiscordNotifier struct {
	hook   *webhook
	logger *slog.Logger
}

// NewDiscordNotifier creates a Discord notifier for the given configuration.
func NewDiscordNotifier(cfg DiscordConfig, clk clock.Clock, logger *slog.Logger) *DiscordNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordNotifier{
		hook:   newWebhook(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout}, clk, 0.5, 3),
		logger: logger,
	}
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      discordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

// Discord embed limits.
const (
	maxEmbedTitleLength       = 256
	maxEmbedDescriptionLength = 4096
)

func severityColor(s health.Severity) int {
	switch s {
	case health.SeverityCritical:
		return 0xED4245 // red
	case health.SeverityHigh:
		return 0xE67E22 // orange
	case health.SeverityMedium:
		return 0xFEE75C // yellow
	default:
		return 0x5865F2 // blue
	}
}

func (n *DiscordNotifier) buildPayload(alert health.Alert) discordPayload {
	title := truncate(fmt.Sprintf("[%s] %s", alert.Severity, alert.Type), maxEmbedTitleLength)
	return discordPayload{Embeds: []discordEmbed{{
		Title:       title,
		Description: truncate(alert.Message, maxEmbedDescriptionLength),
		Color:       severityColor(alert.Severity),
		Footer:      discordEmbedFooter{Text: alert.Service},
		Timestamp:   alert.CreatedAt.Format(time.RFC3339),
	}}}
}

// NotifyAlert delivers one alert to the configured webhook.
func (n *DiscordNotifier) NotifyAlert(ctx context.Context, alert health.Alert) error {
	payload, err := json.Marshal(n.buildPayload(alert))
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	if err := n.hook.post(ctx, payload); err != nil {
		n.logger.Error("discord notification failed",
			slog.String("alert_id", alert.ID),
			slog.Any("error", err))
		return err
	}
	n.logger.Info("discord notification sent", slog.String("alert_id", alert.ID))
	return nil
}
