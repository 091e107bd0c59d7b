// Package notifier delivers raised alerts to external channels. It defines
// the Notifier interface so different mechanisms (Slack, Discord, none) are
// interchangeable through dependency injection.
package notifier

import (
	"context"

	"ledgerlink/internal/health"
)

// Notifier is implemented by alert delivery channels. Implementations handle
// rate limiting and transient retries internally; a returned error means the
// delivery failed for good.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert health.Alert) error
}

// Noop discards every alert. Used when no channel is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) NotifyAlert(context.Context, health.Alert) error { return nil }
