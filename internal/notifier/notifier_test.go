package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/health"
)

// instantClock keeps webhook retry backoff from sleeping in real time.
type instantClock struct {
	clock.Clock
}

func (instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testAlert() health.Alert {
	return health.Alert{
		ID:        "alert-1",
		Type:      health.AlertServiceUnhealthy,
		Severity:  health.SeverityCritical,
		Message:   "service unhealthy: connection refused",
		Service:   "ledger",
		CreatedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSlackNotifier_SendsBlockKitPayload(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	n := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Timeout: time.Second}, instantClock{Clock: clock.New()}, quietLogger())
	require.NoError(t, n.NotifyAlert(context.Background(), testAlert()))

	var payload slackPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	require.Len(t, payload.Blocks, 2)
	assert.Contains(t, payload.Blocks[0].Text.Text, "critical")
	assert.Contains(t, payload.Blocks[0].Text.Text, health.AlertServiceUnhealthy)
	assert.Contains(t, payload.Blocks[1].Text.Text, "ledger")
}

func TestSlackNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	n := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Timeout: time.Second}, instantClock{Clock: clock.New()}, quietLogger())
	require.NoError(t, n.NotifyAlert(context.Background(), testAlert()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSlackNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Timeout: time.Second}, instantClock{Clock: clock.New()}, quietLogger())
	err := n.NotifyAlert(context.Background(), testAlert())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiscordNotifier_SendsEmbed(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Timeout: time.Second}, instantClock{Clock: clock.New()}, quietLogger())
	require.NoError(t, n.NotifyAlert(context.Background(), testAlert()))

	var payload discordPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]
	assert.Contains(t, embed.Title, "critical")
	assert.Equal(t, 0xED4245, embed.Color)
	assert.Equal(t, "ledger", embed.Footer.Text)
	assert.Equal(t, "2026-01-01T12:00:00Z", embed.Timestamp)
}

func TestDiscordNotifier_TruncatesLongMessages(t *testing.T) {
	alert := testAlert()
	alert.Message = strings.Repeat("x", 5000)

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: "http://unused.invalid"}, nil, quietLogger())
	payload := n.buildPayload(alert)

	desc := payload.Embeds[0].Description
	assert.Len(t, desc, maxEmbedDescriptionLength)
	assert.True(t, strings.HasSuffix(desc, truncationSuffix))
}

func TestNoop(t *testing.T) {
	assert.NoError(t, NewNoop().NotifyAlert(context.Background(), testAlert()))
}
