package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/resilience/retry"
	"ledgerlink/internal/transport"
)

// webhook is the shared delivery core for Slack and Discord: a rate-limited
// HTTP POST with transient-failure retry. Non-2xx statuses surface as
// *transport.StatusError so the usual classification applies (429 and 5xx
// retry, other 4xx do not).
type webhook struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	clk        clock.Clock
	retryCfg   retry.Config
}

func newWebhook(url string, httpClient *http.Client, clk clock.Clock, rps float64, burst int) *webhook {
	if clk == nil {
		clk = clock.New()
	}
	return &webhook{
		url:        url,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		clk:        clk,
		retryCfg:   retry.DefaultConfig(),
	}
}

// post delivers one JSON payload, retrying transient failures.
func (w *webhook) post(ctx context.Context, payload []byte) error {
	return retry.WithBackoff(ctx, w.clk, w.retryCfg, func() error {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		return w.postOnce(ctx, payload)
	})
}

func (w *webhook) postOnce(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &transport.StatusError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}
	return nil
}

const truncationSuffix = "..."

// truncate shortens s to at most max bytes, appending the suffix when
// anything was cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(truncationSuffix)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncationSuffix
}
