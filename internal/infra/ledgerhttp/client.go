// Package ledgerhttp adapts a plain HTTP endpoint to the transport
// interface the resilience core expects. It extracts the endpoint's quota
// headers and polls for write confirmations.
package ledgerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/transport"
)

const (
	headerRemaining      = "X-RateLimit-Remaining"
	headerReset          = "X-RateLimit-Reset"
	headerIdempotencyKey = "Idempotency-Key"

	defaultPollInterval = 2 * time.Second
	maxResponseBytes    = 4 << 20
)

// Client implements transport.Transport over HTTP.
type Client struct {
	base         *url.URL
	httpClient   *http.Client
	clk          clock.Clock
	pollInterval time.Duration
}

// New creates a client for the given base URL. A nil httpClient falls back
// to a client with a 30-second overall timeout.
func New(baseURL string, httpClient *http.Client, clk clock.Clock) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Client{
		base:         base,
		httpClient:   httpClient,
		clk:          clk,
		pollInterval: defaultPollInterval,
	}, nil
}

// Do delivers one request. Non-2xx statuses come back as a *StatusError
// carrying any quota headers the error response included.
func (c *Client) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	target := c.base.JoinPath(req.Endpoint)

	method := req.Method
	if method == "" || method == "SUBMIT" {
		method = http.MethodPost
	}
	var body io.Reader
	if len(req.Payload) > 0 {
		body = bytes.NewReader(req.Payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey)
	}

	started := c.clk.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()
	elapsed := c.clk.Now().Sub(started)

	limits := parseRateLimit(httpResp.Header)
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &transport.StatusError{
			StatusCode: httpResp.StatusCode,
			Message:    http.StatusText(httpResp.StatusCode),
			RateLimit:  limits,
		}
	}

	return &transport.Response{
		StatusCode: httpResp.StatusCode,
		Handle:     parseHandle(respBody),
		RateLimit:  limits,
		Body:       respBody,
		Elapsed:    elapsed,
	}, nil
}

// Confirm polls the confirmation resource until the write reaches a
// terminal state or ctx expires.
func (c *Client) Confirm(ctx context.Context, handle string) (*transport.Confirmation, error) {
	target := c.base.JoinPath("confirmations", handle)

	for {
		conf, done, err := c.pollOnce(ctx, target.String(), handle)
		if err != nil {
			return nil, err
		}
		if done {
			return conf, nil
		}
		if err := c.clk.Sleep(ctx, c.pollInterval); err != nil {
			return nil, fmt.Errorf("confirmation wait: %w", err)
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, target, handle string) (*transport.Confirmation, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build confirm request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode == http.StatusNotFound {
		// Not yet visible; keep polling.
		return nil, false, nil
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, false, &transport.StatusError{
			StatusCode: httpResp.StatusCode,
			Message:    http.StatusText(httpResp.StatusCode),
		}
	}

	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, false, fmt.Errorf("read confirmation: %w", err)
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, fmt.Errorf("parse confirmation: %w", err)
	}

	switch payload.Status {
	case "confirmed":
		return &transport.Confirmation{Handle: handle, Accepted: true}, true, nil
	case "rejected", "reverted":
		return &transport.Confirmation{Handle: handle, Accepted: false, Reason: payload.Reason}, true, nil
	default:
		// Still pending.
		return nil, false, nil
	}
}

// parseRateLimit extracts the quota headers. Reset accepts either a Unix
// timestamp or a delta in seconds.
func parseRateLimit(h http.Header) *transport.RateLimitInfo {
	remainingRaw := h.Get(headerRemaining)
	if remainingRaw == "" {
		return nil
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return nil
	}

	info := &transport.RateLimitInfo{Remaining: remaining}
	if resetRaw := h.Get(headerReset); resetRaw != "" {
		if v, err := strconv.ParseInt(resetRaw, 10, 64); err == nil {
			if v > 1e9 {
				info.ResetAt = time.Unix(v, 0)
			} else {
				info.ResetAt = time.Now().Add(time.Duration(v) * time.Second)
			}
		}
	}
	return info
}

func parseHandle(body []byte) string {
	var payload struct {
		Handle string `json:"handle"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Handle != "" {
		return payload.Handle
	}
	return payload.ID
}
