// Package server exposes the health monitor's accessors over HTTP for the
// surrounding service: liveness/readiness probes plus the health snapshot,
// history, statistics and alert endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"ledgerlink/internal/health"
	"ledgerlink/internal/publisher"
	"ledgerlink/internal/resilience"
)

// HealthServer serves the monitor's read-side API.
//
// Endpoints:
//   - GET /health: liveness probe (always 200 OK)
//   - GET /health/ready: readiness probe (200 if ready, 503 if not)
//   - GET /health/status: cached SystemHealth snapshot from the last cycle
//   - GET /health/check: runs one cycle synchronously and returns it
//   - GET /health/history?limit=N: recent cycle records
//   - GET /health/stats: uptime, average response time and trend
//   - GET /alerts: every retained alert
//   - POST /alerts/resolve?id=<alert-id>: resolves an alert
//   - POST /publish: submits a transaction payload (when a publisher is
//     attached) and waits for its confirmation
//
// The server supports graceful shutdown via context cancellation.
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	monitor *health.Monitor
	pub     *publisher.Publisher
	isReady *atomic.Bool
	server  *http.Server
}

type statusResponse struct {
	Status string `json:"status"`
}

// NewHealthServer creates a health API server over the given monitor. Call
// Start to begin serving and SetReady(true) once initialization completes.
func NewHealthServer(addr string, logger *slog.Logger, monitor *health.Monitor) *HealthServer {
	isReady := &atomic.Bool{}
	isReady.Store(false)

	return &HealthServer{
		addr:    addr,
		logger:  logger,
		monitor: monitor,
		isReady: isReady,
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
// with a 5-second timeout. It returns http.ErrServerClosed on a clean stop.
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/status", h.handleStatus)
	mux.HandleFunc("GET /health/check", h.handleCheck)
	mux.HandleFunc("GET /health/history", h.handleHistory)
	mux.HandleFunc("GET /health/stats", h.handleStats)
	mux.HandleFunc("GET /alerts", h.handleAlerts)
	mux.HandleFunc("POST /alerts/resolve", h.handleResolveAlert)
	if h.pub != nil {
		mux.HandleFunc("POST /publish", h.handlePublish)
	}

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// AttachPublisher enables the POST /publish endpoint. Call before Start.
func (h *HealthServer) AttachPublisher(pub *publisher.Publisher) {
	h.pub = pub
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready"})
}

// handleStatus returns the cached snapshot; it never triggers a cycle, so
// it stays cheap enough for dashboards polling aggressively.
func (h *HealthServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.monitor.LastStatus()
	code := http.StatusOK
	if snapshot.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, snapshot)
}

func (h *HealthServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	snapshot := h.monitor.PerformHealthCheck(r.Context())
	code := http.StatusOK
	if snapshot.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, snapshot)
}

func (h *HealthServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	h.writeJSON(w, http.StatusOK, h.monitor.History(limit))
}

func (h *HealthServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.monitor.Statistics())
}

func (h *HealthServer) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.monitor.Alerts())
}

func (h *HealthServer) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	if err := h.monitor.ResolveAlert(id); err != nil {
		if errors.Is(err, health.ErrAlertNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "resolved"})
}

const maxPublishBytes = 1 << 20

type publishResponse struct {
	Handle         string `json:"handle"`
	Accepted       bool   `json:"accepted"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// handlePublish submits the request body as a transaction and waits for its
// confirmation. The caller may pin an Idempotency-Key header to make the
// request safe to repeat; otherwise one is minted per call.
func (h *HealthServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBytes))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if len(payload) == 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload is required"})
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = publisher.NewIdempotencyKey()
	}

	conf, err := h.pub.Publish(r.Context(), payload, key)
	if err != nil {
		var perm *resilience.PermanentError
		var exhausted *resilience.ExhaustedError
		switch {
		case errors.As(err, &perm):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		case errors.As(err, &exhausted):
			h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, publishResponse{
		Handle:         conf.Handle,
		Accepted:       conf.Accepted,
		Reason:         conf.Reason,
		IdempotencyKey: key,
	})
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
