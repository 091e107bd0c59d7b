package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/config"
	"ledgerlink/internal/executor"
	"ledgerlink/internal/health"
	"ledgerlink/internal/infra/ledgerhttp"
	"ledgerlink/internal/notifier"
	"ledgerlink/internal/observability/logging"
	"ledgerlink/internal/observability/tracing"
	"ledgerlink/internal/publisher"
	"ledgerlink/internal/server"
	pkgconfig "ledgerlink/pkg/config"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	shutdownTracing := tracing.Init()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("retry_max_attempts", cfg.Executor.Retry.MaxAttempts),
		slog.Duration("health_interval", cfg.Health.Interval),
		slog.String("metrics_addr", cfg.MetricsAddr),
		slog.String("health_addr", cfg.HealthAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	baseURL := pkgconfig.GetEnvString("LEDGER_BASE_URL", "http://localhost:8545")
	transportClient, err := ledgerhttp.New(baseURL, nil, clk)
	if err != nil {
		logger.Error("failed to build transport", slog.Any("error", err))
		os.Exit(1)
	}

	exec, err := executor.New(transportClient, clk, logger, cfg.Executor)
	if err != nil {
		logger.Error("failed to build executor", slog.Any("error", err))
		os.Exit(1)
	}

	pub, err := publisher.New(exec, transportClient, clk, logger, cfg.Publisher)
	if err != nil {
		logger.Error("failed to build publisher", slog.Any("error", err))
		os.Exit(1)
	}

	monitor, err := health.NewMonitor(clk, logger, cfg.Health,
		&health.ExecutorProbe{Exec: exec},
		&health.QueueProbe{Exec: exec},
		&health.EndpointProbe{
			ProbeName: "ledger-endpoint",
			Transport: transportClient,
			Method:    http.MethodGet,
			Endpoint:  pkgconfig.GetEnvString("HEALTH_PING_ENDPOINT", "/v1/status"),
		},
	)
	if err != nil {
		logger.Error("failed to build health monitor", slog.Any("error", err))
		os.Exit(1)
	}

	alertNotifier := buildNotifier(clk, logger)
	monitor.OnAlert(func(a health.Alert) {
		go func() {
			notifyCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := alertNotifier.NotifyAlert(notifyCtx, a); err != nil {
				logger.Error("alert notification failed",
					slog.String("alert_id", a.ID),
					slog.Any("error", err))
			}
		}()
	})

	healthServer := server.NewHealthServer(cfg.HealthAddr, logger, monitor)
	healthServer.AttachPublisher(pub)

	scheduler := startScheduler(logger, cfg, exec, monitor)
	defer scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		exec.Run(ctx)
		return nil
	})
	g.Go(func() error {
		monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		err := healthServer.Start(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return runMetricsServer(ctx, logger, cfg.MetricsAddr)
	})

	healthServer.SetReady(true)
	logger.Info("monitor started")

	if err := g.Wait(); err != nil {
		logger.Error("monitor exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("monitor stopped")
}

// buildNotifier picks the alert channel from the environment: Slack wins
// when both webhooks are set, and no webhook means notifications are off.
func buildNotifier(clk clock.Clock, logger *slog.Logger) notifier.Notifier {
	if url := pkgconfig.GetEnvString("SLACK_WEBHOOK_URL", ""); url != "" {
		logger.Info("alert notifications via slack webhook")
		return notifier.NewSlackNotifier(notifier.SlackConfig{
			WebhookURL: url,
			Timeout:    pkgconfig.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		}, clk, logger)
	}
	if url := pkgconfig.GetEnvString("DISCORD_WEBHOOK_URL", ""); url != "" {
		logger.Info("alert notifications via discord webhook")
		return notifier.NewDiscordNotifier(notifier.DiscordConfig{
			WebhookURL: url,
			Timeout:    pkgconfig.GetEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		}, clk, logger)
	}
	logger.Info("alert notifications disabled")
	return notifier.NewNoop()
}

// startScheduler wires the periodic maintenance jobs: an optional metrics
// reset and an hourly statistics log line for operators without a
// Prometheus stack.
func startScheduler(logger *slog.Logger, cfg *config.Config, exec *executor.Executor, monitor *health.Monitor) *cron.Cron {
	scheduler := cron.New()

	if cfg.MetricsResetSchedule != "" {
		_, err := scheduler.AddFunc(cfg.MetricsResetSchedule, func() {
			exec.ResetMetrics()
		})
		if err != nil {
			logger.Error("invalid metrics reset schedule, skipping",
				slog.String("schedule", cfg.MetricsResetSchedule),
				slog.Any("error", err))
		}
	}

	_, err := scheduler.AddFunc("@hourly", func() {
		stats := monitor.Statistics()
		logger.Info("health statistics",
			slog.Float64("uptime_pct", stats.UptimePercentage),
			slog.Duration("avg_response_time", stats.AvgResponseTime),
			slog.String("trend", string(stats.Trend)),
			slog.Int("active_alerts", stats.ActiveAlertCount))
	})
	if err != nil {
		logger.Error("failed to schedule statistics log", slog.Any("error", err))
	}

	scheduler.Start()
	return scheduler
}
