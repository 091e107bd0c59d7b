// Package config assembles the monitor binary's configuration from the
// environment with an optional YAML file overlay. Construction-time
// validation fails fast: a process with broken settings never starts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ledgerlink/internal/executor"
	"ledgerlink/internal/health"
	"ledgerlink/internal/publisher"
	"ledgerlink/internal/resilience/circuitbreaker"
	"ledgerlink/internal/resilience/retry"
	pkgconfig "ledgerlink/pkg/config"
)

// Config is the full monitor configuration.
type Config struct {
	Executor  executor.Config  `yaml:"executor"`
	Publisher publisher.Config `yaml:"publisher"`
	Health    health.Config    `yaml:"health"`

	// MetricsAddr is the listen address of the Prometheus /metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// HealthAddr is the listen address of the health snapshot server.
	HealthAddr string `yaml:"health_addr"`

	// MetricsResetSchedule is a cron expression for the periodic metrics
	// reset; empty disables it.
	MetricsResetSchedule string `yaml:"metrics_reset_schedule"`
}

// Load reads configuration from the environment, then overlays the YAML
// file named by LEDGERLINK_CONFIG when set. The result is validated.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := os.Getenv("LEDGERLINK_CONFIG"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-chosen config path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and returns the first failure.
func (c *Config) Validate() error {
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	if err := c.Publisher.Validate(); err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := pkgconfig.ValidateDurationRange(c.Health.CleanupInterval, time.Second, 24*time.Hour); err != nil {
		return fmt.Errorf("health cleanup interval: %w", err)
	}
	return nil
}

func fromEnv() *Config {
	execCfg := executor.Config{
		Retry: retry.Config{
			MaxAttempts:  pkgconfig.GetEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: pkgconfig.GetEnvDuration("RETRY_INITIAL_DELAY", time.Second),
			MaxDelay:     pkgconfig.GetEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			Multiplier:   pkgconfig.GetEnvFloat("RETRY_MULTIPLIER", 2.0),
			MaxJitter:    pkgconfig.GetEnvDuration("RETRY_MAX_JITTER", time.Second),
		},
		DispatchTimeout: pkgconfig.GetEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
		QueueCapacity:   pkgconfig.GetEnvInt("QUEUE_CAPACITY", 0),
		PaceRPS:         pkgconfig.GetEnvFloat("EXECUTOR_PACE_RPS", 0),
		PaceBurst:       pkgconfig.GetEnvInt("EXECUTOR_PACE_BURST", 1),
	}
	if pkgconfig.GetEnvBool("BREAKER_ENABLED", false) {
		breaker := circuitbreaker.ReadPathConfig()
		execCfg.Breaker = &breaker
	}

	pubCfg := publisher.Config{
		Endpoint:       pkgconfig.GetEnvString("PUBLISH_ENDPOINT", "/v1/transactions"),
		Method:         pkgconfig.GetEnvString("PUBLISH_METHOD", "SUBMIT"),
		ConfirmTimeout: pkgconfig.GetEnvDuration("CONFIRM_TIMEOUT", 60*time.Second),
		Retry: retry.Config{
			MaxAttempts:  pkgconfig.GetEnvInt("PUBLISH_MAX_ATTEMPTS", 3),
			InitialDelay: pkgconfig.GetEnvDuration("PUBLISH_INITIAL_DELAY", 2*time.Second),
			MaxDelay:     pkgconfig.GetEnvDuration("PUBLISH_MAX_DELAY", 20*time.Second),
			Multiplier:   pkgconfig.GetEnvFloat("PUBLISH_MULTIPLIER", 2.0),
			MaxJitter:    pkgconfig.GetEnvDuration("PUBLISH_MAX_JITTER", time.Second),
		},
	}

	healthCfg := health.Config{
		Interval:          pkgconfig.GetEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		ProbeTimeout:      pkgconfig.GetEnvDuration("HEALTH_PROBE_TIMEOUT", 10*time.Second),
		DegradedAfter:     pkgconfig.GetEnvDuration("HEALTH_DEGRADED_AFTER", 2*time.Second),
		SlowAlertAfter:    pkgconfig.GetEnvDuration("HEALTH_SLOW_ALERT_AFTER", 5*time.Second),
		FailureAlertAfter: pkgconfig.GetEnvInt("HEALTH_FAILURE_ALERT_AFTER", 3),
		HistoryCycles:     pkgconfig.GetEnvInt("HEALTH_HISTORY_CYCLES", 200),
		AlertRetention:    pkgconfig.GetEnvDuration("ALERT_RETENTION", time.Hour),
		CleanupInterval:   pkgconfig.GetEnvDuration("ALERT_CLEANUP_INTERVAL", 5*time.Minute),
	}

	return &Config{
		Executor:             execCfg,
		Publisher:            pubCfg,
		Health:               healthCfg,
		MetricsAddr:          pkgconfig.GetEnvString("METRICS_ADDR", ":9090"),
		HealthAddr:           pkgconfig.GetEnvString("HEALTH_ADDR", ":9091"),
		MetricsResetSchedule: pkgconfig.GetEnvString("METRICS_RESET_SCHEDULE", ""),
	}
}
