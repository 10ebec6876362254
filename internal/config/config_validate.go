// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Validate checks that required configuration is present and valid.
// Sections are checked in load order and the first failure is returned,
// worded around the environment variable the operator has to fix.
func (c *Config) Validate() error {
	sections := []func() error{
		c.validateEngine,
		c.validatePatterns,
		c.validateCapture,
		c.validateServer,
		c.validateAPI,
		c.validateWebhook,
		c.validateNATS,
		c.validateLogging,
	}

	for _, section := range sections {
		if err := section(); err != nil {
			return err
		}
	}
	return nil
}

// firstErr returns the first non-nil error in errs.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// intBetween reports v outside [lo, hi] as an error naming env.
func intBetween(env string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %d and %d", env, lo, hi)
	}
	return nil
}

// durBetween reports d outside [lo, hi] as an error naming env.
func durBetween(env string, d, lo, hi time.Duration) error {
	if d < lo || d > hi {
		return fmt.Errorf("%s must be between %s and %s", env, lo, hi)
	}
	return nil
}

// nonEmpty reports an empty v as an error naming env.
func nonEmpty(env, v string) error {
	if v == "" {
		return fmt.Errorf("%s must not be empty", env)
	}
	return nil
}

// Engine limit constants
const (
	engineMaxWorkers   = 128
	engineMaxQueue     = 1 << 20
	engineMaxWindowMs  = int64(24 * time.Hour / time.Millisecond)
	engineMinEnqueue   = 10 * time.Millisecond
	engineMaxEnqueue   = time.Minute
	engineMinSweep     = 100 * time.Millisecond
	engineMaxSweep     = time.Minute
	engineMaxDrainWait = 5 * time.Minute
)

// validateEngine checks detection engine tuning
func (c *Config) validateEngine() error {
	switch {
	case c.Engine.WindowMs <= 0:
		return fmt.Errorf("KNOCKWATCH_WINDOW_MS must be positive, got %d", c.Engine.WindowMs)
	case c.Engine.WindowMs > engineMaxWindowMs:
		return fmt.Errorf("KNOCKWATCH_WINDOW_MS must be at most 24h (%d ms)", engineMaxWindowMs)
	case c.Engine.MaxSources < 0:
		return fmt.Errorf("KNOCKWATCH_MAX_SOURCES must not be negative (0 disables the bound)")
	}

	return firstErr(
		intBetween("KNOCKWATCH_WORKERS", c.Engine.Workers, 1, engineMaxWorkers),
		intBetween("KNOCKWATCH_QUEUE_CAPACITY", c.Engine.QueueCapacity, 1, engineMaxQueue),
		durBetween("KNOCKWATCH_ENQUEUE_WAIT", c.Engine.EnqueueWait, engineMinEnqueue, engineMaxEnqueue),
		durBetween("KNOCKWATCH_SWEEP_INTERVAL", c.Engine.SweepInterval, engineMinSweep, engineMaxSweep),
		durBetween("KNOCKWATCH_DRAIN_TIMEOUT", c.Engine.DrainTimeout, time.Nanosecond, engineMaxDrainWait),
	)
}

// validatePatterns checks a custom pattern catalog when one is configured
func (c *Config) validatePatterns() error {
	if len(c.Patterns) == 0 {
		return nil // built-in catalog applies
	}
	if err := knock.ValidateCatalog(c.Patterns); err != nil {
		return fmt.Errorf("pattern catalog is invalid: %w", err)
	}
	return nil
}

// Capture limit constants
const (
	captureMinSnapLen = 64
	captureMaxSnapLen = 262144
)

// validateCapture checks capture source configuration
func (c *Config) validateCapture() error {
	if c.Capture.Interface != "" && c.Capture.ReplayFile != "" {
		return fmt.Errorf("KNOCKWATCH_CAPTURE_INTERFACE and KNOCKWATCH_REPLAY_FILE are mutually exclusive")
	}
	if c.Capture.Interface == "" {
		return nil
	}
	return intBetween("KNOCKWATCH_CAPTURE_SNAP_LEN", c.Capture.SnapLen, captureMinSnapLen, captureMaxSnapLen)
}

// validateServer checks HTTP server configuration (only if enabled)
func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	return firstErr(
		intBetween("KNOCKWATCH_HTTP_PORT", c.Server.Port, 1, 65535),
		durBetween("KNOCKWATCH_HTTP_TIMEOUT", c.Server.Timeout, time.Second, 5*time.Minute),
	)
}

// API limit constants
const (
	apiMaxPageSizeCeiling = 10000
	apiMinRateWindow      = time.Second
	apiMaxRateWindow      = time.Hour
)

// validateAPI checks API behavior configuration
func (c *Config) validateAPI() error {
	if err := intBetween("KNOCKWATCH_API_MAX_PAGE_SIZE", c.API.MaxPageSize, 1, apiMaxPageSizeCeiling); err != nil {
		return err
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("KNOCKWATCH_API_DEFAULT_PAGE_SIZE must be between 1 and KNOCKWATCH_API_MAX_PAGE_SIZE (%d)", c.API.MaxPageSize)
	}

	if c.API.RateLimitDisabled {
		return nil
	}
	if c.API.RateLimitReqs < 1 {
		return fmt.Errorf("KNOCKWATCH_RATE_LIMIT_REQUESTS must be at least 1 when rate limiting is enabled")
	}
	return durBetween("KNOCKWATCH_RATE_LIMIT_WINDOW", c.API.RateLimitWindow, apiMinRateWindow, apiMaxRateWindow)
}

const webhookMaxRateLimitMs = 60000

// validateWebhook checks webhook notifier configuration (only if enabled)
func (c *Config) validateWebhook() error {
	if !c.Webhook.Enabled {
		return nil
	}

	if c.Webhook.WebhookURL == "" {
		return fmt.Errorf("KNOCKWATCH_WEBHOOK_URL is required when KNOCKWATCH_WEBHOOK_ENABLED=true")
	}
	if err := validateWebhookURL(c.Webhook.WebhookURL, "KNOCKWATCH_WEBHOOK_URL"); err != nil {
		return fmt.Errorf("KNOCKWATCH_WEBHOOK_URL is invalid: %w", err)
	}
	return intBetween("KNOCKWATCH_WEBHOOK_RATE_LIMIT_MS", c.Webhook.RateLimitMs, 0, webhookMaxRateLimitMs)
}

// NATS limit constants
const (
	natsMinMemory      = 64 * 1024 * 1024  // 64MB
	natsMinStore       = 100 * 1024 * 1024 // 100MB
	natsMaxRetention   = 365
	natsMinRetention   = 1
	natsMaxSubscribers = 32
	natsMaxRetryCount  = 10
)

// validateNATS checks NATS configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("KNOCKWATCH_NATS_URL is invalid: %w", err)
	}
	if c.NATS.MaxMemory < natsMinMemory {
		return fmt.Errorf("KNOCKWATCH_NATS_MAX_MEMORY must be at least 64MB (%d bytes)", int64(natsMinMemory))
	}
	if c.NATS.MaxStore < natsMinStore {
		return fmt.Errorf("KNOCKWATCH_NATS_MAX_STORE must be at least 100MB (%d bytes)", int64(natsMinStore))
	}

	return firstErr(
		intBetween("KNOCKWATCH_NATS_RETENTION_DAYS", c.NATS.StreamRetentionDays, natsMinRetention, natsMaxRetention),
		intBetween("KNOCKWATCH_NATS_SUBSCRIBERS", c.NATS.SubscribersCount, 1, natsMaxSubscribers),
		nonEmpty("KNOCKWATCH_NATS_EVENTS_SUBJECT", c.NATS.EventsSubject),
		nonEmpty("KNOCKWATCH_NATS_DETECTIONS_SUBJECT", c.NATS.DetectionsSubject),
		c.validateNATSRouter(),
	)
}

// validateNATSRouter checks router middleware settings
func (c *Config) validateNATSRouter() error {
	if err := intBetween("KNOCKWATCH_NATS_ROUTER_RETRY_COUNT", c.NATS.RouterRetryCount, 0, natsMaxRetryCount); err != nil {
		return err
	}
	if c.NATS.RouterPoisonEnabled && c.NATS.RouterPoisonTopic == "" {
		return fmt.Errorf("KNOCKWATCH_NATS_ROUTER_POISON_TOPIC must not be empty when the poison queue is enabled")
	}
	return durBetween("KNOCKWATCH_NATS_ROUTER_CLOSE_TIMEOUT", c.NATS.RouterCloseTimeout, time.Second, 5*time.Minute)
}

// validateLogging checks logging configuration
func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("KNOCKWATCH_LOG_LEVEL must be one of: trace, debug, info, warn, error; got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("KNOCKWATCH_LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
