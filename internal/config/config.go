// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package config

import (
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Config holds all application configuration loaded from environment variables and config files.
// Provides centralized configuration management for the detection engine, capture sources,
// HTTP server, notifications, event streaming, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via KNOCKWATCH_* variables
//
// Configuration Categories:
//
//  1. Detection:
//     - Engine: Window size, worker count, queue sizing, drain behavior
//     - Patterns: Custom knock pattern catalog (defaults to the built-in catalog)
//
//  2. Input:
//     - Capture: Live pcap interface or JSONL replay file
//     - NATS: Event consumption from a remote sensor fleet (optional)
//
//  3. Output:
//     - Server: HTTP API, metrics, and WebSocket feed
//     - Webhook: Detection delivery to an external endpoint
//
//  4. Observability:
//     - Logging: Log levels and output formats
//
// Example - Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	engine, err := knock.NewEngine(cfg.EngineSettings())
//
// Validation:
// The Load() function validates all fields and returns an error if values are
// malformed (non-positive window, invalid URL, out-of-range port). Startup must
// treat any such error as fatal and exit non-zero.
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from multiple goroutines.
type Config struct {
	Engine   EngineConfig        `koanf:"engine"`
	Patterns []knock.Pattern     `koanf:"patterns"` // Optional: custom catalog; empty uses the default catalog
	Capture  CaptureConfig       `koanf:"capture"`
	Server   ServerConfig        `koanf:"server"`
	API      APIConfig           `koanf:"api"`
	Webhook  knock.WebhookConfig `koanf:"webhook"` // Optional: webhook notifier for detections
	NATS     NATSConfig          `koanf:"nats"`    // Optional: event streaming with NATS JetStream
	Logging  LoggingConfig       `koanf:"logging"`
}

// EngineConfig holds detection engine tuning.
//
// Environment Variables:
//   - KNOCKWATCH_WINDOW_MS: Sliding window size in milliseconds (default: 5000)
//   - KNOCKWATCH_WORKERS: Processing workers; sources are sharded across them (default: 4)
//   - KNOCKWATCH_QUEUE_CAPACITY: Per-worker ingest queue capacity (default: 1024)
//   - KNOCKWATCH_ENQUEUE_WAIT: How long ingest blocks on a full queue before
//     reporting overflow (default: 2s)
//   - KNOCKWATCH_SWEEP_INTERVAL: Idle-source sweep cadence (default: 1s)
//   - KNOCKWATCH_DRAIN_TIMEOUT: Shutdown drain budget (default: 10s)
//   - KNOCKWATCH_MAX_SOURCES: Bound on tracked source identities (default: 10000)
type EngineConfig struct {
	// WindowMs is the sliding window size in milliseconds. Events older than
	// the newest event for a source minus this span are pruned. Must be positive.
	WindowMs int64 `koanf:"window_ms"`

	// Workers is the number of processing goroutines. Each source identity is
	// pinned to one worker so its events are handled in order.
	Workers int `koanf:"workers"`

	// QueueCapacity is the capacity of each worker's ingest queue.
	QueueCapacity int `koanf:"queue_capacity"`

	// EnqueueWait bounds how long an ingest call blocks on a full queue.
	EnqueueWait time.Duration `koanf:"enqueue_wait"`

	// SweepInterval is how often idle sources are checked for eviction.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// DrainTimeout bounds the shutdown drain of queued events.
	DrainTimeout time.Duration `koanf:"drain_timeout"`

	// MaxSources caps distinct tracked sources; the quietest is evicted beyond it.
	MaxSources int `koanf:"max_sources"`
}

// CaptureConfig holds capture source settings. Exactly one input mode is active:
// a live pcap interface, a JSONL replay file, or neither (API/NATS ingest only).
//
// Environment Variables:
//   - KNOCKWATCH_CAPTURE_INTERFACE: Network interface for live capture (requires the pcap build)
//   - KNOCKWATCH_CAPTURE_BPF: Extra BPF expression ANDed with the SYN filter
//   - KNOCKWATCH_CAPTURE_SNAP_LEN: Capture snapshot length in bytes (default: 65535)
//   - KNOCKWATCH_CAPTURE_PROMISCUOUS: Put the interface in promiscuous mode (default: false)
//   - KNOCKWATCH_REPLAY_FILE: JSONL event file to replay; "-" reads stdin
//   - KNOCKWATCH_REPLAY_PACE: Pace replay by event timestamps instead of flat-out (default: false)
type CaptureConfig struct {
	Interface   string `koanf:"interface"`
	BPF         string `koanf:"bpf"`
	SnapLen     int    `koanf:"snap_len"`
	Promiscuous bool   `koanf:"promiscuous"`
	ReplayFile  string `koanf:"replay_file"`
	ReplayPace  bool   `koanf:"replay_pace"`
}

// ServerConfig holds HTTP server settings for the API, metrics, and WebSocket feed.
//
// Environment Variables:
//   - KNOCKWATCH_HTTP_ENABLED: Serve the HTTP API (default: true)
//   - KNOCKWATCH_HTTP_HOST: Bind address (default: 0.0.0.0)
//   - KNOCKWATCH_HTTP_PORT: Listen port (default: 9476)
//   - KNOCKWATCH_HTTP_TIMEOUT: Read/write timeout (default: 30s)
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig holds API behavior settings.
//
// Environment Variables:
//   - KNOCKWATCH_API_DEFAULT_PAGE_SIZE: Default detection page size (default: 50)
//   - KNOCKWATCH_API_MAX_PAGE_SIZE: Maximum detection page size (default: 500)
//   - KNOCKWATCH_RATE_LIMIT_REQUESTS: Requests allowed per window per client (default: 100)
//   - KNOCKWATCH_RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
//   - KNOCKWATCH_DISABLE_RATE_LIMIT: Disable rate limiting entirely (default: false)
//   - KNOCKWATCH_CORS_ORIGINS: Comma-separated allowed origins (default: *)
type APIConfig struct {
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// NATSConfig holds event streaming settings. When enabled, knockwatch consumes
// connection events published by remote sensors on the raw events subject and
// publishes detections per severity. Requires the nats build tag.
//
// Environment Variables:
//   - KNOCKWATCH_NATS_ENABLED: Enable NATS event streaming (default: false)
//   - KNOCKWATCH_NATS_URL: NATS server URL (default: nats://127.0.0.1:4222)
//   - KNOCKWATCH_NATS_EMBEDDED: Run an embedded JetStream server (default: true)
//   - KNOCKWATCH_NATS_STORE_DIR: JetStream storage directory
//   - KNOCKWATCH_NATS_MAX_MEMORY / KNOCKWATCH_NATS_MAX_STORE: JetStream limits
//   - KNOCKWATCH_NATS_RETENTION_DAYS: Stream retention (default: 7)
//   - KNOCKWATCH_NATS_SUBSCRIBERS: Consumer goroutines (default: 4)
//   - KNOCKWATCH_NATS_EVENTS_SUBJECT: Raw event subject (default: knockwatch.events.raw)
//   - KNOCKWATCH_NATS_DETECTIONS_SUBJECT: Detection subject prefix (default: knockwatch.detections)
type NATSConfig struct {
	Enabled             bool          `koanf:"enabled"`
	URL                 string        `koanf:"url"`
	EmbeddedServer      bool          `koanf:"embedded_server"`
	StoreDir            string        `koanf:"store_dir"`
	MaxMemory           int64         `koanf:"max_memory"`
	MaxStore            int64         `koanf:"max_store"`
	StreamRetentionDays int           `koanf:"stream_retention_days"`
	SubscribersCount    int           `koanf:"subscribers_count"`
	DurableName         string        `koanf:"durable_name"`
	QueueGroup          string        `koanf:"queue_group"`
	EventsSubject       string        `koanf:"events_subject"`
	DetectionsSubject   string        `koanf:"detections_subject"` // prefix; severity is appended
	RouterRetryCount    int           `koanf:"router_retry_count"`
	RouterRetryInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonEnabled bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonTopic   string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout  time.Duration `koanf:"router_close_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// JSON is recommended for production (structured, machine-parseable).
	// Console is human-readable and the CLI default.
	// Default: console
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Adds slight performance overhead.
	// Default: false
	Caller bool `koanf:"caller"`
}

// EngineSettings converts the loaded configuration into the engine's config type.
// An empty Patterns list leaves the engine's catalog nil so the default catalog
// applies.
func (c *Config) EngineSettings() knock.EngineConfig {
	cfg := knock.EngineConfig{
		Window:        time.Duration(c.Engine.WindowMs) * time.Millisecond,
		Workers:       c.Engine.Workers,
		QueueCapacity: c.Engine.QueueCapacity,
		EnqueueWait:   c.Engine.EnqueueWait,
		SweepInterval: c.Engine.SweepInterval,
		DrainTimeout:  c.Engine.DrainTimeout,
		MaxSources:    c.Engine.MaxSources,
	}
	if len(c.Patterns) > 0 {
		cfg.Patterns = make([]knock.Pattern, len(c.Patterns))
		copy(cfg.Patterns, c.Patterns)
	}
	return cfg
}

// Load loads and validates the application configuration.
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Built-in defaults
//  2. YAML config file, if present
//  3. KNOCKWATCH_* environment variables
func Load() (*Config, error) {
	return LoadWithKoanf()
}
