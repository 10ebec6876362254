// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/knockwatch/config.yaml",
	"/etc/knockwatch/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "KNOCKWATCH_CONFIG"

// EnvPrefix is the prefix shared by all configuration environment variables.
const EnvPrefix = "KNOCKWATCH_"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			WindowMs:      5000,
			Workers:       4,
			QueueCapacity: 1024,
			EnqueueWait:   2 * time.Second,
			SweepInterval: time.Second,
			DrainTimeout:  10 * time.Second,
			MaxSources:    10000,
		},
		Patterns: nil, // empty means the built-in catalog
		Capture: CaptureConfig{
			Interface:   "", // live capture off by default
			BPF:         "",
			SnapLen:     65535,
			Promiscuous: false,
			ReplayFile:  "",
			ReplayPace:  false,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9476,
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize:   50,
			MaxPageSize:       500,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Webhook: knock.WebhookConfig{
			WebhookURL:       "",
			Enabled:          false,
			RateLimitMs:      500,
			FailureThreshold: 5,
		},
		NATS: NATSConfig{
			Enabled:             false, // standalone by default; remote sensors are opt-in
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/var/lib/knockwatch/jetstream",
			MaxMemory:           1 << 30,
			MaxStore:            10 << 30,
			StreamRetentionDays: 7,
			SubscribersCount:    4,
			DurableName:         "knock-processor",
			QueueGroup:          "processors",
			EventsSubject:       "knockwatch.events.raw",
			DetectionsSubject:   "knockwatch.detections",
			RouterRetryCount:    3,
			RouterRetryInterval: 100 * time.Millisecond,
			RouterPoisonEnabled: true,
			RouterPoisonTopic:   "knockwatch.events.poison",
			RouterCloseTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// LoadWithKoanf builds the effective configuration from three layers,
// lowest priority first: built-in defaults, an optional YAML file,
// then KNOCKWATCH_* environment variables. The merged tree is
// unmarshaled over the koanf struct tags and validated before it is
// handed out.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")
	if err := loadLayers(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

func loadLayers(k *koanf.Koanf) error {
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyPath), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	return splitSliceValues(k)
}

// findConfigFile returns the first config file that exists, trying the
// KNOCKWATCH_CONFIG path before the default locations. Empty means run
// on defaults and environment alone.
func findConfigFile() string {
	candidates := DefaultConfigPaths
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		candidates = append([]string{envPath}, candidates...)
	}
	for _, path := range candidates {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Environment variables arrive as flat strings, so fields that
// unmarshal into string slices accept comma-separated values there.
// YAML-sourced values are already slices and pass through untouched.
var commaSlicePaths = []string{"api.cors_origins"}

func splitSliceValues(k *koanf.Koanf) error {
	for _, path := range commaSlicePaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}

		var vals []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				vals = append(vals, part)
			}
		}
		if len(vals) == 0 {
			continue
		}
		if err := k.Set(path, vals); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// envKeyPaths maps flattened environment keys, prefix stripped and
// lowercased, onto koanf config paths. A key that is not listed maps
// to "", which drops the variable; unrelated KNOCKWATCH_* entries in
// the environment cannot leak into the config tree.
var envKeyPaths = map[string]string{
	// Engine
	"window_ms":      "engine.window_ms",
	"workers":        "engine.workers",
	"queue_capacity": "engine.queue_capacity",
	"enqueue_wait":   "engine.enqueue_wait",
	"sweep_interval": "engine.sweep_interval",
	"drain_timeout":  "engine.drain_timeout",
	"max_sources":    "engine.max_sources",

	// Capture
	"capture_interface":   "capture.interface",
	"capture_bpf":         "capture.bpf",
	"capture_snap_len":    "capture.snap_len",
	"capture_promiscuous": "capture.promiscuous",
	"replay_file":         "capture.replay_file",
	"replay_pace":         "capture.replay_pace",

	// HTTP server
	"http_enabled": "server.enabled",
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",

	// API
	"api_default_page_size": "api.default_page_size",
	"api_max_page_size":     "api.max_page_size",
	"rate_limit_requests":   "api.rate_limit_requests",
	"rate_limit_window":     "api.rate_limit_window",
	"disable_rate_limit":    "api.rate_limit_disabled",
	"cors_origins":          "api.cors_origins",

	// Webhook
	"webhook_url":               "webhook.url",
	"webhook_enabled":           "webhook.enabled",
	"webhook_rate_limit_ms":     "webhook.rate_limit_ms",
	"webhook_failure_threshold": "webhook.failure_threshold",

	// NATS
	"nats_enabled":               "nats.enabled",
	"nats_url":                   "nats.url",
	"nats_embedded":              "nats.embedded_server",
	"nats_store_dir":             "nats.store_dir",
	"nats_max_memory":            "nats.max_memory",
	"nats_max_store":             "nats.max_store",
	"nats_retention_days":        "nats.stream_retention_days",
	"nats_subscribers":           "nats.subscribers_count",
	"nats_durable_name":          "nats.durable_name",
	"nats_queue_group":           "nats.queue_group",
	"nats_events_subject":        "nats.events_subject",
	"nats_detections_subject":    "nats.detections_subject",
	"nats_router_retry_count":    "nats.router_retry_count",
	"nats_router_retry_interval": "nats.router_retry_initial_interval",
	"nats_router_poison_enabled": "nats.router_poison_queue_enabled",
	"nats_router_poison_topic":   "nats.router_poison_queue_topic",
	"nats_router_close_timeout":  "nats.router_close_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envKeyPath resolves one environment variable name, for example
// KNOCKWATCH_WINDOW_MS to engine.window_ms.
func envKeyPath(key string) string {
	return envKeyPaths[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))]
}
