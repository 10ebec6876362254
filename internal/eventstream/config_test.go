// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import (
	"io"
	"testing"
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func TestDetectionSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prefix   string
		severity knock.Severity
		want     string
	}{
		{"critical default prefix", "", knock.SeverityCritical, "knockwatch.detections.critical"},
		{"high default prefix", "", knock.SeverityHigh, "knockwatch.detections.high"},
		{"medium custom prefix", "alerts.knock", knock.SeverityMedium, "alerts.knock.medium"},
		{"low", DefaultDetectionsPrefix, knock.SeverityLow, "knockwatch.detections.low"},
		{"info", DefaultDetectionsPrefix, knock.SeverityInfo, "knockwatch.detections.info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectionSubject(tt.prefix, tt.severity); got != tt.want {
				t.Errorf("DetectionSubject(%q, %q) = %q, want %q", tt.prefix, tt.severity, got, tt.want)
			}
		})
	}
}

func TestDefaultPublisherConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultPublisherConfig("nats://example:4222")

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"URL", cfg.URL, "nats://example:4222"},
		{"EventsSubject", cfg.EventsSubject, "knockwatch.events.raw"},
		{"DetectionsPrefix", cfg.DetectionsPrefix, "knockwatch.detections"},
		{"MaxReconnects", cfg.MaxReconnects, -1},
		{"ReconnectWait", cfg.ReconnectWait, 2 * time.Second},
		{"ReconnectBuffer", cfg.ReconnectBuffer, 8 * 1024 * 1024},
		{"EnableTrackMsgID", cfg.EnableTrackMsgID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultPublisherConfig().%s = %v, expected %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDefaultSubscriberConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultSubscriberConfig("nats://example:4222")

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"URL", cfg.URL, "nats://example:4222"},
		{"DurableName", cfg.DurableName, "knock-processor"},
		{"QueueGroup", cfg.QueueGroup, "processors"},
		{"SubscribersCount", cfg.SubscribersCount, 4},
		{"AckWaitTimeout", cfg.AckWaitTimeout, 30 * time.Second},
		{"MaxDeliver", cfg.MaxDeliver, 5},
		{"MaxAckPending", cfg.MaxAckPending, 1000},
		{"CloseTimeout", cfg.CloseTimeout, 30 * time.Second},
		{"MaxReconnects", cfg.MaxReconnects, -1},
		{"ReconnectWait", cfg.ReconnectWait, 2 * time.Second},
		{"StreamName", cfg.StreamName, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultSubscriberConfig().%s = %v, expected %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDefaultStreamConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultStreamConfig()

	if cfg.Name != "KNOCK_EVENTS" {
		t.Errorf("Name = %q, want KNOCK_EVENTS", cfg.Name)
	}
	if len(cfg.Subjects) != 2 {
		t.Fatalf("Subjects length = %d, want 2", len(cfg.Subjects))
	}
	if cfg.Subjects[0] != "knockwatch.events.>" {
		t.Errorf("Subjects[0] = %q, want knockwatch.events.>", cfg.Subjects[0])
	}
	if cfg.Subjects[1] != "knockwatch.detections.>" {
		t.Errorf("Subjects[1] = %q, want knockwatch.detections.>", cfg.Subjects[1])
	}
	if cfg.MaxAge != 7*24*time.Hour {
		t.Errorf("MaxAge = %v, want %v", cfg.MaxAge, 7*24*time.Hour)
	}
	if cfg.MaxMsgs != -1 {
		t.Errorf("MaxMsgs = %d, want -1", cfg.MaxMsgs)
	}
	if cfg.MaxMsgSize != 1<<20 {
		t.Errorf("MaxMsgSize = %d, want %d", cfg.MaxMsgSize, 1<<20)
	}
	if cfg.DuplicateWindow != 2*time.Minute {
		t.Errorf("DuplicateWindow = %v, want %v", cfg.DuplicateWindow, 2*time.Minute)
	}
	if cfg.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", cfg.Replicas)
	}
}

func TestDefaultStreamSubjectsCoverPublishedTopics(t *testing.T) {
	t.Parallel()

	// Every subject the publisher can emit must fall under a stream
	// subject, or JetStream publishes time out waiting for an ack.
	pub := DefaultPublisherConfig("nats://127.0.0.1:4222")

	subjects := []string{pub.EventsSubject, DefaultPoisonTopic}
	for _, sev := range knock.Severities() {
		subjects = append(subjects, DetectionSubject(pub.DetectionsPrefix, sev))
	}

	for _, subject := range subjects {
		if !matchesStreamSubjects(subject) {
			t.Errorf("subject %q not covered by default stream subjects", subject)
		}
	}
}

// matchesStreamSubjects checks a concrete subject against the default
// stream's wildcard subjects. The ">" wildcard matches one or more
// trailing tokens.
func matchesStreamSubjects(subject string) bool {
	for _, pattern := range DefaultStreamConfig().Subjects {
		prefix := pattern[:len(pattern)-1] // strip trailing ">"
		if len(subject) > len(prefix) && subject[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func TestDefaultRouterConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRouterConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"CloseTimeout", cfg.CloseTimeout, 30 * time.Second},
		{"RetryMaxRetries", cfg.RetryMaxRetries, 3},
		{"RetryInitialInterval", cfg.RetryInitialInterval, 100 * time.Millisecond},
		{"RetryMaxInterval", cfg.RetryMaxInterval, time.Minute},
		{"RetryMultiplier", cfg.RetryMultiplier, 2.0},
		{"ThrottlePerSecond", cfg.ThrottlePerSecond, int64(0)},
		{"PoisonQueueTopic", cfg.PoisonQueueTopic, "knockwatch.events.poison"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultRouterConfig().%s = %v, expected %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDefaultServerConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultServerConfig()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 4222 {
		t.Errorf("Port = %d, want 4222", cfg.Port)
	}
	if cfg.StoreDir != "/var/lib/knockwatch/jetstream" {
		t.Errorf("StoreDir = %q, want /var/lib/knockwatch/jetstream", cfg.StoreDir)
	}
	if cfg.MaxMemory != 1<<30 {
		t.Errorf("MaxMemory = %d, want %d", cfg.MaxMemory, int64(1<<30))
	}
	if cfg.MaxStore != 10<<30 {
		t.Errorf("MaxStore = %d, want %d", cfg.MaxStore, int64(10<<30))
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultCircuitBreakerConfig("nats-publisher")

	if cfg.Name != "nats-publisher" {
		t.Errorf("Name = %q, want nats-publisher", cfg.Name)
	}
	if cfg.MaxRequests != 2 {
		t.Errorf("MaxRequests = %d, want 2", cfg.MaxRequests)
	}
	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", cfg.Interval)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout)
	}
	if cfg.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cfg.FailureThreshold)
	}
}
