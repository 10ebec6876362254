// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import (
	"strings"
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Subject layout. Sensors publish raw connection events on a single
// subject; detections fan out on per-severity subjects so consumers
// can filter at the subscription level.
const (
	// DefaultEventsSubject carries raw connection events from sensors.
	DefaultEventsSubject = "knockwatch.events.raw"

	// DefaultDetectionsPrefix is the detection subject prefix. The
	// lowercased severity is appended per message.
	DefaultDetectionsPrefix = "knockwatch.detections"

	// DefaultPoisonTopic receives events that failed all router retries.
	DefaultPoisonTopic = "knockwatch.events.poison"
)

// Shared transport tunables. Reconnection and flow-control settings are
// identical on both sides of the stream so that a publisher and a
// subscriber embedded in the same process behave symmetrically.
const (
	defaultReconnectWait  = 2 * time.Second
	defaultCloseTimeout   = 30 * time.Second
	defaultAckWait        = 30 * time.Second
	defaultMaxDeliver     = 5
	defaultMaxAckPending  = 1000
	defaultWorkers        = 4
	defaultReconnectBytes = 8 << 20 // 8MB buffered while reconnecting

	defaultStreamMaxAge   = 7 * 24 * time.Hour
	defaultStreamMaxBytes = 10 << 30 // 10GB
	defaultDedupeWindow   = 2 * time.Minute

	defaultServerMaxMemory = 1 << 30  // in-memory stream state
	defaultServerMaxStore  = 10 << 30 // on-disk JetStream data
	defaultStoreDir        = "/var/lib/knockwatch/jetstream"

	// maxEventPayload caps message size at both the server and the
	// stream. Knock events are tiny; anything near this limit is
	// malformed.
	maxEventPayload = 1 << 20
)

// DetectionSubject returns the publish subject for a detection of the
// given severity, e.g. "knockwatch.detections.high". An empty prefix
// falls back to DefaultDetectionsPrefix.
func DetectionSubject(prefix string, severity knock.Severity) string {
	if prefix == "" {
		prefix = DefaultDetectionsPrefix
	}
	return prefix + "." + strings.ToLower(string(severity))
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	// URL is the NATS server to connect to.
	URL string

	// EventsSubject receives raw connection events from PublishEvent.
	EventsSubject string

	// DetectionsPrefix is expanded per severity by DetectionSubject.
	DetectionsPrefix string

	// MaxReconnects caps reconnection attempts; negative means retry
	// forever.
	MaxReconnects int

	// ReconnectWait spaces reconnection attempts.
	ReconnectWait time.Duration

	// ReconnectBuffer is how many bytes of pending publishes the client
	// buffers while disconnected.
	ReconnectBuffer int

	// EnableTrackMsgID turns on JetStream deduplication via Nats-Msg-Id.
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		EventsSubject:    DefaultEventsSubject,
		DetectionsPrefix: DefaultDetectionsPrefix,
		MaxReconnects:    -1,
		ReconnectWait:    defaultReconnectWait,
		ReconnectBuffer:  defaultReconnectBytes,
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL         string
	DurableName string
	QueueGroup  string

	// SubscribersCount is the number of concurrent consumers in the
	// queue group.
	SubscribersCount int

	// StreamName, when set, binds the subscriber to an existing
	// JetStream stream with nats.BindStream() and disables
	// AutoProvision. Required for wildcard topics because stream names
	// cannot contain wildcards.
	StreamName string

	AckWaitTimeout time.Duration
	MaxDeliver     int
	MaxAckPending  int
	CloseTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// DefaultSubscriberConfig returns production defaults for the subscriber.
//
// SubscribersCount > 1 trades strict ordering for throughput: multiple
// goroutines consume from the same queue group, so events from one
// source may reach the engine out of order. The engine's per-source
// windows sort by timestamp, so this only matters when two knocks from
// the same source land within the reordering jitter. Set to 1 when
// sequence fidelity matters more than throughput.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "knock-processor",
		QueueGroup:       "processors",
		SubscribersCount: defaultWorkers,
		AckWaitTimeout:   defaultAckWait,
		MaxDeliver:       defaultMaxDeliver,
		MaxAckPending:    defaultMaxAckPending,
		CloseTimeout:     defaultCloseTimeout,
		MaxReconnects:    -1,
		ReconnectWait:    defaultReconnectWait,
	}
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	// Host and Port form the client listen address.
	Host string
	Port int

	// StoreDir is where JetStream persists stream data.
	StoreDir string

	// MaxMemory and MaxStore cap the JetStream domain in bytes.
	MaxMemory int64
	MaxStore  int64
}

// DefaultServerConfig returns production defaults for the embedded
// server: loopback only, standard client port.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:      "127.0.0.1",
		Port:      4222,
		StoreDir:  defaultStoreDir,
		MaxMemory: defaultServerMaxMemory,
		MaxStore:  defaultServerMaxStore,
	}
}

// StreamConfig defines the knock event stream settings.
type StreamConfig struct {
	Name     string
	Subjects []string

	// Retention limits. A zero MaxAge or MaxBytes means unlimited;
	// MaxMsgs -1 likewise.
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64

	// MaxMsgSize rejects oversized events at the stream boundary.
	MaxMsgSize int32

	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns production stream configuration. One
// stream holds both raw events and detections; durable consumers
// filter by subject.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "KNOCK_EVENTS",
		Subjects:        []string{"knockwatch.events.>", "knockwatch.detections.>"},
		MaxAge:          defaultStreamMaxAge,
		MaxBytes:        defaultStreamMaxBytes,
		MaxMsgs:         -1,
		MaxMsgSize:      maxEventPayload,
		DuplicateWindow: defaultDedupeWindow,

		// Single node. Raise only when the embedded server joins a
		// cluster.
		Replicas: 1,
	}
}

// RouterConfig holds configuration for the Watermill Router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	// Retry settings for transient handler failures.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond rate-limits handler invocations; 0 disables.
	ThrottlePerSecond int64

	// PoisonQueueTopic receives messages that fail after all retries.
	// Empty disables the poison queue.
	PoisonQueueTopic string
}

// DefaultRouterConfig returns production defaults for the Router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         defaultCloseTimeout,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		ThrottlePerSecond:    0,
		PoisonQueueTopic:     DefaultPoisonTopic,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxRequests are allowed through while half-open.
	MaxRequests uint32

	// Interval resets the failure counts while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns production defaults. The open
// period is long enough to span a NATS server restart; two half-open
// probes confirm recovery before full traffic resumes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
	}
}
