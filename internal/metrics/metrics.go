// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package metrics provides Prometheus metrics for monitoring application performance
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Thin wrappers over promauto keep the declarations below to one line
// per metric. Everything registers on the default registry; callers
// update metrics through the functions at the bottom of the file.
func counter(name, help string) prometheus.Counter {
	return promauto.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
}

func histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
}

func histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
}

// apiLatencyBuckets resolve the 10ms to 10s range typical for the
// query endpoints.
var apiLatencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Detection pipeline.
var (
	eventsIngested       = counter("knock_events_ingested_total", "Connection events accepted for analysis")
	eventsProcessed      = counter("knock_events_processed_total", "Connection events run through the sequence matcher")
	eventsInvalid        = counter("knock_events_invalid_total", "Connection events rejected during normalization")
	eventsOverflowed     = counter("knock_events_overflowed_total", "Connection events dropped because the ingest queues were full")
	ingestQueueDepth     = gauge("knock_ingest_queue_depth", "Connection events waiting to be processed")
	trackedSources       = gauge("knock_tracked_sources", "Source identities with live sliding windows")
	sourcesEvicted       = counter("knock_sources_evicted_total", "Source identities evicted after going quiet")
	detectionsTotal      = counterVec("knock_detections_total", "Knock detections emitted", "severity", "pattern")
	detectionsSuppressed = counter("knock_detections_suppressed_total", "Detections suppressed by the re-fire cooldown")
)

// Capture sources.
var (
	captureEvents        = counterVec("capture_events_total", "Events emitted by capture sources", "source")
	captureParseFailures = counterVec("capture_parse_failures_total", "Capture records skipped as unparseable", "source")
)

// HTTP API.
var (
	apiRequestsTotal   = counterVec("api_requests_total", "API requests by method, endpoint, and status code", "method", "endpoint", "status_code")
	apiRequestDuration = histogramVec("api_request_duration_seconds", "API request latency in seconds", apiLatencyBuckets, "method", "endpoint")
	apiActiveRequests  = gauge("api_active_requests", "In-flight API requests")
	apiRateLimitHits   = counterVec("api_rate_limit_hits_total", "Requests rejected by the per-endpoint rate limiter", "endpoint")
)

// WebSocket feed.
var (
	wsConnections  = gauge("websocket_connections", "Connected WebSocket clients")
	wsMessagesSent = counter("websocket_messages_sent_total", "Messages delivered to WebSocket clients")
	wsErrors       = counterVec("websocket_errors_total", "WebSocket failures by error type", "error_type")
)

// Notifiers and circuit breakers.
var (
	webhookDeliveries   = counterVec("webhook_deliveries_total", "Webhook delivery attempts by outcome", "outcome")
	circuitBreakerState = gaugeVec("circuit_breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", "name")
)

// Event stream.
var (
	natsPublished         = counter("nats_messages_published_total", "Messages published to the event stream")
	natsConsumed          = counter("nats_messages_consumed_total", "Messages consumed from the event stream")
	natsProcessed         = counter("nats_messages_processed_total", "Event stream messages processed without error")
	natsParseFailed       = counter("nats_messages_parse_failed_total", "Event stream messages dropped as unparseable")
	natsProcessingSeconds = histogram("nats_processing_duration_seconds", "Event stream message handling time in seconds", prometheus.DefBuckets)
	natsQueueDepth        = gauge("nats_queue_depth", "Pending messages on the event stream consumer")
)

// Process.
var (
	appInfo   = gaugeVec("app_info", "Build information, value is always 1", "version", "go_version")
	appUptime = gauge("app_uptime_seconds", "Seconds since process start")
)

// RecordEventIngested counts a connection event entering the ingest queues.
func RecordEventIngested() { eventsIngested.Inc() }

// RecordEventProcessed counts a connection event completing analysis.
func RecordEventProcessed() { eventsProcessed.Inc() }

// RecordEventInvalid counts a connection event rejected during normalization.
func RecordEventInvalid() { eventsInvalid.Inc() }

// RecordEventOverflow counts a connection event dropped due to queue overflow.
func RecordEventOverflow() { eventsOverflowed.Inc() }

// RecordDetection counts an emitted detection.
func RecordDetection(severity, pattern string) {
	detectionsTotal.WithLabelValues(severity, pattern).Inc()
}

// RecordDetectionSuppressed counts a detection swallowed by the cooldown.
func RecordDetectionSuppressed() { detectionsSuppressed.Inc() }

// RecordSourcesEvicted counts sources evicted by a sweep.
func RecordSourcesEvicted(n int) {
	if n > 0 {
		sourcesEvicted.Add(float64(n))
	}
}

// UpdateTrackedSources updates the tracked source gauge.
func UpdateTrackedSources(n int) { trackedSources.Set(float64(n)) }

// UpdateIngestQueueDepth updates the ingest queue depth gauge.
func UpdateIngestQueueDepth(n int) { ingestQueueDepth.Set(float64(n)) }

// RecordCaptureEvent counts an event emitted by a capture source.
func RecordCaptureEvent(source string) {
	captureEvents.WithLabelValues(source).Inc()
}

// RecordCaptureParseFailure counts a malformed capture record.
func RecordCaptureParseFailure(source string) {
	captureParseFailures.WithLabelValues(source).Inc()
}

// RecordAPIRequest counts one API request and observes its latency.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	apiRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight request gauge.
func TrackActiveRequest(started bool) {
	if started {
		apiActiveRequests.Inc()
	} else {
		apiActiveRequests.Dec()
	}
}

// RecordRateLimitHit counts a request rejected by the rate limiter.
func RecordRateLimitHit(endpoint string) {
	apiRateLimitHits.WithLabelValues(endpoint).Inc()
}

// TrackWSConnection moves the connected WebSocket client gauge.
func TrackWSConnection(connected bool) {
	if connected {
		wsConnections.Inc()
	} else {
		wsConnections.Dec()
	}
}

// RecordWSMessageSent counts a message delivered to a WebSocket client.
func RecordWSMessageSent() { wsMessagesSent.Inc() }

// RecordWSError counts a WebSocket failure.
func RecordWSError(errorType string) {
	wsErrors.WithLabelValues(errorType).Inc()
}

// RecordWebhookDelivery counts a webhook delivery attempt and its outcome.
func RecordWebhookDelivery(outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// breakerStates maps gobreaker state names onto the gauge encoding.
var breakerStates = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// SetCircuitBreakerState updates the state gauge for a named breaker.
// Unknown state names are ignored.
func SetCircuitBreakerState(name, state string) {
	v, ok := breakerStates[state]
	if !ok {
		return
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordNATSPublish counts a message published to the event stream.
func RecordNATSPublish() { natsPublished.Inc() }

// RecordNATSConsume counts a message consumed from the event stream.
func RecordNATSConsume() { natsConsumed.Inc() }

// RecordNATSProcessed counts a message handled without error.
func RecordNATSProcessed() { natsProcessed.Inc() }

// RecordNATSParseFailed counts a message dropped as unparseable.
func RecordNATSParseFailed() { natsParseFailed.Inc() }

// RecordNATSProcessingDuration observes how long one message took to handle.
func RecordNATSProcessingDuration(duration time.Duration) {
	natsProcessingSeconds.Observe(duration.Seconds())
}

// UpdateNATSQueueDepth updates the consumer queue depth gauge.
func UpdateNATSQueueDepth(depth int64) { natsQueueDepth.Set(float64(depth)) }

// SetAppInfo pins the build info labels onto the info gauge.
func SetAppInfo(version, goVersion string) {
	appInfo.WithLabelValues(version, goVersion).Set(1)
}

// UpdateUptime refreshes the uptime gauge from the process start time.
func UpdateUptime(start time.Time) { appUptime.Set(time.Since(start).Seconds()) }
