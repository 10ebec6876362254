// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package api

import (
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// APIResponse is the envelope every JSON endpoint returns. Exactly one
// of Data and Error is populated, keyed by Status.
type APIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
	Meta   Meta      `json:"meta"`
}

// Meta stamps every response with the server time it was produced.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError represents an error response with structured error details.
//
// Common error codes:
//   - VALIDATION_ERROR: request parameters failed validation
//   - INVALID_EVENT: event rejected by the engine
//   - QUEUE_FULL: ingest queue at capacity, retry later
//   - ENGINE_UNAVAILABLE: engine is not accepting events
//   - NOT_FOUND: unknown resource
//   - METHOD_NOT_ALLOWED: wrong HTTP method
//   - RATE_LIMITED: request budget for this client exhausted
//   - FEED_UNAVAILABLE: websocket feed is not running
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthStatus reports process and engine health.
type HealthStatus struct {
	Status        string  `json:"status"`
	EngineState   string  `json:"engine_state"`
	InstanceID    string  `json:"instance_id"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Patterns      int     `json:"patterns"`
	Detections    int     `json:"detections"`
}

// DetectionList is the payload for the detections query endpoint.
type DetectionList struct {
	Detections []knock.Detection `json:"detections"`
	Count      int               `json:"count"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
}

// PatternList is the payload for the pattern catalog endpoint.
type PatternList struct {
	Patterns []knock.Pattern `json:"patterns"`
	Count    int             `json:"count"`
}

// EngineStats is the payload for the engine counters endpoint.
type EngineStats struct {
	State                string                   `json:"state"`
	InstanceID           string                   `json:"instance_id"`
	UptimeSeconds        float64                  `json:"uptime_seconds"`
	WindowMs             int64                    `json:"window_ms"`
	QueueDepth           int                      `json:"queue_depth"`
	EventsIngested       int64                    `json:"events_ingested"`
	EventsProcessed      int64                    `json:"events_processed"`
	EventsInvalid        int64                    `json:"events_invalid"`
	EventsOverflowed     int64                    `json:"events_overflowed"`
	DetectionsEmitted    int64                    `json:"detections_emitted"`
	DetectionsSuppressed int64                    `json:"detections_suppressed"`
	SourcesEvicted       int64                    `json:"sources_evicted"`
	LastProcessedAt      *time.Time               `json:"last_processed_at,omitempty"`
	BySeverity           map[knock.Severity]int64 `json:"by_severity"`
}

// IngestAccepted is the payload returned when an event is queued.
type IngestAccepted struct {
	Queued     bool `json:"queued"`
	QueueDepth int  `json:"queue_depth"`
}
