// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import "context"

// Port range accepted by the normalizer. Port 0 is unusual but legal on
// the wire, so it is kept.
const (
	MinPort = 0
	MaxPort = 65535
)

// Severity ranks a detection. The five levels have a fixed priority
// order; CRITICAL is the most urgent.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Severities lists all levels in priority order, most urgent first.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// Priority returns the numeric rank of the severity, 1 (CRITICAL)
// through 5 (INFO). Unknown severities rank after INFO.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	case SeverityInfo:
		return 5
	default:
		return 6
	}
}

// Valid reports whether the severity is one of the five known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	default:
		return false
	}
}

// ConnectionEvent is a single observed connection attempt. The source
// identity is opaque to the engine; it is typically an IP address but
// any stable identifier works. Timestamp is Unix milliseconds.
//
// Events may arrive out of timestamp order; the sequence store re-sorts
// on insert.
type ConnectionEvent struct {
	SourceIdentity  string `json:"source_identity"`
	DestinationPort int    `json:"destination_port"`
	Timestamp       int64  `json:"timestamp"`
}

// Detection records a matched pattern for a source. Detections are
// immutable once appended to the log and carry no identity beyond
// these fields. Ports holds the ordered destination ports that
// triggered the match and DetectedAt is the timestamp (Unix ms) of the
// newest event in the matched window.
type Detection struct {
	SourceIdentity string   `json:"source_identity"`
	PatternID      string   `json:"pattern_id"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	Ports          []int    `json:"ports"`
	DetectedAt     int64    `json:"detected_at"`
}

// Summary aggregates detection counts by severity.
type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Notifier delivers detections to an external system.
type Notifier interface {
	// Send delivers a detection to the notification channel.
	Send(ctx context.Context, detection *Detection) error

	// Name returns the notifier name (e.g., "webhook", "nats").
	Name() string

	// Enabled returns whether this notifier is enabled.
	Enabled() bool
}

// Broadcaster pushes detections to live subscribers (WebSocket).
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}
