// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import "fmt"

// MatchKind selects the matching strategy for a pattern.
type MatchKind string

const (
	// MatchExactSequence matches when the most recent events in the
	// window hit the pattern's ports in order (contiguous suffix).
	MatchExactSequence MatchKind = "exact_sequence"

	// MatchCountThreshold matches when the window holds at least
	// MinCount events, regardless of ports.
	MatchCountThreshold MatchKind = "count_threshold"
)

// UnknownPatternID is the pattern ID assigned to fallback detections
// for windows that match no catalog pattern.
const UnknownPatternID = "unknown_sequence"

// fallbackMinEvents is the minimum window length for an
// unknown_sequence fallback detection.
const fallbackMinEvents = 3

// Pattern is one entry of the knock pattern catalog. Exactly one of
// Sequence (for exact_sequence) or MinCount (for count_threshold) is
// meaningful, selected by Kind.
type Pattern struct {
	ID          string    `json:"pattern_id" koanf:"pattern_id"`
	Description string    `json:"description" koanf:"description"`
	Severity    Severity  `json:"severity" koanf:"severity"`
	Kind        MatchKind `json:"kind" koanf:"kind"`
	Sequence    []int     `json:"sequence,omitempty" koanf:"sequence"`
	MinCount    int       `json:"min_count,omitempty" koanf:"min_count"`
}

// Validate checks the pattern for structural problems.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return &ConfigError{Field: "pattern_id", Message: "must not be empty"}
	}
	if !p.Severity.Valid() {
		return &ConfigError{Field: "severity", Message: fmt.Sprintf("unknown severity %q for pattern %s", p.Severity, p.ID)}
	}
	switch p.Kind {
	case MatchExactSequence:
		if len(p.Sequence) == 0 {
			return &ConfigError{Field: "sequence", Message: fmt.Sprintf("pattern %s: exact_sequence requires at least one port", p.ID)}
		}
		for _, port := range p.Sequence {
			if port < MinPort || port > MaxPort {
				return &ConfigError{Field: "sequence", Message: fmt.Sprintf("pattern %s: port %d out of range", p.ID, port)}
			}
		}
	case MatchCountThreshold:
		if p.MinCount <= 0 {
			return &ConfigError{Field: "min_count", Message: fmt.Sprintf("pattern %s: count_threshold requires min_count > 0", p.ID)}
		}
	default:
		return &ConfigError{Field: "kind", Message: fmt.Sprintf("pattern %s: unknown match kind %q", p.ID, p.Kind)}
	}
	return nil
}

// ValidateCatalog checks every pattern and rejects duplicate IDs. The
// reserved unknown_sequence ID cannot be declared in a catalog.
func ValidateCatalog(patterns []Pattern) error {
	seen := make(map[string]struct{}, len(patterns))
	for i := range patterns {
		if err := patterns[i].Validate(); err != nil {
			return err
		}
		id := patterns[i].ID
		if id == UnknownPatternID {
			return &ConfigError{Field: "pattern_id", Message: fmt.Sprintf("%s is reserved for fallback detections", UnknownPatternID)}
		}
		if _, dup := seen[id]; dup {
			return &ConfigError{Field: "pattern_id", Message: "duplicate pattern id " + id}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// DefaultCatalog returns the built-in pattern catalog. Order matters:
// patterns are evaluated first to last and the first match wins, so
// the exact sequences are listed before the count thresholds and the
// stricter count threshold before the looser one.
func DefaultCatalog() []Pattern {
	return []Pattern{
		{
			ID:          "ssh_unlock",
			Description: "Classic SSH unlock knock sequence",
			Severity:    SeverityHigh,
			Kind:        MatchExactSequence,
			Sequence:    []int{7000, 8000, 9000},
		},
		{
			ID:          "fwknop_spa",
			Description: "Single-packet authorization on the fwknop default port",
			Severity:    SeverityMedium,
			Kind:        MatchExactSequence,
			Sequence:    []int{62201},
		},
		{
			ID:          "complex_5port",
			Description: "High-volume multi-port knock sequence",
			Severity:    SeverityHigh,
			Kind:        MatchCountThreshold,
			MinCount:    5,
		},
		{
			ID:          "basic_3port",
			Description: "Basic three-port knock sequence",
			Severity:    SeverityMedium,
			Kind:        MatchCountThreshold,
			MinCount:    3,
		},
	}
}
