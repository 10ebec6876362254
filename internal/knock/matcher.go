// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import "fmt"

// Matcher evaluates a pattern catalog against source windows. It is a
// pure function of its inputs: no clock, no shared state, so the same
// window always yields the same detection.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher creates a matcher for the given catalog. A nil catalog
// selects the default one.
func NewMatcher(patterns []Pattern) (*Matcher, error) {
	if patterns == nil {
		patterns = DefaultCatalog()
	}
	if err := ValidateCatalog(patterns); err != nil {
		return nil, err
	}
	owned := make([]Pattern, len(patterns))
	copy(owned, patterns)
	return &Matcher{patterns: owned}, nil
}

// Patterns returns a copy of the catalog in evaluation order.
func (m *Matcher) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Evaluate checks the window against the catalog in declaration order
// and returns at most one detection: the first pattern that matches.
// Windows of at least three events that match no pattern produce an
// unknown_sequence fallback. Returns nil when nothing matches.
func (m *Matcher) Evaluate(source string, window []ConnectionEvent) *Detection {
	if len(window) == 0 {
		return nil
	}

	detectedAt := window[len(window)-1].Timestamp

	for i := range m.patterns {
		p := &m.patterns[i]
		switch p.Kind {
		case MatchExactSequence:
			if matchesSuffix(window, p.Sequence) {
				ports := make([]int, len(p.Sequence))
				copy(ports, p.Sequence)
				return &Detection{
					SourceIdentity: source,
					PatternID:      p.ID,
					Description:    p.Description,
					Severity:       p.Severity,
					Ports:          ports,
					DetectedAt:     detectedAt,
				}
			}
		case MatchCountThreshold:
			if len(window) >= p.MinCount {
				return &Detection{
					SourceIdentity: source,
					PatternID:      p.ID,
					Description:    p.Description,
					Severity:       p.Severity,
					Ports:          windowPorts(window),
					DetectedAt:     detectedAt,
				}
			}
		}
	}

	if len(window) >= fallbackMinEvents {
		return &Detection{
			SourceIdentity: source,
			PatternID:      UnknownPatternID,
			Description:    fmt.Sprintf("Unrecognized knock sequence of %d events", len(window)),
			Severity:       SeverityMedium,
			Ports:          windowPorts(window),
			DetectedAt:     detectedAt,
		}
	}

	return nil
}

// matchesSuffix reports whether the most recent events in the window
// hit seq's ports in order.
func matchesSuffix(window []ConnectionEvent, seq []int) bool {
	if len(window) < len(seq) {
		return false
	}
	offset := len(window) - len(seq)
	for i, port := range seq {
		if window[offset+i].DestinationPort != port {
			return false
		}
	}
	return true
}

// windowPorts extracts the destination ports of the window in order.
func windowPorts(window []ConnectionEvent) []int {
	ports := make([]int, len(window))
	for i := range window {
		ports[i] = window[i].DestinationPort
	}
	return ports
}
