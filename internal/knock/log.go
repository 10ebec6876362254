// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import "sync"

// DetectionLog is the append-only, in-memory record of detections for
// the process lifetime. Appends never block readers for long: All and
// Filter return snapshots, so iteration is safe while writers append.
type DetectionLog struct {
	mu         sync.RWMutex
	detections []Detection
}

// DetectionFilter narrows Filter results. Zero values match all.
type DetectionFilter struct {
	Severity       Severity
	SourceIdentity string
	PatternID      string
	Limit          int
}

// NewDetectionLog creates an empty detection log.
func NewDetectionLog() *DetectionLog {
	return &DetectionLog{}
}

// Append adds a detection to the log. Entries are never modified or
// removed afterwards.
func (l *DetectionLog) Append(d Detection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detections = append(l.detections, d)
}

// All returns a snapshot of every detection in append order.
func (l *DetectionLog) All() []Detection {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Detection, len(l.detections))
	copy(out, l.detections)
	return out
}

// Filter returns a snapshot of detections matching the filter, in
// append order. A Limit > 0 keeps the most recent matches.
func (l *DetectionLog) Filter(f DetectionFilter) []Detection {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Detection
	for i := range l.detections {
		d := &l.detections[i]
		if f.Severity != "" && d.Severity != f.Severity {
			continue
		}
		if f.SourceIdentity != "" && d.SourceIdentity != f.SourceIdentity {
			continue
		}
		if f.PatternID != "" && d.PatternID != f.PatternID {
			continue
		}
		out = append(out, *d)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len returns the number of logged detections.
func (l *DetectionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.detections)
}
