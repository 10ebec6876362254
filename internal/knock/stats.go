// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

// Summarize computes total and per-severity counts for a detection
// slice. It is a pure function; the engine additionally keeps running
// counters that yield the same numbers without a full scan.
func Summarize(detections []Detection) Summary {
	summary := Summary{
		BySeverity: make(map[Severity]int, len(Severities())),
	}
	for _, sev := range Severities() {
		summary.BySeverity[sev] = 0
	}
	for i := range detections {
		summary.Total++
		summary.BySeverity[detections[i].Severity]++
	}
	return summary
}
