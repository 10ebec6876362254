// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"testing"
)

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)

	if summary.Total != 0 {
		t.Errorf("Total = %d, want 0", summary.Total)
	}
	if len(summary.BySeverity) != len(Severities()) {
		t.Fatalf("BySeverity has %d keys, want %d", len(summary.BySeverity), len(Severities()))
	}
	for _, sev := range Severities() {
		if count, ok := summary.BySeverity[sev]; !ok || count != 0 {
			t.Errorf("BySeverity[%s] = %d, want a present zero", sev, count)
		}
	}
}

func TestSummarizeCounts(t *testing.T) {
	detections := []Detection{
		{PatternID: "ssh_unlock", Severity: SeverityHigh},
		{PatternID: "complex_5port", Severity: SeverityHigh},
		{PatternID: "fwknop_spa", Severity: SeverityMedium},
		{PatternID: UnknownPatternID, Severity: SeverityMedium},
		{PatternID: "basic_3port", Severity: SeverityMedium},
	}

	summary := Summarize(detections)

	if summary.Total != 5 {
		t.Errorf("Total = %d, want 5", summary.Total)
	}
	if summary.BySeverity[SeverityHigh] != 2 {
		t.Errorf("BySeverity[HIGH] = %d, want 2", summary.BySeverity[SeverityHigh])
	}
	if summary.BySeverity[SeverityMedium] != 3 {
		t.Errorf("BySeverity[MEDIUM] = %d, want 3", summary.BySeverity[SeverityMedium])
	}
	if summary.BySeverity[SeverityCritical] != 0 {
		t.Errorf("BySeverity[CRITICAL] = %d, want 0", summary.BySeverity[SeverityCritical])
	}
}
