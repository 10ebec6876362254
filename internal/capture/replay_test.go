// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// writeReplayFile creates a temp JSONL file and returns its path.
func writeReplayFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write replay file: %v", err)
	}
	return path
}

// collectEvents runs the source and gathers everything it emits.
func collectEvents(t *testing.T, src Source) []knock.ConnectionEvent {
	t.Helper()
	var events []knock.ConnectionEvent
	err := src.Run(context.Background(), func(ev knock.ConnectionEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return events
}

func TestReplaySourceEmitsEvents(t *testing.T) {
	path := writeReplayFile(t, `{"source_identity":"203.0.113.5","destination_port":7000,"timestamp":1700000000000}
{"source_identity":"203.0.113.5","destination_port":8000,"timestamp":1700000000100}
{"source_identity":"198.51.100.7","destination_port":62201,"timestamp":1700000000200}
`)

	events := collectEvents(t, NewReplaySource(path, false))

	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].SourceIdentity != "203.0.113.5" {
		t.Errorf("events[0].SourceIdentity = %q, want 203.0.113.5", events[0].SourceIdentity)
	}
	if events[1].DestinationPort != 8000 {
		t.Errorf("events[1].DestinationPort = %d, want 8000", events[1].DestinationPort)
	}
	if events[2].Timestamp != 1700000000200 {
		t.Errorf("events[2].Timestamp = %d, want 1700000000200", events[2].Timestamp)
	}
}

func TestReplaySourceSkipsMalformedLines(t *testing.T) {
	path := writeReplayFile(t, `{"source_identity":"a","destination_port":1,"timestamp":1}
not json at all
{"source_identity":"b","destination_port":2,"timestamp":2}
{"truncated":
{"source_identity":"c","destination_port":3,"timestamp":3}
`)

	events := collectEvents(t, NewReplaySource(path, false))

	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3 (malformed lines skipped)", len(events))
	}
	if events[0].SourceIdentity != "a" || events[1].SourceIdentity != "b" || events[2].SourceIdentity != "c" {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestReplaySourceSkipsBlankLines(t *testing.T) {
	path := writeReplayFile(t, `
{"source_identity":"a","destination_port":1,"timestamp":1}


{"source_identity":"b","destination_port":2,"timestamp":2}
`)

	events := collectEvents(t, NewReplaySource(path, false))

	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestReplaySourceEmitErrorStops(t *testing.T) {
	path := writeReplayFile(t, `{"source_identity":"a","destination_port":1,"timestamp":1}
{"source_identity":"b","destination_port":2,"timestamp":2}
`)

	wantErr := errors.New("queue full")
	calls := 0
	err := NewReplaySource(path, false).Run(context.Background(), func(ev knock.ConnectionEvent) error {
		calls++
		return wantErr
	})

	if calls != 1 {
		t.Errorf("emit calls = %d, want 1", calls)
	}
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestReplaySourceContextCancelled(t *testing.T) {
	path := writeReplayFile(t, `{"source_identity":"a","destination_port":1,"timestamp":1}
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewReplaySource(path, false).Run(ctx, func(ev knock.ConnectionEvent) error {
		t.Error("emit should not be called after cancellation")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestReplaySourceMissingFile(t *testing.T) {
	err := NewReplaySource("/non/existent/events.jsonl", false).Run(context.Background(), func(ev knock.ConnectionEvent) error {
		return nil
	})
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestReplaySourcePacing(t *testing.T) {
	// Two events 80ms apart; paced replay must take at least most of
	// that gap. Only the lower bound is asserted to keep this stable
	// on loaded machines.
	path := writeReplayFile(t, `{"source_identity":"a","destination_port":1,"timestamp":1000}
{"source_identity":"a","destination_port":2,"timestamp":1080}
`)

	start := time.Now()
	events := collectEvents(t, NewReplaySource(path, true))
	elapsed := time.Since(start)

	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if elapsed < 60*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 60ms of pacing", elapsed)
	}
}

func TestPacingDelayCap(t *testing.T) {
	tests := []struct {
		gapMs int64
		want  time.Duration
	}{
		{0, 0},
		{50, 50 * time.Millisecond},
		{1000, time.Second},
		{3600000, time.Second}, // an hour-long gap is capped
	}

	for _, tt := range tests {
		if got := pacingDelay(tt.gapMs); got != tt.want {
			t.Errorf("pacingDelay(%d) = %v, want %v", tt.gapMs, got, tt.want)
		}
	}
}

func TestReplaySourceString(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"events.jsonl", "replay(events.jsonl)"},
		{StdinPath, "replay(stdin)"},
		{"", "replay(stdin)"},
	}

	for _, tt := range tests {
		src := NewReplaySource(tt.path, false)
		if got := src.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestReplaySourceLongLine(t *testing.T) {
	// A line longer than the scanner's default 64KB buffer must still
	// parse; the buffer is raised to maxLineBytes.
	padding := strings.Repeat("x", 100_000)
	path := writeReplayFile(t, `{"source_identity":"`+padding+`","destination_port":7000,"timestamp":1}
`)

	events := collectEvents(t, NewReplaySource(path, false))

	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if len(events[0].SourceIdentity) != 100_000 {
		t.Errorf("SourceIdentity length = %d, want 100000", len(events[0].SourceIdentity))
	}
}
