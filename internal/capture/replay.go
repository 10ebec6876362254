// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

const (
	// maxLineBytes bounds a single JSONL line. Events are tiny; a line
	// near this limit is garbage, not data.
	maxLineBytes = 1 << 20

	// maxPaceDelay caps the sleep between paced events so sparse
	// captures do not stall a replay for hours.
	maxPaceDelay = time.Second
)

// StdinPath selects stdin as the replay input.
const StdinPath = "-"

// ReplaySource reads connection events from a JSONL stream, one event
// per line:
//
//	{"source_identity":"203.0.113.5","destination_port":7000,"timestamp":1700000000000}
//
// Malformed lines are logged, counted, and skipped; the stream keeps
// going. With pacing enabled the source sleeps the gap between
// consecutive event timestamps, capped at maxPaceDelay, so a recorded
// session plays back at roughly its original rhythm.
type ReplaySource struct {
	path string
	pace bool
}

// NewReplaySource returns a source reading from path. Pass StdinPath
// (or an empty path) to read from stdin.
func NewReplaySource(path string, pace bool) *ReplaySource {
	return &ReplaySource{path: path, pace: pace}
}

// String identifies the source in logs.
func (s *ReplaySource) String() string {
	if s.path == "" || s.path == StdinPath {
		return "replay(stdin)"
	}
	return "replay(" + s.path + ")"
}

// Run reads the stream to exhaustion, emitting each parsed event.
func (s *ReplaySource) Run(ctx context.Context, emit func(knock.ConnectionEvent) error) error {
	var in io.Reader
	if s.path == "" || s.path == StdinPath {
		in = os.Stdin
	} else {
		f, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("open replay file: %w", err)
		}
		defer f.Close()
		in = f
	}

	logging.Info().Str("source", s.String()).Bool("pace", s.pace).Msg("Replay started")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		prevTs  int64
		lineNo  int
		emitted int
	)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev knock.ConnectionEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			metrics.RecordCaptureParseFailure("replay")
			logging.Warn().Int("line", lineNo).Err(err).Msg("Skipping malformed replay event")
			continue
		}

		if s.pace && prevTs > 0 && ev.Timestamp > prevTs {
			if err := sleepCtx(ctx, pacingDelay(ev.Timestamp-prevTs)); err != nil {
				return err
			}
		}
		prevTs = ev.Timestamp

		metrics.RecordCaptureEvent("replay")
		if err := emit(ev); err != nil {
			return fmt.Errorf("emit replay event (line %d): %w", lineNo, err)
		}
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay input: %w", err)
	}

	logging.Info().Str("source", s.String()).Int("events", emitted).Msg("Replay finished")
	return nil
}

// pacingDelay converts a timestamp gap in milliseconds to a bounded
// sleep duration.
func pacingDelay(gapMs int64) time.Duration {
	d := time.Duration(gapMs) * time.Millisecond
	if d > maxPaceDelay {
		return maxPaceDelay
	}
	return d
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
