// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/knockwatch/internal/capture"
	"github.com/tomtom215/knockwatch/internal/knock"
)

// EventSink accepts connection events for processing.
//
// Satisfied by *knock.Engine.
type EventSink interface {
	Ingest(ev knock.ConnectionEvent) error
}

// CaptureService runs a capture source and feeds its events into the
// engine.
//
// Error policy at the emit boundary:
//   - invalid events and queue overflows are already counted and logged
//     by the engine, so the source keeps reading
//   - any other ingest error (engine stopped) stops the source
//
// When a finite source is exhausted (replay hits EOF) the service
// closes Done() and returns suture.ErrDoNotRestart; restarting would
// replay the same events again. A crashed source (a dying pcap handle)
// returns its error and is restarted with a fresh handle.
type CaptureService struct {
	source capture.Source
	sink   EventSink
	name   string

	drained   chan struct{}
	drainOnce sync.Once
}

// NewCaptureService creates a supervised wrapper around source,
// delivering events to sink.
func NewCaptureService(source capture.Source, sink EventSink) *CaptureService {
	return &CaptureService{
		source:  source,
		sink:    sink,
		name:    "capture-" + source.String(),
		drained: make(chan struct{}),
	}
}

// Done is closed when the source has been read to exhaustion. It never
// closes for continuous sources (pcap, stdin held open). Replay mode
// uses this to trigger application shutdown once the file is consumed.
func (s *CaptureService) Done() <-chan struct{} {
	return s.drained
}

// Serve implements suture.Service by pumping source events into the
// sink until the source ends or ctx is canceled.
func (s *CaptureService) Serve(ctx context.Context) error {
	err := s.source.Run(ctx, s.emit)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("capture source %s: %w", s.source, err)
	}

	// Input exhausted. Signal and retire the service.
	s.drainOnce.Do(func() { close(s.drained) })
	return suture.ErrDoNotRestart
}

func (s *CaptureService) emit(ev knock.ConnectionEvent) error {
	err := s.sink.Ingest(ev)
	switch {
	case err == nil:
		return nil
	case knock.IsInvalidEvent(err), knock.IsOverflow(err):
		// Counted and logged by the engine; keep reading.
		return nil
	default:
		return err
	}
}

// String names the service in supervisor logs.
func (s *CaptureService) String() string {
	return s.name
}
