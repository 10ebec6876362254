// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package services

import (
	"context"
	"fmt"
	"time"
)

// StreamRunner is the lifecycle the event stream components expose.
// Satisfied by *StreamComponents in cmd/knockwatch: Start brings up the
// embedded server, router and consumers; Shutdown tears them down in
// reverse order.
type StreamRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
}

// StreamService adapts that Start/Shutdown lifecycle to suture's Serve
// pattern. A Start failure returns immediately so suture applies its
// backoff policy, which covers a NATS server that is still coming up.
type StreamService struct {
	stream    StreamRunner
	drainWait time.Duration
}

// NewStreamService wraps stream with ten seconds of shutdown grace.
func NewStreamService(stream StreamRunner) *StreamService {
	return &StreamService{stream: stream, drainWait: 10 * time.Second}
}

// Serve implements suture.Service: start, park until ctx is canceled,
// then shut down under a fresh bounded context.
func (s *StreamService) Serve(ctx context.Context) error {
	if err := s.stream.Start(ctx); err != nil {
		return fmt.Errorf("event stream start: %w", err)
	}

	<-ctx.Done()

	drain, cancel := context.WithTimeout(context.Background(), s.drainWait)
	defer cancel()
	s.stream.Shutdown(drain)

	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *StreamService) String() string {
	return "event-stream"
}
