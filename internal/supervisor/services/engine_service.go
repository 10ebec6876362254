// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package services

import (
	"context"
)

// DetectionEngine is the part of *knock.Engine the supervisor drives.
// The interface keeps this package from importing internal/knock and
// lets tests substitute a stub.
type DetectionEngine interface {
	// RunWithContext starts workers, dispatcher and sweeper, then
	// blocks until ctx is canceled and the queue has drained.
	RunWithContext(ctx context.Context) error
}

// EngineService places the detection engine under supervision.
//
// An Engine instance runs once; Start after Shutdown fails. A Serve
// return before cancellation therefore puts the supervisor into its
// backoff loop instead of silently resurrecting a half-torn-down
// engine. In practice RunWithContext only returns on cancellation.
type EngineService struct {
	engine DetectionEngine
}

// NewEngineService wraps engine for the supervisor's detection layer.
func NewEngineService(engine DetectionEngine) *EngineService {
	return &EngineService{engine: engine}
}

// Serve implements suture.Service by running the engine until ctx ends.
func (s *EngineService) Serve(ctx context.Context) error {
	return s.engine.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (s *EngineService) String() string {
	return "knock-engine"
}
