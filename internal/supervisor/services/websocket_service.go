// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package services

import (
	"context"
)

// HubRunner is the part of the websocket hub the supervisor drives.
// *websocket.Hub satisfies it; the interface keeps this package from
// importing internal/websocket.
type HubRunner interface {
	RunWithContext(ctx context.Context) error
}

// HubService places the WebSocket hub under supervision. RunWithContext
// already has suture.Service semantics (block, honor ctx, return its
// error), so the wrapper adds nothing but a stable name.
type HubService struct {
	hub HubRunner
}

// NewHubService wraps hub for the supervisor's api layer.
func NewHubService(hub HubRunner) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service by running the hub until ctx ends.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (s *HubService) String() string {
	return "websocket-hub"
}
