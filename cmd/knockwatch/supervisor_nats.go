// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package main

import (
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/supervisor"
	"github.com/tomtom215/knockwatch/internal/supervisor/services"
)

// AddStreamToSupervisor registers the event stream in the supervisor
// tree's capture layer. The stream lives with the capture sources
// because its router does the same job as a live pcap handle: it feeds
// raw connection events into the engine, and a wedged consumer should
// be restarted the same way a dead capture handle is.
//
// A nil components means the stream is disabled; nothing is registered
// and the engine runs on direct API ingest alone.
func AddStreamToSupervisor(tree *supervisor.SupervisorTree, components *StreamComponents) {
	if components == nil {
		return
	}
	tree.AddCaptureService(services.NewStreamService(components))
	logging.Info().Msg("Event stream registered in capture layer")
}
