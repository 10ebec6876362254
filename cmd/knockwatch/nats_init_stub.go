// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package main

import (
	"context"

	"github.com/tomtom215/knockwatch/internal/config"
	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
)

// natsIngestHint completes the idle-source log line for NATS builds.
const natsIngestHint = ""

// StreamComponents keeps the build variants API-compatible. Without
// the nats tag InitNATS hands back nil, and callers treat nil as
// "stream ingest absent".
type StreamComponents struct{}

// InitNATS warns when the config asks for an event stream this binary
// cannot provide, then reports the stream as absent.
func InitNATS(cfg *config.Config, _ *knock.Engine) (*StreamComponents, error) {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("KNOCKWATCH_NATS_ENABLED=true but this binary was built without -tags nats")
	}
	return nil, nil
}

// Start reports success without doing anything.
func (c *StreamComponents) Start(context.Context) error { return nil }

// Shutdown does nothing.
func (c *StreamComponents) Shutdown(context.Context) {}

// IsRunning reports false.
func (c *StreamComponents) IsRunning() bool { return false }
