// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package eventstream

import "context"

// EmbeddedServer is the placeholder compiled when the nats build tag is absent.
type EmbeddedServer struct{}

// NewEmbeddedServer always fails in builds without NATS support.
func NewEmbeddedServer(*ServerConfig) (*EmbeddedServer, error) {
	return nil, ErrNATSNotEnabled
}

// ClientURL reports no connection URL.
func (*EmbeddedServer) ClientURL() string { return "" }

// Shutdown is a no-op.
func (*EmbeddedServer) Shutdown(context.Context) error { return nil }

// IsRunning reports false.
func (*EmbeddedServer) IsRunning() bool { return false }

// JetStreamEnabled reports false.
func (*EmbeddedServer) JetStreamEnabled() bool { return false }
