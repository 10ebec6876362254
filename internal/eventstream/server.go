// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// serverReadyTimeout bounds how long startup waits for the embedded
// server to accept connections.
const serverReadyTimeout = 30 * time.Second

// EmbeddedServer wraps an in-process NATS server with lifecycle
// management. It gives single-host deployments a self-contained
// JetStream instance so remote sensors can publish without an external
// broker.
type EmbeddedServer struct {
	ns *server.Server
}

func serverOptions(cfg *ServerConfig) *server.Options {
	opts := &server.Options{
		ServerName: "knockwatch-events",
		Host:       cfg.Host,
		Port:       cfg.Port,
		MaxPayload: maxEventPayload,
	}
	// JetStream persistence backs the knock event stream.
	opts.JetStream = true
	opts.StoreDir = cfg.StoreDir
	opts.JetStreamMaxMemory = cfg.MaxMemory
	opts.JetStreamMaxStore = cfg.MaxStore
	return opts
}

// NewEmbeddedServer creates and starts an embedded NATS server
// configured for JetStream with the given limits. Returns an error if
// the server is not ready within serverReadyTimeout.
func NewEmbeddedServer(cfg *ServerConfig) (*EmbeddedServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: server config required", ErrInvalidConfig)
	}

	ns, err := server.NewServer(serverOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("embedded NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()
	if !ns.ReadyForConnections(serverReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within %s", serverReadyTimeout)
	}

	return &EmbeddedServer{ns: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string { return s.ns.ClientURL() }

// Shutdown stops the server and waits for in-flight work to drain or
// the context to expire, whichever comes first.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.ns.Shutdown()

	done := make(chan struct{})
	go func() {
		s.ns.WaitForShutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the server is accepting connections.
func (s *EmbeddedServer) IsRunning() bool { return s.ns.Running() }

// JetStreamEnabled reports whether JetStream came up with the server.
func (s *EmbeddedServer) JetStreamEnabled() bool { return s.ns.JetStreamEnabled() }
