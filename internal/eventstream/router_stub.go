// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package eventstream

import "context"

// Router is the placeholder compiled when the nats build tag is absent.
type Router struct{}

// NewRouter always fails in builds without NATS support.
func NewRouter(*RouterConfig, interface{}, interface{}) (*Router, error) {
	return nil, ErrNATSNotEnabled
}

// AddConsumerHandler is a no-op.
func (*Router) AddConsumerHandler(string, string, interface{}, interface{}) interface{} {
	return nil
}

// Run fails with ErrNATSNotEnabled.
func (*Router) Run(context.Context) error { return ErrNATSNotEnabled }

// RunAsync reports a router that was never started.
func (*Router) RunAsync(context.Context) <-chan struct{} { return closedChan() }

// Running reports a router that was never started.
func (*Router) Running() <-chan struct{} { return closedChan() }

// Close is a no-op.
func (*Router) Close() error { return nil }

// IsRunning reports false.
func (*Router) IsRunning() bool { return false }

// closedChan keeps callers waiting on router readiness from blocking
// forever in builds without NATS.
func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
