// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package eventstream

import "context"

// StreamProvisioner is the placeholder compiled when the nats build tag
// is absent.
type StreamProvisioner struct{}

// NewStreamProvisioner always fails in builds without NATS support.
func NewStreamProvisioner(any, *StreamConfig) (*StreamProvisioner, error) {
	return nil, ErrNATSNotEnabled
}

// EnsureStream fails with ErrNATSNotEnabled.
func (*StreamProvisioner) EnsureStream(context.Context) (any, error) {
	return nil, ErrNATSNotEnabled
}

// StreamInfo fails with ErrNATSNotEnabled.
func (*StreamProvisioner) StreamInfo(context.Context) (any, error) {
	return nil, ErrNATSNotEnabled
}

// IsHealthy reports false.
func (*StreamProvisioner) IsHealthy(context.Context) bool { return false }

// Config reports an empty configuration.
func (*StreamProvisioner) Config() StreamConfig { return StreamConfig{} }
