// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package eventstream

import (
	"context"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Publisher is the placeholder compiled when the nats build tag is absent.
// Every operation fails with ErrNATSNotEnabled.
type Publisher struct{}

// NewPublisher always fails in builds without NATS support.
func NewPublisher(PublisherConfig, interface{}) (*Publisher, error) {
	return nil, ErrNATSNotEnabled
}

// SetCircuitBreaker is a no-op.
func (*Publisher) SetCircuitBreaker(*gobreaker.CircuitBreaker[struct{}]) {}

// Publish fails with ErrNATSNotEnabled.
func (*Publisher) Publish(context.Context, string, interface{}) error {
	return ErrNATSNotEnabled
}

// PublishEvent fails with ErrNATSNotEnabled.
func (*Publisher) PublishEvent(context.Context, knock.ConnectionEvent) error {
	return ErrNATSNotEnabled
}

// Send fails with ErrNATSNotEnabled.
func (*Publisher) Send(context.Context, *knock.Detection) error {
	return ErrNATSNotEnabled
}

// Name identifies this notifier in engine logs.
func (*Publisher) Name() string { return "nats" }

// Enabled reports false so the engine skips this notifier.
func (*Publisher) Enabled() bool { return false }

// Close is a no-op.
func (*Publisher) Close() error { return nil }

// WatermillPublisher reports no underlying publisher.
func (*Publisher) WatermillPublisher() interface{} { return nil }
