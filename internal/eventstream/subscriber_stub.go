// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package eventstream

import "context"

// Subscriber is the placeholder compiled when the nats build tag is absent.
type Subscriber struct{}

// NewSubscriber always fails in builds without NATS support.
func NewSubscriber(*SubscriberConfig, interface{}) (*Subscriber, error) {
	return nil, ErrNATSNotEnabled
}

// Subscribe fails with ErrNATSNotEnabled.
func (*Subscriber) Subscribe(context.Context, string) (<-chan interface{}, error) {
	return nil, ErrNATSNotEnabled
}

// Close is a no-op.
func (*Subscriber) Close() error { return nil }

// Config reports an empty configuration.
func (*Subscriber) Config() SubscriberConfig { return SubscriberConfig{} }
