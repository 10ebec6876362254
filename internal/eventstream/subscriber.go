// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// Subscriber wraps a Watermill NATS subscriber for durable JetStream
// consumption. It satisfies message.Subscriber, so it plugs directly
// into the Router's consumer handlers. Queue groups spread load across
// engine instances; the durable name preserves the consumer position
// across restarts.
type Subscriber struct {
	sub message.Subscriber
	cfg SubscriberConfig
}

// consumeOptions builds the JetStream subscribe options. Binding to a
// pre-created stream is required for wildcard topics because NATS
// stream names cannot contain wildcards, so AutoProvision would fail
// trying to derive a stream name from the topic.
func consumeOptions(c SubscriberConfig) (opts []natsgo.SubOpt, autoProvision bool) {
	opts = []natsgo.SubOpt{
		natsgo.MaxDeliver(c.MaxDeliver),
		natsgo.MaxAckPending(c.MaxAckPending),
		natsgo.AckWait(c.AckWaitTimeout),
		// Deliver new messages only (use DeliverAll for replay)
		natsgo.DeliverNew(),
	}

	if c.StreamName == "" {
		return opts, true
	}
	return append(opts, natsgo.BindStream(c.StreamName)), false
}

// watermillSubscriberConfig maps package settings onto Watermill's
// subscriber configuration.
func watermillSubscriberConfig(c SubscriberConfig, logger watermill.LoggerAdapter) wmNats.SubscriberConfig {
	opts, provision := consumeOptions(c)

	return wmNats.SubscriberConfig{
		URL:              c.URL,
		QueueGroupPrefix: c.QueueGroup,
		SubscribersCount: c.SubscribersCount,
		AckWaitTimeout:   c.AckWaitTimeout,
		CloseTimeout:     c.CloseTimeout,
		NatsOptions:      connectOptions("subscriber", c.MaxReconnects, c.ReconnectWait, logger),
		Unmarshaler:      natsMarshaler,
		// Acks stay synchronous so a crash cannot silently drop an
		// event that was never processed.
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    provision,
			SubscribeOptions: opts,
			DurablePrefix:    c.DurableName,
		},
	}
}

// NewSubscriber creates a durable JetStream subscriber.
func NewSubscriber(cfg *SubscriberConfig, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: subscriber config required", ErrInvalidConfig)
	}
	logger = orStdLogger(logger)

	sub, err := wmNats.NewSubscriber(watermillSubscriberConfig(*cfg, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("watermill subscriber: %w", err)
	}
	return &Subscriber{sub: sub, cfg: *cfg}, nil
}

// Subscribe returns a channel of messages for the given topic.
// The channel is closed when the context is canceled or the subscriber
// is closed.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.sub.Subscribe(ctx, topic)
}

// Close gracefully shuts down the subscriber.
func (s *Subscriber) Close() error { return s.sub.Close() }

// Config returns the subscriber settings in effect.
func (s *Subscriber) Config() SubscriberConfig { return s.cfg }
