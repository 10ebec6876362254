// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// JetStream-side publish retries. These are short because the circuit
// breaker handles sustained failure.
const (
	publishRetryAttempts = 3
	publishRetryWait     = 100 * time.Millisecond
)

// Publisher wraps a Watermill NATS publisher with resilience patterns:
// circuit breaker protection, automatic reconnection, and message ID
// tracking for JetStream deduplication.
//
// It implements knock.Notifier, so registering it with the engine fans
// detections out on per-severity subjects. Sensors use PublishEvent to
// forward raw connection events to a remote engine.
type Publisher struct {
	pub      message.Publisher
	cfg      PublisherConfig
	codec    *Serializer
	breaker  *gobreaker.CircuitBreaker[struct{}]
	eventLog *logging.EventLog
	closed   atomic.Bool
}

// watermillPublisherConfig maps package settings onto Watermill's
// publisher configuration. Provisioning stays off because the stream is
// created up front by StreamProvisioner.
func watermillPublisherConfig(c PublisherConfig, logger watermill.LoggerAdapter) wmNats.PublisherConfig {
	opts := connectOptions("publisher", c.MaxReconnects, c.ReconnectWait, logger)
	opts = append(opts, natsgo.ReconnectBufSize(c.ReconnectBuffer))

	return wmNats.PublisherConfig{
		URL:         c.URL,
		NatsOptions: opts,
		Marshaler:   natsMarshaler,
		JetStream: wmNats.JetStreamConfig{
			TrackMsgId: c.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(publishRetryAttempts),
				natsgo.RetryWait(publishRetryWait),
			},
		},
	}
}

// NewPublisher creates a resilient Watermill NATS publisher.
// The publisher is configured for JetStream with message ID tracking.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	logger = orStdLogger(logger)

	pub, err := wmNats.NewPublisher(watermillPublisherConfig(cfg, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("watermill publisher: %w", err)
	}

	return &Publisher{
		pub:      pub,
		cfg:      cfg,
		codec:    NewSerializer(),
		eventLog: logging.NewEventLog(),
	}, nil
}

// SetCircuitBreaker configures the circuit breaker for publish
// operations. Call it before the first publish; the field is not
// synchronized.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[struct{}]) {
	p.breaker = cb
}

// execute runs op through the circuit breaker when one is configured.
func (p *Publisher) execute(op func() error) error {
	if p.breaker == nil {
		return op()
	}
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// ensureMsgID defaults Nats-Msg-Id to the message UUID so JetStream can
// drop duplicate deliveries inside the dedup window.
func ensureMsgID(msg *message.Message) {
	if msg.Metadata.Get(natsgo.MsgIdHdr) != "" {
		return
	}
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
}

// Publish sends a message to the specified topic with circuit breaker
// protection.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	ensureMsgID(msg)

	if err := p.execute(func() error { return p.pub.Publish(topic, msg) }); err != nil {
		return err
	}
	metrics.RecordNATSPublish()
	return nil
}

// PublishEvent normalizes and publishes a raw connection event to the
// events subject. Sensors call this for every captured knock.
func (p *Publisher) PublishEvent(ctx context.Context, ev knock.ConnectionEvent) error {
	data, err := p.codec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("source_identity", ev.SourceIdentity)
	msg.SetContext(ctx)

	return p.Publish(ctx, p.cfg.EventsSubject, msg)
}

// Send publishes a detection to its per-severity subject. It implements
// knock.Notifier so the engine can fan detections out over NATS the
// same way it does webhooks.
func (p *Publisher) Send(ctx context.Context, d *knock.Detection) error {
	data, err := p.codec.MarshalDetection(*d)
	if err != nil {
		return fmt.Errorf("serialize detection: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("source_identity", d.SourceIdentity)
	msg.Metadata.Set("pattern_id", d.PatternID)
	msg.Metadata.Set("severity", string(d.Severity))
	msg.SetContext(ctx)

	subject := DetectionSubject(p.cfg.DetectionsPrefix, d.Severity)
	if err := p.Publish(ctx, subject, msg); err != nil {
		return err
	}

	p.eventLog.DetectionPublished(ctx, subject, d.PatternID)
	return nil
}

// Name identifies this notifier in engine logs.
func (p *Publisher) Name() string { return "nats" }

// Enabled reports whether the publisher can still accept detections.
func (p *Publisher) Enabled() bool { return !p.closed.Load() }

// Close shuts the publisher down. Later calls are no-ops.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.pub.Close()
}

// WatermillPublisher exposes the underlying Watermill publisher for
// components that require the native message.Publisher interface, such
// as the poison queue middleware.
func (p *Publisher) WatermillPublisher() message.Publisher { return p.pub }
