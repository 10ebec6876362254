// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	"github.com/tomtom215/knockwatch/internal/logging"
)

// Router wraps the Watermill Router with pre-configured middleware:
// automatic Ack/Nack from handler results, panic recovery, exponential
// backoff retry, optional throttling, and poison queue routing for
// messages that exhaust their retries.
type Router struct {
	wm       *message.Router
	logger   watermill.LoggerAdapter
	eventLog *logging.EventLog
	running  atomic.Bool
}

// poisonLogger decorates the poison queue publisher so every diverted
// message leaves a trace before it lands on the DLQ topic.
type poisonLogger struct {
	inner    message.Publisher
	eventLog *logging.EventLog
}

func (p *poisonLogger) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		reason := errors.New(msg.Metadata.Get(middleware.ReasonForPoisonedKey))
		p.eventLog.MessagePoisoned(msg.Context(), topic, reason)
	}
	return p.inner.Publish(topic, msgs...)
}

func (p *poisonLogger) Close() error { return p.inner.Close() }

// middlewareStack assembles the handler middleware in execution order:
// Recoverer converts panics to errors, Retry backs off on transient
// failures, Throttle rate-limits when configured, and PoisonQueue
// diverts messages that exhaust their retries.
func middlewareStack(
	cfg RouterConfig,
	poisonPub message.Publisher,
	eventLog *logging.EventLog,
	logger watermill.LoggerAdapter,
) ([]message.HandlerMiddleware, error) {
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}

	stack := []message.HandlerMiddleware{
		middleware.Recoverer,
		retry.Middleware,
	}

	if cfg.ThrottlePerSecond > 0 {
		stack = append(stack, middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second).Middleware)
	}

	if poisonPub != nil && cfg.PoisonQueueTopic != "" {
		traced := &poisonLogger{inner: poisonPub, eventLog: eventLog}
		poisonQueue, err := middleware.PoisonQueue(traced, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("poison queue middleware: %w", err)
		}
		stack = append(stack, poisonQueue)
	}

	return stack, nil
}

// NewRouter creates a Watermill Router with the standard middleware
// stack. A nil config uses DefaultRouterConfig.
func NewRouter(cfg *RouterConfig, poisonPub message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	logger = orStdLogger(logger)
	if cfg == nil {
		def := DefaultRouterConfig()
		cfg = &def
	}

	wm, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("watermill router: %w", err)
	}

	r := &Router{
		wm:       wm,
		logger:   logger,
		eventLog: logging.NewEventLog(),
	}

	stack, err := middlewareStack(*cfg, poisonPub, r.eventLog, logger)
	if err != nil {
		return nil, err
	}

	wm.AddPlugin(plugin.SignalsHandler)
	wm.AddMiddleware(stack...)

	return r, nil
}

// AddConsumerHandler registers a handler that consumes messages without
// producing output. Errors from the handler trigger retry; permanent
// failures go to the poison queue.
func (r *Router) AddConsumerHandler(name, topic string, sub message.Subscriber, handler message.NoPublishHandlerFunc) *message.Handler {
	return r.wm.AddConsumerHandler(name, topic, sub, handler)
}

// Run starts the router and blocks until context cancellation or
// Close(). All registered handlers begin processing messages.
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	r.eventLog.RouterStarted()
	defer func() {
		r.running.Store(false)
		r.eventLog.RouterStopped()
	}()
	return r.wm.Run(ctx)
}

// RunAsync starts the router in a goroutine and returns a channel that
// is closed once the router is running.
func (r *Router) RunAsync(ctx context.Context) <-chan struct{} {
	go func() {
		if err := r.Run(ctx); err != nil {
			r.logger.Error("router stopped with error", err, nil)
		}
	}()
	return r.wm.Running()
}

// Running returns a channel that closes once the router is running.
func (r *Router) Running() <-chan struct{} { return r.wm.Running() }

// Close gracefully stops the router, waiting for in-flight messages up
// to CloseTimeout.
func (r *Router) Close() error { return r.wm.Close() }

// IsRunning reports whether the router is processing messages.
func (r *Router) IsRunning() bool { return r.running.Load() }
