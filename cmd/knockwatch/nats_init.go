// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/knockwatch/internal/config"
	"github.com/tomtom215/knockwatch/internal/eventstream"
	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// natsIngestHint completes the idle-source log line for NATS builds.
const natsIngestHint = " or NATS"

// queueDepthInterval is how often the stream backlog gauge refreshes.
const queueDepthInterval = 10 * time.Second

// StreamComponents owns the NATS side of the process: the optional
// embedded server, the JetStream provisioner, and the Watermill
// publisher and router that move events between sensors and the engine.
type StreamComponents struct {
	server      *eventstream.EmbeddedServer
	natsConn    *natsgo.Conn
	provisioner *eventstream.StreamProvisioner
	publisher   *eventstream.Publisher
	subscriber  *eventstream.Subscriber
	router      *eventstream.Router

	eventLog *logging.EventLog

	// Subscription identity for lifecycle logging
	eventsSubject string
	queueGroup    string

	monitorStop      chan struct{}
	shutdownComplete chan struct{}
	mu               sync.Mutex
	running          bool
}

// InitNATS wires the event stream when NATS_ENABLED=true and returns
// nil, nil otherwise. The returned components are built but idle until
// Start is called; the supervisor's stream service owns that lifecycle.
//
// Detections flow out through the publisher, which registers with the
// engine's notifier fan-out. Raw events flow in through the router: the
// ingest handler feeds engine.Ingest and acks or nacks based on the
// engine's error taxonomy.
func InitNATS(cfg *config.Config, engine *knock.Engine) (*StreamComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS event streaming disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	logging.Info().Msg("Initializing NATS event streaming...")

	c := &StreamComponents{
		eventLog:         logging.NewEventLog(),
		eventsSubject:    cfg.NATS.EventsSubject,
		queueGroup:       cfg.NATS.QueueGroup,
		monitorStop:      make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}

	url, err := c.resolveServer(&cfg.NATS)
	if err != nil {
		return nil, c.abort(err)
	}
	if err := c.connectStream(&cfg.NATS, url); err != nil {
		return nil, c.abort(err)
	}
	if err := c.wireMessaging(&cfg.NATS, engine, url); err != nil {
		return nil, c.abort(err)
	}

	// Detections fan out to per-severity subjects alongside the other
	// notifiers.
	engine.RegisterNotifier(c.publisher)

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	logging.Info().Msg("NATS event streaming initialized")
	return c, nil
}

// abort releases whatever InitNATS wired so far and passes the error
// through.
func (c *StreamComponents) abort(err error) error {
	c.teardown(context.Background())
	return err
}

// resolveServer starts the embedded server when configured, otherwise
// it just echoes the external URL to dial.
func (c *StreamComponents) resolveServer(cfg *config.NATSConfig) (string, error) {
	if !cfg.EmbeddedServer {
		logging.Info().Str("url", cfg.URL).Msg("Using external NATS server")
		return cfg.URL, nil
	}

	serverCfg := eventstream.DefaultServerConfig()
	serverCfg.StoreDir = cfg.StoreDir
	serverCfg.MaxMemory = cfg.MaxMemory
	serverCfg.MaxStore = cfg.MaxStore

	server, err := eventstream.NewEmbeddedServer(&serverCfg)
	if err != nil {
		return "", err
	}
	c.server = server
	logging.Info().Str("url", server.ClientURL()).Msg("Embedded NATS server ready")
	return server.ClientURL(), nil
}

// connectStream dials NATS and provisions the raw-events stream.
func (c *StreamComponents) connectStream(cfg *config.NATSConfig, url string) error {
	nc, err := natsgo.Connect(url,
		natsgo.Name("knockwatch"),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.RetryOnFailedConnect(true),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	c.natsConn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	streamCfg := eventstream.DefaultStreamConfig()
	streamCfg.MaxAge = time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour

	provisioner, err := eventstream.NewStreamProvisioner(js, &streamCfg)
	if err != nil {
		return fmt.Errorf("stream provisioner: %w", err)
	}
	c.provisioner = provisioner

	stream, err := provisioner.EnsureStream(context.Background())
	if err != nil {
		return fmt.Errorf("provision stream: %w", err)
	}
	info := stream.CachedInfo()
	logging.Info().
		Str("stream", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("retention", info.Config.MaxAge).
		Msg("JetStream stream provisioned")
	return nil
}

// wireMessaging builds the detection publisher, the event subscriber,
// and the router that binds the ingest handler to the engine.
func (c *StreamComponents) wireMessaging(cfg *config.NATSConfig, engine *knock.Engine, url string) error {
	wmLog := eventstream.NewWatermillLogger()

	pubCfg := eventstream.DefaultPublisherConfig(url)
	pubCfg.EventsSubject = cfg.EventsSubject
	pubCfg.DetectionsPrefix = cfg.DetectionsSubject

	publisher, err := eventstream.NewPublisher(pubCfg, wmLog)
	if err != nil {
		return err
	}
	publisher.SetCircuitBreaker(eventstream.NewCircuitBreaker(
		eventstream.DefaultCircuitBreakerConfig("nats-publisher")))
	c.publisher = publisher

	subCfg := eventstream.DefaultSubscriberConfig(url)
	subCfg.DurableName = cfg.DurableName
	subCfg.QueueGroup = cfg.QueueGroup
	subCfg.SubscribersCount = cfg.SubscribersCount
	// Bind to the provisioned stream; AutoProvision would otherwise try
	// to derive one from the wildcard topic name.
	subCfg.StreamName = c.provisioner.Config().Name

	subscriber, err := eventstream.NewSubscriber(&subCfg, wmLog)
	if err != nil {
		return fmt.Errorf("build subscriber: %w", err)
	}
	c.subscriber = subscriber

	routerCfg := eventstream.RouterConfig{
		CloseTimeout:         cfg.RouterCloseTimeout,
		RetryMaxRetries:      cfg.RouterRetryCount,
		RetryInitialInterval: cfg.RouterRetryInterval,
		RetryMaxInterval:     10 * cfg.RouterRetryInterval,
		RetryMultiplier:      2.0,
	}
	var poison message.Publisher
	if cfg.RouterPoisonEnabled {
		routerCfg.PoisonQueueTopic = cfg.RouterPoisonTopic
		poison = publisher.WatermillPublisher()
	}

	router, err := eventstream.NewRouter(&routerCfg, poison, wmLog)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	c.router = router

	ingest, err := eventstream.NewIngestHandler(engine)
	if err != nil {
		return fmt.Errorf("build ingest handler: %w", err)
	}
	router.AddConsumerHandler("knock-event-ingest", cfg.EventsSubject, subscriber, ingest.Handle)

	logging.Info().
		Str("subject", cfg.EventsSubject).
		Str("queue_group", cfg.QueueGroup).
		Int("retries", routerCfg.RetryMaxRetries).
		Bool("poison_queue", cfg.RouterPoisonEnabled).
		Msg("Event router wired")
	return nil
}

// Start runs the router and the queue depth monitor. It is called by
// the supervisor's stream service after InitNATS.
func (c *StreamComponents) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if c.router != nil {
		running := c.router.RunAsync(ctx)
		select {
		case <-running:
			logging.Info().Msg("Event router running")
		case <-ctx.Done():
			return fmt.Errorf("router startup interrupted: %w", ctx.Err())
		}
		c.eventLog.SubscriptionStarted(c.eventsSubject, c.queueGroup)
	}

	if c.provisioner != nil {
		go c.monitorQueueDepth(ctx)
	}
	return nil
}

// monitorQueueDepth refreshes the stream backlog gauge until shutdown.
func (c *StreamComponents) monitorQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.monitorStop:
			return
		case <-ticker.C:
			info, err := c.provisioner.StreamInfo(ctx)
			if err != nil {
				logging.Debug().Err(err).Msg("Queue depth probe failed")
				continue
			}
			metrics.UpdateNATSQueueDepth(int64(info.State.Msgs))
		}
	}
}

// Shutdown stops all event stream components. Only the first call does
// the work; later calls return once the flag has flipped.
func (c *StreamComponents) Shutdown(ctx context.Context) {
	if c == nil || !c.markStopped() {
		return
	}

	logging.Info().Msg("Stopping event stream components...")
	c.teardown(ctx)
	close(c.shutdownComplete)
	logging.Info().Msg("Event stream shutdown complete")
}

// markStopped flips the running flag, reporting whether this call did
// the flip.
func (c *StreamComponents) markStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.running = false
	return true
}

// teardown releases components in dependency order: router first so the
// ingest handler stops pulling, then subscriber, publisher, connection,
// and the embedded server last. Fields are cleared as they close so a
// failed InitNATS and a later Shutdown never double-close.
func (c *StreamComponents) teardown(ctx context.Context) {
	if c.monitorStop != nil {
		close(c.monitorStop)
		c.monitorStop = nil
	}
	if c.router != nil {
		if err := c.router.Close(); err != nil {
			logging.Error().Err(err).Msg("Router close failed")
		}
		c.router = nil
	}
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Subscriber close failed")
		}
		c.eventLog.SubscriptionStopped(c.eventsSubject)
		c.subscriber = nil
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Publisher close failed")
		}
		c.publisher = nil
	}
	if c.natsConn != nil {
		c.natsConn.Close()
		c.natsConn = nil
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Embedded server shutdown failed")
		}
		c.server = nil
	}
}

// IsRunning reports whether the event stream components are active.
func (c *StreamComponents) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	return running
}
