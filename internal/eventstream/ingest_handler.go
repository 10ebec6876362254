// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// EventIngester is the slice of the detection engine the handler needs.
// The abstraction keeps the handler testable without a running engine.
type EventIngester interface {
	// Ingest validates and enqueues a connection event. It returns
	// knock.InvalidEventError for malformed events, knock.OverflowError
	// under sustained backpressure, and knock.ErrEngineStopped outside
	// the running state.
	Ingest(ev knock.ConnectionEvent) error
}

// IngestHandler feeds raw connection events from the stream into the
// detection engine. It is registered with the Router, whose middleware
// stack supplies panic recovery, retry with backoff, and poison queue
// routing.
//
// Ack/nack policy, expressed through the returned error:
//   - parse failures ack; a malformed payload never becomes valid on
//     redelivery
//   - invalid events ack; the engine counted and dropped them
//   - queue overflow nacks; backpressure is transient and redelivery
//     after the Router's backoff usually succeeds
//   - engine stopped nacks; the supervisor restarts the engine and the
//     message redelivers once it is running again
type IngestHandler struct {
	engine   EventIngester
	codec    *Serializer
	eventLog *logging.EventLog

	received      atomic.Int64
	processed     atomic.Int64
	parseFailures atomic.Int64
	invalidEvents atomic.Int64
	overflows     atomic.Int64
	ingestErrors  atomic.Int64
	lastEventNano atomic.Int64 // zero until the first message
}

// NewIngestHandler creates a handler that forwards stream events to the
// given engine.
func NewIngestHandler(engine EventIngester) (*IngestHandler, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	return &IngestHandler{
		engine:   engine,
		codec:    NewSerializer(),
		eventLog: logging.NewEventLog(),
	}, nil
}

// Handle processes a single raw event message. This is the function
// passed to Router.AddConsumerHandler.
func (h *IngestHandler) Handle(msg *message.Message) error {
	start := time.Now()
	h.received.Add(1)
	h.lastEventNano.Store(start.UnixNano())
	metrics.RecordNATSConsume()

	ctx := context.Background()
	if msgCtx := msg.Context(); msgCtx != nil {
		ctx = msgCtx
	}

	ev, err := h.codec.Unmarshal(msg.Payload)
	if err != nil {
		h.parseFailures.Add(1)
		metrics.RecordNATSParseFailed()
		h.eventLog.ErrorContext(ctx, "dropping malformed event message",
			"message_uuid", msg.UUID,
			"error", err.Error(),
		)
		return nil
	}

	h.eventLog.EventReceived(ctx, ev.SourceIdentity, ev.DestinationPort)

	if err := h.engine.Ingest(ev); err != nil {
		switch {
		case knock.IsInvalidEvent(err):
			// Already counted and logged by the engine.
			h.invalidEvents.Add(1)
			return nil
		case knock.IsOverflow(err):
			h.overflows.Add(1)
			h.eventLog.EventFailed(ctx, ev.SourceIdentity, err)
			return err
		default:
			h.ingestErrors.Add(1)
			h.eventLog.EventFailed(ctx, ev.SourceIdentity, err)
			return err
		}
	}

	h.processed.Add(1)
	metrics.RecordNATSProcessed()
	metrics.RecordNATSProcessingDuration(time.Since(start))
	return nil
}

// Stats returns a snapshot of handler counters.
func (h *IngestHandler) Stats() IngestHandlerStats {
	s := IngestHandlerStats{
		Received:      h.received.Load(),
		Processed:     h.processed.Load(),
		ParseFailures: h.parseFailures.Load(),
		InvalidEvents: h.invalidEvents.Load(),
		Overflows:     h.overflows.Load(),
		IngestErrors:  h.ingestErrors.Load(),
	}
	if nano := h.lastEventNano.Load(); nano != 0 {
		s.LastEvent = time.Unix(0, nano)
	}
	return s
}

// IngestHandlerStats holds runtime statistics.
type IngestHandlerStats struct {
	Received      int64
	Processed     int64
	ParseFailures int64
	InvalidEvents int64
	Overflows     int64
	IngestErrors  int64
	LastEvent     time.Time
}
