// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// EventLog provides specialized logging for the NATS event stream.
// Every entry carries component=eventstream plus the correlation ID
// from the message context when one is present.
type EventLog struct {
	logger zerolog.Logger
}

// NewEventLog creates a logger configured for event stream handlers.
func NewEventLog() *EventLog {
	return &EventLog{logger: WithComponent("eventstream")}
}

// emit writes one entry at the given level. kv holds alternating
// string keys and values; error values go through AnErr so they render
// as strings instead of empty JSON objects.
func (e *EventLog) emit(ctx context.Context, level zerolog.Level, msg string, kv ...interface{}) {
	event := e.logger.WithLevel(level)

	if id := CorrelationID(ctx); id != "" {
		event = event.Str("correlation_id", id)
	}

	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, isErr := kv[i+1].(error); isErr {
			event = event.AnErr(key, err)
		} else {
			event = event.Interface(key, kv[i+1])
		}
	}

	event.Msg(msg)
}

// ErrorContext logs an error message with correlation fields from ctx.
func (e *EventLog) ErrorContext(ctx context.Context, msg string, kv ...interface{}) {
	e.emit(ctx, zerolog.ErrorLevel, msg, kv...)
}

// EventReceived logs a raw connection event arriving off the stream.
// Debug level: this fires per event and would drown info logs at
// sensor-fleet rates.
func (e *EventLog) EventReceived(ctx context.Context, source string, port int) {
	e.emit(ctx, zerolog.DebugLevel, "event received", "source", source, "port", port)
}

// EventFailed logs a raw event that could not be processed.
func (e *EventLog) EventFailed(ctx context.Context, source string, err error) {
	e.emit(ctx, zerolog.ErrorLevel, "event processing failed", "source", source, "error", err)
}

// DetectionPublished logs a detection published to the stream.
func (e *EventLog) DetectionPublished(ctx context.Context, subject, patternID string) {
	e.emit(ctx, zerolog.InfoLevel, "detection published", "subject", subject, "pattern", patternID)
}

// MessagePoisoned logs a message diverted to the poison queue.
func (e *EventLog) MessagePoisoned(ctx context.Context, topic string, err error) {
	e.emit(ctx, zerolog.WarnLevel, "message sent to poison queue", "topic", topic, "error", err)
}

// SubscriptionStarted logs when a subscription is started.
func (e *EventLog) SubscriptionStarted(topic, queue string) {
	e.emit(context.Background(), zerolog.InfoLevel, "subscription started", "topic", topic, "queue", queue)
}

// SubscriptionStopped logs when a subscription is stopped.
func (e *EventLog) SubscriptionStopped(topic string) {
	e.emit(context.Background(), zerolog.InfoLevel, "subscription stopped", "topic", topic)
}

// RouterStarted logs when the Watermill router starts.
func (e *EventLog) RouterStarted() {
	e.emit(context.Background(), zerolog.InfoLevel, "router started")
}

// RouterStopped logs when the Watermill router stops.
func (e *EventLog) RouterStopped() {
	e.emit(context.Background(), zerolog.InfoLevel, "router stopped")
}
