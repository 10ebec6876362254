// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ctxKey is unexported so no other package can collide with our
// context values.
type ctxKey int

const (
	correlationIDKey ctxKey = iota
	requestIDKey
	loggerKey
)

// NewCorrelationID creates a fresh correlation ID. The first 8
// characters of a UUID are enough to follow one request through the
// logs without making every line unreadable.
func NewCorrelationID() string {
	return uuid.NewString()[:8]
}

// NewRequestID creates a fresh request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// WithCorrelationID stores cid in the context.
func WithCorrelationID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, correlationIDKey, cid)
}

// CorrelationID returns the context's correlation ID, or "" when none
// was stored.
func CorrelationID(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithRequestID stores rid in the context.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// RequestID returns the context's request ID, or "" when none was
// stored.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithLogger stores a pre-configured logger in the context, typically
// from middleware that has already bound request fields.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, falling back to the
// global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	l, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		return Logger()
	}
	return l
}

// Ctx returns a logger carrying the context's correlation fields.
// This is the recommended way to log inside request handlers.
//
//	logging.Ctx(ctx).Info().Msg("processing request")
func Ctx(ctx context.Context) *zerolog.Logger {
	builder := FromContext(ctx).With()

	if id := CorrelationID(ctx); id != "" {
		builder = builder.Str("correlation_id", id)
	}
	if id := RequestID(ctx); id != "" {
		builder = builder.Str("request_id", id)
	}

	logger := builder.Logger()
	return &logger
}

// WithComponent creates a child logger with a component field.
// Use this to create component-specific loggers.
//
//	captureLogger := logging.WithComponent("capture")
//	captureLogger.Info().Msg("capture started")
func WithComponent(name string) zerolog.Logger {
	return With().Str("component", name).Logger()
}
