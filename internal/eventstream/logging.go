// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/tomtom215/knockwatch/internal/logging"
)

// watermillLogger adapts zerolog to watermill.LoggerAdapter so router
// and transport internals log through the process-wide zerolog stack
// instead of Watermill's own stdlib logger.
type watermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger returns a watermill.LoggerAdapter backed by the
// global zerolog logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{
		logger: logging.With().Str("component", "watermill").Logger(),
	}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	withFields(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	withFields(l.logger.Info(), fields).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	withFields(l.logger.Debug(), fields).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	withFields(l.logger.Trace(), fields).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logCtx := l.logger.With()
	for k, v := range fields {
		logCtx = logCtx.Interface(k, v)
	}
	return &watermillLogger{logger: logCtx.Logger()}
}

func withFields(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
