// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler implements slog.Handler on top of zerolog. It exists
// so libraries that speak slog (sutureslog in particular) emit through
// the same pipeline as the rest of Knockwatch. Groups flatten into
// dot-joined key prefixes.
type zerologHandler struct {
	logger zerolog.Logger

	// attrs holds pre-bound attributes; their keys already carry the
	// group path that was open when they were added.
	attrs []slog.Attr

	// prefix is the dot-joined path of open groups, empty at top level.
	prefix string
}

// NewSlogLogger creates an *slog.Logger backed by the global zerolog
// logger. Use this for slog-only consumers like the suture supervision
// tree:
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
func NewSlogLogger() *slog.Logger {
	return slog.New(&zerologHandler{logger: Logger()})
}

// Enabled reports whether records at the given level would be written.
func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= levelToZerolog(level)
}

// Handle writes the record through zerolog.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *zerologHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(levelToZerolog(record.Level))

	for _, attr := range h.attrs {
		event = writeAttr(event, attr, "")
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = writeAttr(event, attr, h.prefix)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler with the given attributes bound.
func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	for _, attr := range attrs {
		merged = append(merged, slog.Attr{Key: h.prefix + attr.Key, Value: attr.Value})
	}

	return &zerologHandler{logger: h.logger, attrs: merged, prefix: h.prefix}
}

// WithGroup returns a handler that prefixes subsequent keys with the
// group name.
func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &zerologHandler{logger: h.logger, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// writeAttr adds one slog attribute to a zerolog event, flattening
// groups into dot-joined keys. LogValuer attributes are resolved first.
func writeAttr(event *zerolog.Event, attr slog.Attr, prefix string) *zerolog.Event {
	attr.Value = attr.Value.Resolve()
	key := prefix + attr.Key

	if attr.Value.Kind() == slog.KindGroup {
		for _, member := range attr.Value.Group() {
			event = writeAttr(event, member, key+".")
		}
		return event
	}

	switch v := attr.Value; v.Kind() {
	case slog.KindBool:
		return event.Bool(key, v.Bool())
	case slog.KindDuration:
		return event.Dur(key, v.Duration())
	case slog.KindFloat64:
		return event.Float64(key, v.Float64())
	case slog.KindInt64:
		return event.Int64(key, v.Int64())
	case slog.KindString:
		return event.Str(key, v.String())
	case slog.KindTime:
		return event.Time(key, v.Time())
	case slog.KindUint64:
		return event.Uint64(key, v.Uint64())
	default:
		return event.Interface(key, v.Any())
	}
}

// levelToZerolog maps slog levels onto zerolog levels. slog levels are
// open-ended integers, so the mapping buckets by range.
func levelToZerolog(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	case level >= slog.LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}
