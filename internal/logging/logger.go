// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package logging provides the centralized zerolog-based logger for
// Knockwatch. See doc.go for usage conventions.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	Level     string    // minimum level: trace, debug, info, warn, error, fatal, panic
	Format    string    // "json" or "console"; console is the default because the CLI is the primary surface
	Output    io.Writer // destination, os.Stderr when nil
	Timestamp bool      // stamp every line
	Caller    bool      // include caller file and line
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: os.Stderr, Timestamp: true}
}

var (
	mu   sync.RWMutex
	root zerolog.Logger
)

//nolint:gochecknoinits // packages log during their own setup, before main reaches Init()
func init() {
	configure(DefaultConfig())
}

// Init initializes the global logger with the given configuration.
// This should be called early in application startup, typically from main().
// It is safe to call multiple times; subsequent calls reconfigure the logger.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	configure(cfg)
}

// configure rebuilds the global logger (must be called with mu held).
func configure(cfg Config) {
	zerolog.SetGlobalLevel(levelFrom(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	with := zerolog.New(writerFor(cfg)).With()
	if cfg.Timestamp {
		with = with.Timestamp()
	}
	if cfg.Caller {
		with = with.Caller()
	}
	root = with.Logger()
}

// writerFor selects the output writer. Everything except explicit json
// goes through the console writer; detections share stdout, so logs
// stay human-readable on stderr by default.
func writerFor(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "json" {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}
}

// levelFrom converts a string level to zerolog.Level. Unknown or empty
// strings fall back to info rather than failing startup.
func levelFrom(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// current snapshots the global logger under the read lock. zerolog
// loggers are values, so the caller gets a consistent copy even if
// Init runs concurrently.
func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Logger returns the global logger instance.
// Use this to access the underlying zerolog.Logger directly.
func Logger() zerolog.Logger { return current() }

// SetLogger replaces the global logger instance.
// This is useful for testing or specialized configurations.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

// With creates a child logger context with additional fields.
//
//	captureLogger := logging.With().Str("component", "capture").Logger()
//	captureLogger.Info().Msg("capture started")
func With() zerolog.Context { return current().With() }

// The level starters below bind the snapshot to a local first: the
// zerolog event methods have pointer receivers, which need an
// addressable logger.

// Trace starts a new message with trace level.
func Trace() *zerolog.Event {
	l := current()
	return l.Trace()
}

// Debug starts a new message with debug level.
//
//	logging.Debug().Str("source", src).Msg("window pruned")
func Debug() *zerolog.Event {
	l := current()
	return l.Debug()
}

// Info starts a new message with info level.
//
//	logging.Info().Msg("engine starting")
func Info() *zerolog.Event {
	l := current()
	return l.Info()
}

// Warn starts a new message with warning level.
//
//	logging.Warn().Err(err).Msg("dropping invalid event")
func Warn() *zerolog.Event {
	l := current()
	return l.Warn()
}

// Error starts a new message with error level.
//
//	logging.Error().Err(err).Str("notifier", name).Msg("delivery failed")
func Error() *zerolog.Event {
	l := current()
	return l.Error()
}

// Fatal starts a new message with fatal level. os.Exit(1) runs after
// the message is logged.
func Fatal() *zerolog.Event {
	l := current()
	return l.Fatal()
}

// Err starts a new error-level message with the error attached,
// equivalent to Error().Err(err).
func Err(err error) *zerolog.Event {
	l := current()
	return l.Err(err)
}

// NewTestLogger creates a logger that writes to the provided writer,
// used by tests to capture output.
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
