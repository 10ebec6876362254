// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package logging provides centralized zerolog-based structured logging
// for Knockwatch.
//
// Every component logs through this package: the detection engine, the
// capture sources, the HTTP API, and the event stream. Console output
// is the default because the CLI is the primary surface; the -j flag
// (or format "json") switches to machine-parseable JSON for service
// deployments.
//
// # Quick Start
//
//	import "github.com/tomtom215/knockwatch/internal/logging"
//
//	// Initialize at application startup
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Log messages with structured fields
//	logging.Info().Str("source", "10.0.0.5").Int("port", 7000).Msg("knock recorded")
//	logging.Error().Err(err).Msg("capture failed")
//
//	// Context-aware logging in request handlers
//	logging.Ctx(ctx).Info().Msg("processing request")
//
// # Field Conventions
//
// Detection pipeline logs use a consistent vocabulary so detections can
// be correlated across components:
//
//	source     - source identity (IP or opaque sensor ID)
//	port       - destination port of a connection event
//	pattern    - pattern ID of a detection
//	severity   - detection severity (CRITICAL .. INFO)
//	component  - emitting component (engine, capture, api, eventstream)
//
// # Log Levels
//
// Supported log levels (from most to least verbose):
//
//	trace  - Very detailed diagnostic information
//	debug  - Per-event pipeline diagnostics (window pruning, suppression)
//	info   - Lifecycle events and detections (default)
//	warn   - Dropped events, rate limiting, queue pressure
//	error  - Delivery and capture failures requiring attention
//	fatal  - Fatal errors that terminate the program
//
// # Structured Logging Best Practices
//
// A log chain only fires once it is terminated with .Msg() or .Send();
// a chain left open is silently dropped:
//
//	logging.Warn().Int("dropped", n).Msg("queue full") // emitted
//	logging.Warn().Int("dropped", n)                   // never emitted
//
// Prefer structured fields over formatted messages:
//
//	// structured, searchable
//	logging.Info().
//	    Str("pattern", detection.PatternID).
//	    Ints("ports", detection.Ports).
//	    Msg("pattern detected")
//
//	// opaque to log queries
//	logging.Info().Msgf("detected %s on %v", detection.PatternID, detection.Ports)
//
// # Component Loggers
//
// Create component-specific loggers with default fields:
//
//	captureLogger := logging.WithComponent("capture")
//	captureLogger.Info().Str("interface", "eth0").Msg("capture started")
//
// # slog Adapter
//
// The package provides an slog adapter for libraries that require
// slog.Logger, such as the suture supervision tree:
//
//	slogger := logging.NewSlogLogger()
//	handler := &sutureslog.Handler{Logger: slogger}
//
// # Thread Safety
//
// Every exported function is safe for concurrent use; reconfiguring
// the global logger takes the write side of an RWMutex, so in-flight
// log calls always see a consistent logger.
//
// # Testing
//
// Tests capture output by logging into a buffer:
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("window pruned")
//	// assert on buf.String()
package logging
