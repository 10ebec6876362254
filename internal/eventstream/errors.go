// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import "errors"

// ErrNATSNotEnabled is returned when NATS features are used without the nats build tag.
var ErrNATSNotEnabled = errors.New("NATS event streaming not enabled (build with -tags nats)")

// ErrNilEngine is returned when an ingest handler is created without an engine.
var ErrNilEngine = errors.New("detection engine required")

// ErrPublisherClosed is returned when publishing through a closed publisher.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")
