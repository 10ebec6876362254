// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the engine lifecycle.
var (
	// ErrEngineStopped is returned by Ingest when the engine is not in
	// the running state. It is terminal for the caller: no further
	// events will be accepted on this engine instance.
	ErrEngineStopped = errors.New("engine is not accepting events")

	// ErrAlreadyStarted is returned by Start when the engine has left
	// the init state.
	ErrAlreadyStarted = errors.New("engine already started")
)

// ConfigError reports an invalid engine or pattern configuration.
// Configuration errors are fatal at startup.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Field + ": " + e.Message
}

// InvalidEventError reports an event that failed normalization. The
// event is dropped and counted; it never reaches any source window.
type InvalidEventError struct {
	Field   string
	Message string
}

func (e *InvalidEventError) Error() string {
	return "invalid event: " + e.Field + ": " + e.Message
}

// OverflowError reports that the ingestion queue stayed full for the
// configured wait. The condition is recoverable; callers may retry.
type OverflowError struct {
	Capacity int
	Waited   time.Duration
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("ingestion queue full (capacity %d) after %s", e.Capacity, e.Waited)
}

// IsInvalidEvent reports whether err is an InvalidEventError.
func IsInvalidEvent(err error) bool {
	var ie *InvalidEventError
	return errors.As(err, &ie)
}

// IsOverflow reports whether err is an OverflowError.
func IsOverflow(err error) bool {
	var oe *OverflowError
	return errors.As(err, &oe)
}
