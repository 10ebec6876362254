// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"fmt"
	"strings"
	"time"
)

// Normalizer validates raw connection events before they reach any
// source window. Invalid events are rejected with InvalidEventError
// and must not disturb existing state.
type Normalizer struct {
	nowMillis func() int64
}

// NewNormalizer creates a normalizer using the wall clock for events
// that arrive without a timestamp.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}
}

// Normalize validates ev and returns the canonical form: the source
// identity is trimmed and a zero timestamp is stamped with the current
// time. A returned error is always an *InvalidEventError.
func (n *Normalizer) Normalize(ev ConnectionEvent) (ConnectionEvent, error) {
	ev.SourceIdentity = strings.TrimSpace(ev.SourceIdentity)
	if ev.SourceIdentity == "" {
		return ConnectionEvent{}, &InvalidEventError{
			Field:   "source_identity",
			Message: "must not be empty",
		}
	}

	if ev.DestinationPort < MinPort || ev.DestinationPort > MaxPort {
		return ConnectionEvent{}, &InvalidEventError{
			Field:   "destination_port",
			Message: fmt.Sprintf("out of range %d-%d (got %d)", MinPort, MaxPort, ev.DestinationPort),
		}
	}

	switch {
	case ev.Timestamp < 0:
		return ConnectionEvent{}, &InvalidEventError{
			Field:   "timestamp",
			Message: fmt.Sprintf("must not be negative (got %d)", ev.Timestamp),
		}
	case ev.Timestamp == 0:
		ev.Timestamp = n.nowMillis()
	}

	return ev, nil
}
