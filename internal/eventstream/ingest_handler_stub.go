// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package eventstream

import (
	"time"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// EventIngester is the slice of the detection engine the handler needs.
// Stub for non-NATS builds.
type EventIngester interface {
	Ingest(ev knock.ConnectionEvent) error
}

// IngestHandler is a stub for non-NATS builds.
type IngestHandler struct{}

// NewIngestHandler returns an error when NATS is not compiled in.
func NewIngestHandler(engine EventIngester) (*IngestHandler, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	return nil, ErrNATSNotEnabled
}

// Handle is a stub that returns an error.
func (h *IngestHandler) Handle(_ interface{}) error {
	return ErrNATSNotEnabled
}

// Stats returns empty statistics.
func (h *IngestHandler) Stats() IngestHandlerStats {
	return IngestHandlerStats{}
}

// IngestHandlerStats holds runtime statistics.
type IngestHandlerStats struct {
	MessagesReceived  int64
	MessagesProcessed int64
	ParseErrors       int64
	InvalidEvents     int64
	Overflows         int64
	IngestErrors      int64
	LastMessageTime   time.Time
}
