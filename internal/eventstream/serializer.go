// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Serializer handles wire encoding for NATS messages. Events are
// normalized before publishing so malformed payloads never enter the
// stream and zero timestamps get stamped at the sensor, closest to
// capture time.
type Serializer struct {
	normalizer *knock.Normalizer
}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{normalizer: knock.NewNormalizer()}
}

// Marshal normalizes a connection event and encodes it to JSON.
func (s *Serializer) Marshal(ev knock.ConnectionEvent) ([]byte, error) {
	normalized, err := s.normalizer.Normalize(ev)
	if err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return data, nil
}

// Unmarshal decodes JSON bytes to a connection event. The event is not
// normalized here; the engine normalizes again at ingest.
func (s *Serializer) Unmarshal(data []byte) (knock.ConnectionEvent, error) {
	var ev knock.ConnectionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return knock.ConnectionEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}

	return ev, nil
}

// MarshalDetection encodes a detection to JSON. The severity must be
// one of the known levels so the subject suffix stays well-formed.
func (s *Serializer) MarshalDetection(d knock.Detection) ([]byte, error) {
	if d.SourceIdentity == "" {
		return nil, fmt.Errorf("validate detection: source identity required")
	}
	if !d.Severity.Valid() {
		return nil, fmt.Errorf("validate detection: unknown severity %q", d.Severity)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal detection: %w", err)
	}

	return data, nil
}

// UnmarshalDetection decodes JSON bytes to a detection.
func (s *Serializer) UnmarshalDetection(data []byte) (knock.Detection, error) {
	var d knock.Detection
	if err := json.Unmarshal(data, &d); err != nil {
		return knock.Detection{}, fmt.Errorf("unmarshal detection: %w", err)
	}

	return d, nil
}

// SerializeEvent is a convenience function that normalizes and marshals
// an event.
func SerializeEvent(ev knock.ConnectionEvent) ([]byte, error) {
	return NewSerializer().Marshal(ev)
}

// DeserializeEvent is a convenience function that unmarshals JSON to an
// event.
func DeserializeEvent(data []byte) (knock.ConnectionEvent, error) {
	return NewSerializer().Unmarshal(data)
}
