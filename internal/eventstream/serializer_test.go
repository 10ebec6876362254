// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/knockwatch/internal/knock"
)

func TestSerializerMarshalWireFormat(t *testing.T) {
	t.Parallel()
	s := NewSerializer()

	data, err := s.Marshal(knock.ConnectionEvent{
		SourceIdentity:  "203.0.113.7",
		DestinationPort: 7000,
		Timestamp:       1700000000000,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wire struct {
		Source string `json:"source_identity"`
		Port   int    `json:"destination_port"`
		TS     int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if wire.Source != "203.0.113.7" || wire.Port != 7000 || wire.TS != 1700000000000 {
		t.Errorf("wire payload = %+v, want event fields under their snake_case keys", wire)
	}
}

func TestSerializerMarshalNormalizes(t *testing.T) {
	t.Parallel()
	s := NewSerializer()

	data, err := s.Marshal(knock.ConnectionEvent{
		SourceIdentity:  "  sensor-7  ",
		DestinationPort: 22,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	ev, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.SourceIdentity != "sensor-7" {
		t.Errorf("SourceIdentity = %q, want whitespace trimmed before publish", ev.SourceIdentity)
	}
	if ev.Timestamp <= 0 {
		t.Errorf("Timestamp = %d, want zero timestamps stamped before publish", ev.Timestamp)
	}
}

func TestSerializerMarshalRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   knock.ConnectionEvent
	}{
		{"empty source identity", knock.ConnectionEvent{DestinationPort: 7000, Timestamp: 1700000000000}},
		{"negative port", knock.ConnectionEvent{SourceIdentity: "203.0.113.7", DestinationPort: -1, Timestamp: 1700000000000}},
		{"port above range", knock.ConnectionEvent{SourceIdentity: "203.0.113.7", DestinationPort: 70000, Timestamp: 1700000000000}},
	}

	s := NewSerializer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Marshal(tt.ev); err == nil {
				t.Error("Marshal accepted an event that must never reach the stream")
			}
		})
	}
}

func TestSerializerMarshalAcceptsPortZero(t *testing.T) {
	t.Parallel()
	s := NewSerializer()

	// Port 0 is inside the valid 0-65535 range and must survive the
	// round trip to the stream.
	data, err := s.Marshal(knock.ConnectionEvent{
		SourceIdentity:  "203.0.113.7",
		DestinationPort: 0,
		Timestamp:       1700000000000,
	})
	if err != nil {
		t.Fatalf("Marshal rejected port 0: %v", err)
	}

	ev, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.DestinationPort != 0 {
		t.Errorf("DestinationPort = %d, want 0", ev.DestinationPort)
	}
}

func TestSerializerUnmarshal(t *testing.T) {
	t.Parallel()
	s := NewSerializer()

	raw := []byte(`{"source_identity":"203.0.113.7","destination_port":62201,"timestamp":1700000000000}`)
	ev, err := s.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := knock.ConnectionEvent{
		SourceIdentity:  "203.0.113.7",
		DestinationPort: 62201,
		Timestamp:       1700000000000,
	}
	if ev != want {
		t.Errorf("Unmarshal = %+v, want %+v", ev, want)
	}

	if _, err := s.Unmarshal([]byte(`{truncated`)); err == nil {
		t.Error("Unmarshal decoded malformed JSON without error")
	}
}

func TestSerializerDetectionRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewSerializer()

	d := knock.Detection{
		SourceIdentity: "203.0.113.7",
		PatternID:      "ssh_unlock",
		Description:    "Sequential knock on SSH unlock ports",
		Severity:       knock.SeverityHigh,
		Ports:          []int{7000, 8000, 9000},
		DetectedAt:     1700000000000,
	}

	data, err := s.MarshalDetection(d)
	if err != nil {
		t.Fatalf("MarshalDetection: %v", err)
	}
	got, err := s.UnmarshalDetection(data)
	if err != nil {
		t.Fatalf("UnmarshalDetection: %v", err)
	}

	if got.PatternID != d.PatternID || got.Severity != d.Severity || got.SourceIdentity != d.SourceIdentity {
		t.Errorf("decoded detection = %+v, want %+v", got, d)
	}
	if len(got.Ports) != 3 {
		t.Errorf("Ports = %v, want %v", got.Ports, d.Ports)
	}
}

func TestSerializerDetectionRejects(t *testing.T) {
	t.Parallel()
	s := NewSerializer()

	if _, err := s.MarshalDetection(knock.Detection{
		PatternID: "ssh_unlock",
		Severity:  knock.SeverityHigh,
	}); err == nil {
		t.Error("MarshalDetection accepted a detection with no source identity")
	}

	if _, err := s.MarshalDetection(knock.Detection{
		SourceIdentity: "203.0.113.7",
		PatternID:      "ssh_unlock",
		Severity:       knock.Severity("URGENT"),
	}); err == nil {
		t.Error("MarshalDetection accepted an unknown severity")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	t.Parallel()

	ev := knock.ConnectionEvent{
		SourceIdentity:  "2001:db8::42",
		DestinationPort: 9000,
		Timestamp:       1700000000123,
	}

	data, err := SerializeEvent(ev)
	if err != nil {
		t.Fatalf("SerializeEvent failed: %v", err)
	}

	got, err := DeserializeEvent(data)
	if err != nil {
		t.Fatalf("DeserializeEvent failed: %v", err)
	}

	if got != ev {
		t.Errorf("round trip = %+v, want %+v", got, ev)
	}
}
