// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !pcap

package capture

import (
	"context"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// PcapSource is a stub for builds without libpcap.
type PcapSource struct{}

// NewPcapSource always fails for builds without pcap support. Replay
// and API ingestion remain available.
func NewPcapSource(_ PcapConfig) (*PcapSource, error) {
	return nil, ErrPcapNotCompiled
}

// String identifies the stub.
func (s *PcapSource) String() string { return "pcap(disabled)" }

// Run always returns ErrPcapNotCompiled.
func (s *PcapSource) Run(context.Context, func(knock.ConnectionEvent) error) error {
	return ErrPcapNotCompiled
}
