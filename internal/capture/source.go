// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package capture produces connection events for the detection engine.
//
// Two sources are provided: ReplaySource reads JSONL events from a file
// or stdin, and PcapSource captures TCP SYN packets from a network
// interface. PcapSource requires the 'pcap' build tag and libpcap;
// without the tag a stub is compiled that reports the missing support.
//
// The engine does not care where events come from. Anything that can
// produce (source identity, destination port, timestamp) triples can
// implement Source and feed the engine.
package capture

import (
	"context"
	"errors"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Source produces connection events until its input is exhausted or the
// context is cancelled. Each event is delivered through emit; a non-nil
// error from emit stops the source and is returned from Run.
type Source interface {
	// Run blocks, delivering events until the input ends or ctx is done.
	Run(ctx context.Context, emit func(knock.ConnectionEvent) error) error

	// String identifies the source in logs, e.g. "pcap(eth0)".
	String() string
}

// PcapConfig holds live capture settings.
type PcapConfig struct {
	// Interface is the network interface to capture on (e.g. "eth0").
	Interface string

	// BPF further restricts capture beyond the built-in SYN-only
	// filter, e.g. "dst portrange 1-10000". Optional.
	BPF string

	// SnapLen is the capture snapshot length in bytes. Headers are all
	// the detector needs, but a full snaplen keeps pcap defaults.
	SnapLen int

	// Promiscuous enables promiscuous mode on the interface.
	Promiscuous bool
}

// ErrPcapNotCompiled is returned when live capture is requested from a
// binary built without the 'pcap' tag.
var ErrPcapNotCompiled = errors.New("pcap support not compiled (build with -tags pcap)")
