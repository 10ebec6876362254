// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build pcap

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// synOnlyFilter matches the opening packet of a TCP handshake. Knock
// sequences are connection attempts; established traffic is noise here.
const synOnlyFilter = "tcp[tcpflags] & tcp-syn != 0 and tcp[tcpflags] & tcp-ack == 0"

// PcapSource captures TCP SYN packets from a network interface and
// emits one connection event per packet. Requires libpcap and usually
// CAP_NET_RAW or root.
type PcapSource struct {
	cfg PcapConfig
}

// NewPcapSource validates the configuration and returns a live capture
// source. The interface is opened when Run is called, not here, so a
// supervisor restart reopens it cleanly.
func NewPcapSource(cfg PcapConfig) (*PcapSource, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("capture interface is required")
	}
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 65535
	}
	return &PcapSource{cfg: cfg}, nil
}

// String identifies the source in logs.
func (s *PcapSource) String() string {
	return "pcap(" + s.cfg.Interface + ")"
}

// filter combines the SYN-only base filter with the configured
// refinement, if any.
func (s *PcapSource) filter() string {
	if s.cfg.BPF == "" {
		return synOnlyFilter
	}
	return "(" + synOnlyFilter + ") and (" + s.cfg.BPF + ")"
}

// Run opens the interface and emits events until the context is
// cancelled or the capture handle fails.
func (s *PcapSource) Run(ctx context.Context, emit func(knock.ConnectionEvent) error) error {
	handle, err := pcap.OpenLive(s.cfg.Interface, int32(s.cfg.SnapLen), s.cfg.Promiscuous, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("open interface %s: %w", s.cfg.Interface, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter(s.filter()); err != nil {
		return fmt.Errorf("set BPF filter: %w", err)
	}

	logging.Info().
		Str("interface", s.cfg.Interface).
		Str("filter", s.filter()).
		Bool("promiscuous", s.cfg.Promiscuous).
		Msg("Packet capture started")

	packets := gopacket.NewPacketSource(handle, handle.LinkType()).Packets()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-packets:
			if !ok {
				return fmt.Errorf("capture on %s ended unexpectedly", s.cfg.Interface)
			}
			ev, ok := decodeSYN(packet)
			if !ok {
				metrics.RecordCaptureParseFailure("pcap")
				continue
			}
			metrics.RecordCaptureEvent("pcap")
			if err := emit(ev); err != nil {
				return fmt.Errorf("emit captured event: %w", err)
			}
		}
	}
}

// decodeSYN extracts (source IP, destination port, timestamp) from a
// captured packet. The BPF filter keeps non-SYN traffic out; anything
// that still fails to decode is counted as a parse failure.
func decodeSYN(packet gopacket.Packet) (knock.ConnectionEvent, bool) {
	var src string
	if ip4, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		src = ip4.SrcIP.String()
	} else if ip6, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		src = ip6.SrcIP.String()
	} else {
		return knock.ConnectionEvent{}, false
	}

	tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok || !tcp.SYN || tcp.ACK {
		return knock.ConnectionEvent{}, false
	}

	ts := packet.Metadata().Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return knock.ConnectionEvent{
		SourceIdentity:  src,
		DestinationPort: int(tcp.DstPort),
		Timestamp:       ts.UnixMilli(),
	}, true
}
