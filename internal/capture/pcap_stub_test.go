// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !pcap

package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/knockwatch/internal/knock"
)

func TestNewPcapSourceWithoutTag(t *testing.T) {
	_, err := NewPcapSource(PcapConfig{Interface: "eth0"})
	if !errors.Is(err, ErrPcapNotCompiled) {
		t.Errorf("error = %v, want ErrPcapNotCompiled", err)
	}
}

func TestPcapStubRun(t *testing.T) {
	var s PcapSource
	err := s.Run(context.Background(), func(ev knock.ConnectionEvent) error {
		t.Error("stub should not emit events")
		return nil
	})
	if !errors.Is(err, ErrPcapNotCompiled) {
		t.Errorf("error = %v, want ErrPcapNotCompiled", err)
	}
	if s.String() != "pcap(disabled)" {
		t.Errorf("String() = %q, want pcap(disabled)", s.String())
	}
}
