// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// stubSource is a scripted capture.Source emitting a fixed event list.
type stubSource struct {
	events []knock.ConnectionEvent
	runErr error
	block  bool
	runs   atomic.Int32
}

func (s *stubSource) Run(ctx context.Context, emit func(knock.ConnectionEvent) error) error {
	s.runs.Add(1)
	for _, ev := range s.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.runErr
}

func (s *stubSource) String() string { return "stub" }

// stubSink records ingested events with optional per-call errors.
type stubSink struct {
	mu     sync.Mutex
	events []knock.ConnectionEvent
	errs   []error
	calls  int
}

func (s *stubSink) Ingest(ev knock.ConnectionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *stubSink) Events() []knock.ConnectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]knock.ConnectionEvent, len(s.events))
	copy(out, s.events)
	return out
}

func captureEvents(ports ...int) []knock.ConnectionEvent {
	evs := make([]knock.ConnectionEvent, len(ports))
	for i, p := range ports {
		evs[i] = knock.ConnectionEvent{
			SourceIdentity:  "203.0.113.5",
			DestinationPort: p,
			Timestamp:       1700000000000 + int64(i)*100,
		}
	}
	return evs
}

func TestCaptureServiceIsSutureService(t *testing.T) {
	var _ suture.Service = (*CaptureService)(nil)
}

func TestCaptureServiceName(t *testing.T) {
	svc := NewCaptureService(&stubSource{}, &stubSink{})
	if got := svc.String(); got != "capture-stub" {
		t.Errorf("String() = %q, want capture-stub", got)
	}
}

func TestCaptureServiceServe(t *testing.T) {
	t.Run("delivers events and retires on exhaustion", func(t *testing.T) {
		source := &stubSource{events: captureEvents(7000, 8000, 9000)}
		sink := &stubSink{}
		svc := NewCaptureService(source, sink)

		err := svc.Serve(context.Background())
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve = %v, want ErrDoNotRestart", err)
		}

		got := sink.Events()
		if len(got) != 3 {
			t.Fatalf("sink received %d events, want 3", len(got))
		}
		if got[0].DestinationPort != 7000 || got[2].DestinationPort != 9000 {
			t.Errorf("events out of order: %v", got)
		}

		select {
		case <-svc.Done():
		default:
			t.Error("Done should be closed once the source is exhausted")
		}
	})

	t.Run("invalid events do not stop the source", func(t *testing.T) {
		source := &stubSource{events: captureEvents(7000, 8000, 9000)}
		sink := &stubSink{errs: []error{
			nil,
			&knock.InvalidEventError{Field: "destination_port", Message: "out of range"},
			nil,
		}}

		err := NewCaptureService(source, sink).Serve(context.Background())
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve = %v, want ErrDoNotRestart", err)
		}
		if n := len(sink.Events()); n != 2 {
			t.Errorf("sink received %d events, want 2 with the invalid one skipped", n)
		}
	})

	t.Run("overflow does not stop the source", func(t *testing.T) {
		source := &stubSource{events: captureEvents(7000, 8000)}
		sink := &stubSink{errs: []error{
			&knock.OverflowError{Capacity: 1024, Waited: 10 * time.Millisecond},
			nil,
		}}

		err := NewCaptureService(source, sink).Serve(context.Background())
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve = %v, want ErrDoNotRestart", err)
		}
		if n := len(sink.Events()); n != 1 {
			t.Errorf("sink received %d events, want 1 with the overflowed one dropped", n)
		}
	})

	t.Run("fatal ingest error stops the source", func(t *testing.T) {
		source := &stubSource{events: captureEvents(7000, 8000)}
		sink := &stubSink{errs: []error{knock.ErrEngineStopped}}
		svc := NewCaptureService(source, sink)

		err := svc.Serve(context.Background())
		if !errors.Is(err, knock.ErrEngineStopped) {
			t.Errorf("Serve = %v, want wrapped ErrEngineStopped", err)
		}

		select {
		case <-svc.Done():
			t.Error("Done should stay open after a fatal error")
		default:
		}
	})

	t.Run("cancellation wins over exhaustion", func(t *testing.T) {
		svc := NewCaptureService(&stubSource{block: true}, &stubSink{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		cancel()
		if err := waitServe(t, done); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}

		select {
		case <-svc.Done():
			t.Error("Done should stay open on cancellation")
		default:
		}
	})

	t.Run("source crash propagates for restart", func(t *testing.T) {
		sourceErr := errors.New("pcap handle died")
		source := &stubSource{runErr: sourceErr}

		err := NewCaptureService(source, &stubSink{}).Serve(context.Background())
		if !errors.Is(err, sourceErr) {
			t.Errorf("Serve = %v, want wrapped %v", err, sourceErr)
		}
	})
}

func TestCaptureServiceRestartsThenDrains(t *testing.T) {
	var attempts atomic.Int32
	svc := NewCaptureService(&flakySource{attempts: &attempts}, &stubSink{})

	stop := underSupervisor(t, svc)
	defer stop()

	select {
	case <-svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("source never drained after the restart")
	}
	if n := attempts.Load(); n < 2 {
		t.Errorf("source ran %d times, want at least 2", n)
	}
}

// flakySource fails its first run and drains cleanly on the second.
type flakySource struct {
	attempts *atomic.Int32
}

func (f *flakySource) Run(ctx context.Context, emit func(knock.ConnectionEvent) error) error {
	if f.attempts.Add(1) == 1 {
		return errors.New("transient source failure")
	}
	return emit(knock.ConnectionEvent{
		SourceIdentity:  "203.0.113.5",
		DestinationPort: 7000,
		Timestamp:       1700000000000,
	})
}

func (f *flakySource) String() string { return "flaky" }
