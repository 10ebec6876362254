// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import (
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// run pushes one call through the breaker and returns its error.
func run(cb *gobreaker.CircuitBreaker[struct{}], err error) error {
	_, execErr := cb.Execute(func() (struct{}, error) { return struct{}{}, err })
	return execErr
}

func TestNewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("nats-publisher"))

	if cb == nil {
		t.Fatal("NewCircuitBreaker returned nil")
	}
	if got := cb.Name(); got != "nats-publisher" {
		t.Errorf("Name() = %q, want %q", got, "nats-publisher")
	}
	if got := cb.State(); got != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestCircuitBreakerPropagatesErrors(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("passthrough"))

	if err := run(cb, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	publishErr := errors.New("nats: timeout")
	if err := run(cb, publishErr); !errors.Is(err, publishErr) {
		t.Errorf("Execute() error = %v, want %v", err, publishErr)
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "threshold",
		MaxRequests:      1,
		Interval:         time.Second,
		Timeout:          time.Second,
		FailureThreshold: 2,
	})

	failure := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		if err := run(cb, failure); !errors.Is(err, failure) {
			t.Fatalf("failure %d: error = %v", i+1, err)
		}
	}

	// The threshold is reached, so the next call is rejected without
	// invoking the operation.
	invoked := false
	_, err := cb.Execute(func() (struct{}, error) {
		invoked = true
		return struct{}{}, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Execute() error = %v, want ErrOpenState", err)
	}
	if invoked {
		t.Error("operation ran while the breaker was open")
	}
	if got := cb.State(); got != gobreaker.StateOpen {
		t.Errorf("State() = %v, want open", got)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "recovery",
		MaxRequests:      1,
		Interval:         100 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
		FailureThreshold: 1,
	})

	if err := run(cb, errors.New("broker down")); err == nil {
		t.Fatal("expected the seeded failure to propagate")
	}
	if err := run(cb, nil); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("breaker should be open, got %v", err)
	}

	// After the open timeout one probe is allowed; success closes the
	// breaker again.
	time.Sleep(150 * time.Millisecond)

	if err := run(cb, nil); err != nil {
		t.Fatalf("probe after timeout failed: %v", err)
	}
	if got := cb.State(); got != gobreaker.StateClosed {
		t.Errorf("State() = %v after recovery, want closed", got)
	}
}
