// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package eventstream

import (
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/knockwatch/internal/metrics"
)

// NewCircuitBreaker builds a gobreaker v2 breaker from the config. The
// type parameter is struct{} because publish operations carry no
// result; only the error matters.
//
// The breaker opens after FailureThreshold consecutive failures, and
// every state transition updates the metrics gauge so dashboards can
// track when the NATS publish path is shedding load.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	trip := func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= cfg.FailureThreshold }

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: trip,
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, to.String())
		},
	})
}
