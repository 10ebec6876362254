// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behaviour for every supervisor in the tree.
// Zero fields resolve to suture's stock values.
type TreeConfig struct {
	FailureThreshold float64       // failures tolerated before backing off
	FailureDecay     float64       // seconds over which old failures decay
	FailureBackoff   time.Duration // pause after the threshold is crossed
	ShutdownTimeout  time.Duration // grace given to services during shutdown
}

// DefaultTreeConfig returns the stock suture restart parameters: five
// failures decaying over thirty seconds, fifteen seconds of backoff and
// ten seconds of shutdown grace.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{}.withDefaults()
}

// withDefaults resolves zero fields to the stock suture values.
func (c TreeConfig) withDefaults() TreeConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = 30
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// spec builds a suture.Spec from the config. The hook is only set on
// the root; child supervisors inherit it when added.
func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree arranges the application's services under a root
// supervisor with one child supervisor per failure domain:
//
//   - capture: packet sources and stream consumers feeding the engine
//   - detection: the knock engine with its workers and notifier dispatch
//   - api: HTTP server and WebSocket hub
//
// Isolating the layers keeps a flapping pcap handle from restarting the
// engine with its accumulated window state, and keeps an API crash from
// interrupting capture.
type SupervisorTree struct {
	config TreeConfig
	logger *slog.Logger

	root *suture.Supervisor

	// Child supervisors, one per failure domain.
	capture   *suture.Supervisor
	detection *suture.Supervisor
	api       *suture.Supervisor
}

// NewSupervisorTree builds the three-layer tree described on
// SupervisorTree. Supervisor events are logged through logger via
// sutureslog.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	// sutureslog exposes the hook through (&Handler{...}).MustHook();
	// there is no package-level constructor. MustHook has a pointer
	// receiver, so the Handler literal needs its address taken.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &SupervisorTree{config: config, logger: logger}
	t.root = suture.New("knockwatch", config.spec(hook))
	t.capture = suture.New("capture-layer", config.spec(nil))
	t.detection = suture.New("detection-layer", config.spec(nil))
	t.api = suture.New("api-layer", config.spec(nil))

	t.root.Add(t.capture)
	t.root.Add(t.detection)
	t.root.Add(t.api)

	return t, nil
}

// Root exposes the underlying root supervisor for callers that need
// suture directly.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddCaptureService registers svc with the capture layer. Packet
// sources (live pcap, replay readers, stream consumers) belong here so
// a dying handle restarts without touching the engine.
func (t *SupervisorTree) AddCaptureService(svc suture.Service) suture.ServiceToken {
	return t.capture.Add(svc)
}

// AddDetectionService registers svc with the detection layer, home of
// the knock engine service.
func (t *SupervisorTree) AddDetectionService(svc suture.Service) suture.ServiceToken {
	return t.detection.Add(svc)
}

// AddAPIService registers svc with the api layer alongside the HTTP
// server and the WebSocket hub.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// RemoveCaptureService detaches a capture-layer service by the token
// AddCaptureService returned. A drained replay source is removed this
// way so the supervisor stops restarting it.
func (t *SupervisorTree) RemoveCaptureService(token suture.ServiceToken) error {
	return t.capture.Remove(token)
}

// Serve runs the tree and blocks the caller until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree on its own goroutine. The returned
// channel yields the terminal error once the tree stops and is then
// closed.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists the services still running after
// shutdown gave up waiting on them.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
