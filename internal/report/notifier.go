// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package report

import (
	"context"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// Notifier adapts a Renderer to the engine's notifier fan-out so
// detections print as they fire. Render failures are returned to the
// dispatcher, which logs them; a broken pipe on stdout should not take
// the engine down.
type Notifier struct {
	renderer Renderer
}

// NewNotifier wraps a renderer for registration with the engine.
func NewNotifier(r Renderer) *Notifier {
	return &Notifier{renderer: r}
}

// Send renders one detection.
func (n *Notifier) Send(_ context.Context, d *knock.Detection) error {
	return n.renderer.Detection(*d)
}

// Name identifies this notifier in logs.
func (n *Notifier) Name() string {
	return "terminal"
}

// Enabled always reports true; the CLI only registers the notifier
// when terminal output is wanted.
func (n *Notifier) Enabled() bool {
	return true
}
