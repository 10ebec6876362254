// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package main

import (
	"github.com/tomtom215/knockwatch/internal/supervisor"
)

// AddStreamToSupervisor does nothing without the nats tag. main.go can
// call it unconditionally; the components it receives are always nil
// here because the stub InitNATS never builds any.
func AddStreamToSupervisor(*supervisor.SupervisorTree, *StreamComponents) {}
