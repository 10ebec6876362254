// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

/*
Package supervisor builds and runs the Knockwatch suture v4 tree.

Knockwatch keeps detection state in memory, so the cost of a process
exit is high: every tracked source loses its window history. The
supervisor tree exists to turn component crashes into local restarts
instead. Services are grouped by failure domain:

	knockwatch (root)
	├── capture-layer
	│   ├── capture service (replay or live pcap source)
	│   └── event-stream (NATS ingest, build tag nats)
	├── detection-layer
	│   └── knock-engine (workers, dispatcher, sweeper)
	└── api-layer
	    ├── websocket-hub
	    └── http-server

A pcap handle that dies is reopened without touching the engine's
accumulated windows, an API panic never interrupts capture, and each
layer counts failures and backs off on its own.

# Restart semantics

Services implement suture.Service. What Serve returns decides what
happens next:

  - ctx.Err() or nil after cancellation: clean stop, no restart
  - suture.ErrDoNotRestart: the service is finished (replay EOF)
  - anything else: a crash; the layer supervisor restarts the service

TreeConfig tunes the restart machinery; DefaultTreeConfig mirrors
suture's stock values (threshold 5, decay 30s, backoff 15s, shutdown
grace 10s). The failure count decays exponentially, so an isolated
crash restarts immediately while a crash loop earns backoff.

# Logging

Supervisor events (start, stop, failure, backoff) pass through
sutureslog into the application's slog bridge and land in the same
zerolog sink as everything else.

Not everything lives in the tree: the detection store and the pattern
catalog are plain in-memory structures owned by the engine, and webhook
notifiers run inside the engine's dispatcher, sharing its restart unit.
*/
package supervisor
