// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

/*
Package services adapts Knockwatch components to suture v4 supervision.

Every long-running part of the application exposes a different
lifecycle: the engine and the websocket hub block inside RunWithContext,
*http.Server blocks inside ListenAndServe and drains through Shutdown,
capture sources pump a callback, and the event stream components use
Start/Shutdown. The wrappers here translate each of those shapes into
the single contract suture supervises:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Serve blocks for the life of the component, returns ctx.Err() after a
requested stop, and returns any other error to ask the supervisor for a
restart. CaptureService additionally returns suture.ErrDoNotRestart once
a finite source is exhausted, since replaying a consumed file would feed
the engine duplicate events.

The wrappers are:

  - CaptureService: runs a capture.Source, feeding events into the
    engine and deciding per ingest error whether to keep reading
  - EngineService: runs the detection engine (workers, dispatcher,
    sweeper) under the detection layer
  - HTTPService: runs *http.Server with bounded connection draining
  - HubService: runs the WebSocket broadcast hub
  - StreamService: runs the NATS ingest components (build tag nats)

Each wrapper declares the minimal interface it drives (EventSink,
DetectionEngine, GracefulServer, HubRunner, StreamRunner) instead of
importing the wrapped package. That keeps the dependency graph acyclic
and the wrappers testable with in-memory stubs.
*/
package services
