// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

/*
Package metrics instruments the detection pipeline for Prometheus.

Every moving part of the process reports here: the ingest queues and
sequence matcher, the capture sources, the HTTP API, the WebSocket
feed, webhook delivery with its circuit breakers, and the NATS event
stream. All metrics register on the default registry at init and are
served from GET /metrics in Prometheus text format:

	curl http://localhost:9476/metrics

Callers never touch collectors directly; each update goes through a
package function:

	metrics.RecordEventIngested()
	metrics.RecordDetection("HIGH", "ssh_unlock")
	metrics.UpdateTrackedSources(42)

or, from the API middleware:

	start := time.Now()
	next.ServeHTTP(rw, r)
	metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(rw.status), time.Since(start))

All of these functions are safe for concurrent use; synchronization is
the Prometheus client's problem, not the caller's.

# What gets exported

Pipeline (knock_*): events ingested, processed, invalid, and
overflowed; ingest queue depth; tracked sources and evictions;
detections by severity and pattern plus the cooldown-suppressed count.

Capture (capture_*): per-source event and parse-failure counters,
labeled replay or pcap.

API (api_*): request totals by method, endpoint, and status code; a
latency histogram bucketed from 10ms to 10s; in-flight requests; rate
limiter rejections per endpoint.

WebSocket (websocket_*): connected clients, messages delivered, and
errors by type (slow_client, write_failed, unexpected_close,
broadcast_channel_full).

Delivery: webhook_deliveries_total by outcome, and
circuit_breaker_state per breaker (0=closed, 1=half-open, 2=open).

Event stream (nats_*): publish/consume/processed/parse-failed
counters, a handling-time histogram, and consumer queue depth.

Process: app_info carrying version and Go runtime labels, and
app_uptime_seconds.

# Keeping cardinality bounded

Label values are drawn from closed sets only. Detection labels come
from the configured pattern catalog and the fixed severity ladder;
endpoint labels use the routing pattern rather than the raw URL; and
source identities never appear as labels, however tempting a per-IP
counter might look during an incident.

A scrape job for this process:

	scrape_configs:
	  - job_name: 'knockwatch'
	    static_configs:
	      - targets: ['localhost:9476']
	    scrape_interval: 15s

and a few PromQL starting points:

	# Event ingest rate
	rate(knock_events_ingested_total[5m])

	# Detections per minute by severity
	sum by (severity) (rate(knock_detections_total[1m])) * 60

	# API p95 latency
	histogram_quantile(0.95, rate(api_request_duration_seconds_bucket[5m]))

	# Overflow ratio
	rate(knock_events_overflowed_total[5m]) / rate(knock_events_ingested_total[5m])
*/
package metrics
