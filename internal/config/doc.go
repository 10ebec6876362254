// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

/*
Package config provides layered application configuration with validation.

Configuration is loaded with Koanf v2 from three layers, each overriding the
previous one:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML config file
 3. KNOCKWATCH_* environment variables

# Config File

The config file is searched at config.yaml, config.yml,
/etc/knockwatch/config.yaml, and /etc/knockwatch/config.yml, in that order.
KNOCKWATCH_CONFIG overrides the search with an explicit path.

Example config.yaml:

	engine:
	  window_ms: 5000
	  workers: 4
	server:
	  port: 9476
	webhook:
	  enabled: true
	  url: https://alerts.example.com/hook
	patterns:
	  - pattern_id: vpn_probe
	    description: Probe against the VPN concentrator
	    severity: HIGH
	    kind: exact_sequence
	    sequence: [1194, 500, 4500]
	logging:
	  level: info
	  format: console

# Environment Variables

Every setting can be overridden through a KNOCKWATCH_-prefixed variable;
envKeyPaths in koanf.go holds the full mapping. Unknown variables are
ignored so unrelated environment content cannot leak into the configuration.

	KNOCKWATCH_WINDOW_MS=10000 KNOCKWATCH_HTTP_PORT=9000 knockwatch

# Custom Pattern Catalogs

The patterns list replaces the built-in catalog entirely when present.
Patterns are evaluated in declaration order, so higher-priority patterns
belong first. An empty list keeps the built-in catalog.

# Validation

Load() rejects malformed configuration (non-positive window, port out of
range, bad URLs) with an error naming the offending variable. Callers must
treat these errors as fatal and exit non-zero.

# Thread Safety

The returned Config is immutable after Load() and safe for concurrent reads.
CLI flag overrides are applied by the caller before the engine is constructed.
*/
package config
