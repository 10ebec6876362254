// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// parseEndpoint parses raw and checks that it carries one of the given
// schemes and a host. Paths and query strings are left alone since both
// webhook and NATS endpoints may legitimately carry them.
func parseEndpoint(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("not a valid URL: %w", err)
	}

	valid := false
	for _, s := range schemes {
		if u.Scheme == s {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("scheme must be %s, got: %q", strings.Join(schemes, ", "), u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return u, nil
}

// validateWebhookURL checks a webhook endpoint. Webhook targets usually
// carry a path, so only scheme and host are constrained.
func validateWebhookURL(raw, field string) error {
	if _, err := parseEndpoint(raw, "http", "https"); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// validateNATSURL checks the NATS server URL, accepting the plain,
// TLS, and websocket schemes the client library can dial.
func validateNATSURL(raw string) error {
	_, err := parseEndpoint(raw, "nats", "tls", "ws", "wss")
	return err
}
