// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
)

// natsMarshaler translates between Watermill messages and the NATS wire
// format. Publisher and subscriber share it so both sides agree on
// header layout.
var natsMarshaler = &wmNats.NATSMarshaler{}

// orStdLogger substitutes Watermill's standard logger when the caller
// passes nil.
func orStdLogger(logger watermill.LoggerAdapter) watermill.LoggerAdapter {
	if logger == nil {
		return watermill.NewStdLogger(false, false)
	}
	return logger
}

// connectOptions returns the NATS client options shared by the
// publisher and subscriber. Connects retry with bounded pacing, and
// the logging hooks carry the component name so both sides stay
// distinguishable in the logs. The error hook tolerates a nil
// subscription because the client also invokes it for
// connection-level errors.
func connectOptions(component string, maxReconnects int, wait time.Duration, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(wait),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info(component+" reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			// The client fires this hook with a nil error on a clean Close.
			if err != nil {
				logger.Error(component+" disconnected", err, nil)
			}
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
			fields := watermill.LogFields{}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			logger.Error(component+" async error", err, fields)
		}),
	}
}
