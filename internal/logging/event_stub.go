// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build !nats

package logging

import "context"

// EventLog is the no-op stand-in for builds without NATS support.
// The real implementation lives in event.go behind the nats tag.
type EventLog struct{}

// NewEventLog returns the no-op event logger.
func NewEventLog() *EventLog { return &EventLog{} }

func (e *EventLog) ErrorContext(context.Context, string, ...interface{}) {}

func (e *EventLog) EventReceived(context.Context, string, int) {}

func (e *EventLog) EventFailed(context.Context, string, error) {}

func (e *EventLog) DetectionPublished(context.Context, string, string) {}

func (e *EventLog) MessagePoisoned(context.Context, string, error) {}

func (e *EventLog) SubscriptionStarted(string, string) {}

func (e *EventLog) SubscriptionStopped(string) {}

func (e *EventLog) RouterStarted() {}

func (e *EventLog) RouterStopped() {}
