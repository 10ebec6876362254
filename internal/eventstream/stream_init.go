// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

//go:build nats

package eventstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// jetStreamAPI is the slice of jetstream.JetStream the provisioner
// needs. Tests substitute an in-memory fake.
type jetStreamAPI interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamProvisioner owns the JetStream stream lifecycle. It brings the
// knock event stream to the configured shape before any publisher or
// subscriber starts; AutoProvision stays off everywhere else because
// the stream's wildcard subjects cannot be derived from topic names.
type StreamProvisioner struct {
	js  jetStreamAPI
	cfg StreamConfig
}

// NewStreamProvisioner builds a provisioner for the stream described by
// cfg.
func NewStreamProvisioner(js jetStreamAPI, cfg *StreamConfig) (*StreamProvisioner, error) {
	switch {
	case js == nil:
		return nil, fmt.Errorf("%w: JetStream context required", ErrInvalidConfig)
	case cfg == nil:
		return nil, fmt.Errorf("%w: stream config required", ErrInvalidConfig)
	}
	return &StreamProvisioner{js: js, cfg: *cfg}, nil
}

// jetStreamConfig expands the stream settings into the full JetStream
// configuration.
func (p *StreamProvisioner) jetStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:     p.cfg.Name,
		Subjects: p.cfg.Subjects,

		// Durable file storage, oldest events discarded first once a
		// limit is reached.
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Discard:    jetstream.DiscardOld,
		MaxAge:     p.cfg.MaxAge,
		MaxBytes:   p.cfg.MaxBytes,
		MaxMsgs:    p.cfg.MaxMsgs,
		MaxMsgSize: p.cfg.MaxMsgSize,
		Replicas:   p.cfg.Replicas,

		// Server-side dedup window matched to the publisher's
		// message IDs.
		Duplicates: p.cfg.DuplicateWindow,

		// Direct get serves reads without a consumer; rollup lets a
		// retention job collapse history into a snapshot message.
		AllowDirect: true,
		AllowRollup: true,
	}
}

// EnsureStream creates the stream if missing, or updates it to the
// configured settings if it already exists. The operation is
// idempotent.
func (p *StreamProvisioner) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	cfg := p.jetStreamConfig()

	_, lookupErr := p.js.Stream(ctx, cfg.Name)
	switch {
	case lookupErr == nil:
		updated, err := p.js.UpdateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
		return updated, nil

	case errors.Is(lookupErr, jetstream.ErrStreamNotFound):
		created, err := p.js.CreateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		return created, nil

	default:
		return nil, fmt.Errorf("check stream %s: %w", cfg.Name, lookupErr)
	}
}

// StreamInfo retrieves current stream state and configuration. It fails
// when the stream does not exist yet.
func (p *StreamProvisioner) StreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	stream, err := p.js.Stream(ctx, p.cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("lookup stream %s: %w", p.cfg.Name, err)
	}
	return stream.Info(ctx)
}

// IsHealthy reports whether the stream exists and is reachable.
func (p *StreamProvisioner) IsHealthy(ctx context.Context) bool {
	_, err := p.js.Stream(ctx, p.cfg.Name)
	return err == nil
}

// Config returns the stream settings the provisioner was built with.
func (p *StreamProvisioner) Config() StreamConfig { return p.cfg }
