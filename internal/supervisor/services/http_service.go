// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GracefulServer is the slice of *http.Server this wrapper needs: a
// blocking listener plus a draining stop.
type GracefulServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService bridges http.Server's blocking ListenAndServe pattern
// and suture's context-aware Serve pattern. On cancellation it drains
// active connections through Shutdown with a bounded timeout.
type HTTPService struct {
	server    GracefulServer
	drainWait time.Duration
}

// NewHTTPService wraps server for supervision. drainWait bounds how
// long Shutdown waits for in-flight requests; zero or negative values
// fall back to ten seconds.
func NewHTTPService(server GracefulServer, drainWait time.Duration) *HTTPService {
	if drainWait <= 0 {
		drainWait = 10 * time.Second
	}
	return &HTTPService{server: server, drainWait: drainWait}
}

// Serve implements suture.Service. ListenAndServe runs on its own
// goroutine; when ctx is canceled the server drains through Shutdown
// and Serve returns ctx.Err(). http.ErrServerClosed is not a failure,
// it is how ListenAndServe reports that Shutdown took over.
func (s *HTTPService) Serve(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() { listenErr <- s.server.ListenAndServe() }()

	select {
	case err := <-listenErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil

	case <-ctx.Done():
	}

	// Shutdown needs a fresh context; the serve context is already
	// canceled.
	drain, cancel := context.WithTimeout(context.Background(), s.drainWait)
	defer cancel()

	if err := s.server.Shutdown(drain); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	// ListenAndServe unblocks with ErrServerClosed once Shutdown begins.
	<-listenErr
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *HTTPService) String() string {
	return "http-server"
}
