// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package services

import (
	"context"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// waitServe receives a Serve result or fails the test after a second.
func waitServe(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("Serve did not return in time")
		return nil
	}
}

// underSupervisor runs svc beneath a throwaway supervisor tuned for
// fast restarts. The returned stop cancels the supervisor and blocks
// until it has wound down.
func underSupervisor(t *testing.T, svc suture.Service) (stop func()) {
	t.Helper()
	sup := suture.New("test-tree", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	return func() {
		cancel()
		<-errCh
	}
}

// eventually polls cond until it holds, failing the test after two
// seconds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
