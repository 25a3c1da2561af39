// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openarcade/presenced/internal/logging"
)

// blockingService runs until canceled and counts its starts.
type blockingService struct {
	starts atomic.Int32
}

func (s *blockingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

// crashingService fails once, then blocks.
type crashingService struct {
	starts atomic.Int32
}

func (s *crashingService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 {
		return errors.New("simulated crash")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_ServeAndShutdown(t *testing.T) {
	tree, err := NewTree("test", logging.NewSlogLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	svc := &blockingService{}
	tree.AddMessagingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, func() bool { return svc.starts.Load() == 1 }, "service start")

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Unexpected shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Tree did not stop")
	}
}

func TestTree_RestartsCrashedService(t *testing.T) {
	tree, err := NewTree("test", logging.NewSlogLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	svc := &crashingService{}
	tree.AddAPIService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = tree.ServeBackground(ctx)

	waitFor(t, func() bool { return svc.starts.Load() >= 2 }, "service restart after crash")
}

func TestTree_LayerIsolation(t *testing.T) {
	// A crashing messaging service must not disturb the API layer.
	tree, err := NewTree("test", logging.NewSlogLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	crasher := &crashingService{}
	stable := &blockingService{}
	tree.AddMessagingService(crasher)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = tree.ServeBackground(ctx)

	waitFor(t, func() bool { return crasher.starts.Load() >= 2 }, "crasher restart")

	if stable.starts.Load() != 1 {
		t.Errorf("API service restarted %d times, expected 1", stable.starts.Load())
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 {
		t.Errorf("Expected threshold 5, got %f", cfg.FailureThreshold)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
