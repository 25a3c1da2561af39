// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/openarcade/presenced/internal/config"
)

// TestConcurrent_GetOrCreatePlayer races many goroutines through the
// get-or-create path for a single username. Redelivered and duplicated
// connection events land on independent consumers, so losing the insert
// race must resolve to the winner's row, never a second identity.
// Verifies thread safety with go test -race.
func TestConcurrent_GetOrCreatePlayer(t *testing.T) {
	// NOT parallel - tests concurrency explicitly

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	const numGoroutines = 32
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, numGoroutines)
	errCh := make(chan error, numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			p, err := db.GetOrCreatePlayer(ctx, "alice")
			if err != nil {
				errCh <- err
				return
			}
			ids <- p.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errCh)

	for err := range errCh {
		t.Errorf("GetOrCreatePlayer failed under contention: %v", err)
	}

	var first int64 = -1
	for id := range ids {
		if first == -1 {
			first = id
			continue
		}
		if id != first {
			t.Errorf("Expected every caller to resolve id %d, got %d", first, id)
		}
	}
	if first == -1 {
		t.Fatal("No goroutine returned a player")
	}

	count, err := db.CountPlayers(ctx)
	if err != nil {
		t.Fatalf("CountPlayers: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly one player row, got %d", count)
	}
}

// TestConcurrent_DistinctUsernames races creates for different usernames
// to confirm contention on one name does not serialize or corrupt others.
func TestConcurrent_DistinctUsernames(t *testing.T) {
	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	const numGoroutines = 16
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			username := fmt.Sprintf("player-%d", n)
			if _, err := db.GetOrCreatePlayer(ctx, username); err != nil {
				errCh <- fmt.Errorf("create %s: %w", username, err)
			}
		}(g)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}

	count, err := db.CountPlayers(ctx)
	if err != nil {
		t.Fatalf("CountPlayers: %v", err)
	}
	if count != numGoroutines {
		t.Errorf("Expected %d player rows, got %d", numGoroutines, count)
	}
}
