// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	redis "github.com/redis/go-redis/v9"

	"github.com/openarcade/presenced/internal/bus"
	"github.com/openarcade/presenced/internal/config"
	"github.com/openarcade/presenced/internal/events"
	"github.com/openarcade/presenced/internal/pipeline"
	"github.com/openarcade/presenced/internal/presence"
	"github.com/openarcade/presenced/internal/store"
)

// TestPipelineIntegration runs the complete flow over a real broker:
// embedded NATS with the lifecycle stream, a durable subscriber feeding
// the router, the handler writing to in-memory DuckDB and miniredis.
func TestPipelineIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srvCfg := bus.DefaultServerConfig()
	srvCfg.Port = -1 // random port
	srvCfg.StoreDir = t.TempDir()
	srv, err := bus.NewEmbeddedServer(&srvCfg)
	if err != nil {
		t.Fatalf("Failed to start embedded server: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	natsURL := srv.ClientURL()

	nc, err := natsgo.Connect(natsURL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to create JetStream context: %v", err)
	}
	streamCfg := bus.DefaultStreamConfig()
	streamInit, err := bus.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		t.Fatalf("Failed to create stream initializer: %v", err)
	}
	if _, err := streamInit.EnsureStream(ctx); err != nil {
		t.Fatalf("Failed to provision stream: %v", err)
	}

	db, err := store.New(&config.DatabaseConfig{Path: ":memory:", MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mini := miniredis.RunT(t)
	cache := presence.NewWithClient(redis.NewClient(&redis.Options{Addr: mini.Addr()}), 0)
	t.Cleanup(func() { _ = cache.Close() })

	publisher, err := bus.NewPublisher(bus.DefaultPublisherConfig(natsURL), nil)
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	t.Cleanup(func() { _ = publisher.Close() })

	subCfg := bus.DefaultSubscriberConfig(natsURL)
	subscriber, err := bus.NewSubscriber(&subCfg, nil)
	if err != nil {
		t.Fatalf("Failed to create subscriber: %v", err)
	}
	t.Cleanup(func() { _ = subscriber.Close() })

	router, err := bus.NewRouter(bus.DefaultRouterConfig(), publisher.WatermillPublisher(), nil)
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	handler := pipeline.NewHandler(db, cache, nil)
	router.AddConsumerHandler("player-lifecycle", events.ConsumerSubject, subscriber.WatermillSubscriber(), handler.Handle)

	routerCtx, routerCancel := context.WithCancel(ctx)
	defer routerCancel()
	routerDone := make(chan error, 1)
	go func() { routerDone <- router.Run(routerCtx) }()
	select {
	case <-router.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("Router did not start")
	}

	t.Run("connected creates player and marks online", func(t *testing.T) {
		event := &events.LifecycleEvent{ClientID: 7, Username: "alice"}
		if err := publisher.PublishLifecycle(ctx, events.RoutingKeyConnected, event); err != nil {
			t.Fatalf("Publish connected: %v", err)
		}

		player := waitForPlayer(t, ctx, db, "alice")
		waitForStatus(t, ctx, cache, player.ID, presence.StatusOnline)
	})

	t.Run("disconnected marks offline and keeps the row", func(t *testing.T) {
		player, err := db.FindByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("FindByUsername: %v", err)
		}

		event := &events.LifecycleEvent{ClientID: 7, Username: "alice"}
		if err := publisher.PublishLifecycle(ctx, events.RoutingKeyDisconnected, event); err != nil {
			t.Fatalf("Publish disconnected: %v", err)
		}

		waitForStatus(t, ctx, cache, player.ID, presence.StatusOffline)

		after, err := db.FindByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("FindByUsername after disconnect: %v", err)
		}
		if after.ID != player.ID {
			t.Errorf("Expected row to survive disconnect with id %d, got %d", player.ID, after.ID)
		}
		count, err := db.CountPlayers(ctx)
		if err != nil {
			t.Fatalf("CountPlayers: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected exactly one player row, got %d", count)
		}
	})

	routerCancel()
	select {
	case <-routerDone:
	case <-time.After(10 * time.Second):
		t.Error("Router did not shut down")
	}
}

func waitForPlayer(t *testing.T, ctx context.Context, db *store.DB, username string) *store.Player {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		player, err := db.FindByUsername(ctx, username)
		if err == nil {
			return player
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Player %q was not created in time", username)
	return nil
}

func waitForStatus(t *testing.T, ctx context.Context, cache *presence.Cache, playerID int64, want presence.Status) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	var got presence.Status
	for time.Now().Before(deadline) {
		status, err := cache.GetStatus(ctx, playerID)
		if err == nil && status == want {
			return
		}
		got = status
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Expected presence %s for player %d, last saw %s", want, playerID, got)
}
