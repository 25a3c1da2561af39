// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package main is the entry point for the player service.
//
// The player service consumes player lifecycle events from the durable
// game_events stream, maintains durable player records in DuckDB, and
// projects online/offline presence into Redis. It also serves the
// player query API.
//
// The service initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML, env)
//  2. Player store: DuckDB with the players schema
//  3. Presence cache: Redis connection
//  4. Bus: optional embedded NATS, stream provisioning, subscriber
//  5. Pipeline: the lifecycle event handler behind the Watermill router
//  6. HTTP API: player queries, health, and metrics
//
// All long-running components run under a suture supervisor tree, with
// messaging and API in separate layers so a crashing consumer never
// takes the query API down with it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/openarcade/presenced/internal/api"
	"github.com/openarcade/presenced/internal/bus"
	"github.com/openarcade/presenced/internal/config"
	"github.com/openarcade/presenced/internal/events"
	"github.com/openarcade/presenced/internal/logging"
	"github.com/openarcade/presenced/internal/pipeline"
	"github.com/openarcade/presenced/internal/presence"
	"github.com/openarcade/presenced/internal/store"
	"github.com/openarcade/presenced/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("stream", cfg.NATS.StreamName).
		Str("queue_group", cfg.NATS.QueueGroup).
		Msg("Starting presenced player service")

	db, err := store.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize player store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing player store")
		}
	}()

	cache, err := presence.New(&cfg.Presence)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect presence cache")
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing presence cache")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewTree("presenced", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Embedded NATS serves single-node deployments and local development;
	// production points NATS_URL at an external cluster.
	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		serverCfg := bus.DefaultServerConfig()
		serverCfg.StoreDir = cfg.NATS.StoreDir
		if cfg.NATS.MaxMemory > 0 {
			serverCfg.JetStreamMaxMem = cfg.NATS.MaxMemory
		}
		if cfg.NATS.MaxStore > 0 {
			serverCfg.JetStreamMaxStore = cfg.NATS.MaxStore
		}

		embedded, err := bus.NewEmbeddedServer(&serverCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		natsURL = embedded.ClientURL()
		tree.AddMessagingService(supervisor.NewEmbeddedServerService(embedded))
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	streamInit, nc, err := provisionStream(ctx, natsURL, &cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision event stream")
	}
	defer nc.Close()

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := bus.NewPublisher(bus.DefaultPublisherConfig(natsURL), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create bus publisher")
	}
	publisher.SetCircuitBreaker(bus.NewCircuitBreaker(bus.DefaultCircuitBreakerConfig("poison-publisher"), wmLogger))
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing bus publisher")
		}
	}()

	subCfg := bus.DefaultSubscriberConfig(natsURL)
	subCfg.DurableName = cfg.NATS.DurableName
	subCfg.QueueGroup = cfg.NATS.QueueGroup
	subCfg.SubscribersCount = cfg.NATS.SubscribersCount
	subCfg.AckWaitTimeout = cfg.NATS.AckWaitTimeout
	subCfg.MaxDeliver = cfg.NATS.MaxDeliver
	subCfg.MaxAckPending = cfg.NATS.MaxAckPending
	subCfg.MaxReconnects = cfg.NATS.MaxReconnects
	subCfg.ReconnectWait = cfg.NATS.ReconnectWait
	subCfg.CloseTimeout = cfg.NATS.CloseTimeout
	subCfg.StreamName = cfg.NATS.StreamName

	subscriber, err := bus.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create bus subscriber")
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing bus subscriber")
		}
	}()

	routerCfg := bus.DefaultRouterConfig()
	routerCfg.CloseTimeout = cfg.NATS.CloseTimeout
	routerCfg.RetryCount = cfg.NATS.RouterRetryCount
	routerCfg.RetryInitialDelay = cfg.NATS.RouterRetryInitialDelay
	routerCfg.PoisonQueueEnabled = cfg.NATS.RouterPoisonQueueEnabled
	routerCfg.PoisonQueueTopic = cfg.NATS.RouterPoisonQueueTopic

	router, err := bus.NewRouter(routerCfg, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create message router")
	}

	handler := pipeline.NewHandler(db, cache, wmLogger)
	router.AddConsumerHandler(
		"player-lifecycle",
		events.ConsumerSubject,
		subscriber.WatermillSubscriber(),
		handler.Handle,
	)

	tree.AddMessagingService(supervisor.NewRouterService("lifecycle-router", router))

	apiHandler := api.NewHandler(db, cache)
	apiHandler.SetBusHealth(&streamHealth{init: streamInit})
	apiServer := api.NewServer(cfg.Server.Addr(), api.NewRouter(apiHandler, &cfg.Server), cfg.Server.Timeout)
	tree.AddAPIService(apiServer)

	// Run the tree until SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := tree.ServeBackground(ctx)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor tree failed")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Player service stopped")
}

// provisionStream connects to NATS and ensures the lifecycle event
// stream exists. The returned connection stays open for health checks.
func provisionStream(ctx context.Context, url string, cfg *config.NATSConfig) (*bus.StreamInitializer, *natsgo.Conn, error) {
	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	streamCfg := bus.DefaultStreamConfig()
	streamCfg.Name = cfg.StreamName
	streamCfg.MaxAge = cfg.StreamRetention
	streamCfg.DuplicateWindow = cfg.DuplicateWindow

	streamInit, err := bus.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := streamInit.EnsureStream(ensureCtx); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return streamInit, nc, nil
}

// streamHealth adapts the stream initializer to the API health probe.
type streamHealth struct {
	init *bus.StreamInitializer
}

func (s *streamHealth) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.init.IsHealthy(ctx)
}
