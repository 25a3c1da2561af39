// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package main is the entry point for the connection gateway.
//
// The gateway terminates client WebSocket sessions and emits
// player.connected / player.disconnected events to the durable
// game_events stream. It holds no durable state of its own: identity
// and presence both live behind the player service.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/openarcade/presenced/internal/api"
	"github.com/openarcade/presenced/internal/bus"
	"github.com/openarcade/presenced/internal/config"
	"github.com/openarcade/presenced/internal/gateway"
	"github.com/openarcade/presenced/internal/logging"
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
		Str("addr", cfg.Gateway.Addr()).
		Str("nats_url", cfg.NATS.URL).
		Msg("Starting presenced gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := bus.NewPublisher(bus.DefaultPublisherConfig(cfg.NATS.URL), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create bus publisher")
	}
	publisher.SetCircuitBreaker(bus.NewCircuitBreaker(bus.DefaultCircuitBreakerConfig("lifecycle-publisher"), wmLogger))
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing bus publisher")
		}
	}()

	hub := gateway.NewHub()
	handler := gateway.NewHandler(hub, publisher, &cfg.Gateway)

	tree, err := supervisor.NewTree("gateway", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMessagingService(hub)
	tree.AddAPIService(api.NewServer(cfg.Gateway.Addr(), gateway.NewRouter(handler), cfg.Gateway.Timeout))

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

	logging.Info().Msg("Gateway stopped")
}
