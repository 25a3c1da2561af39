// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package supervisor

import (
	"context"
	"time"

	"github.com/openarcade/presenced/internal/bus"
	"github.com/openarcade/presenced/internal/logging"
)

// RouterService adapts the bus router to the suture.Service interface.
// Run blocks until cancellation, which is exactly the contract suture
// expects; the wrapper only adds shutdown logging.
type RouterService struct {
	router *bus.Router
	name   string
}

// NewRouterService wraps a bus router for supervision.
func NewRouterService(name string, router *bus.Router) *RouterService {
	return &RouterService{router: router, name: name}
}

// Serve runs the router until the context is canceled.
func (s *RouterService) Serve(ctx context.Context) error {
	logging.Info().Str("service", s.name).Msg("Message router starting")
	err := s.router.Run(ctx)
	logging.Info().Str("service", s.name).Err(err).Msg("Message router stopped")
	return err
}

// String names the service in supervisor logs.
func (s *RouterService) String() string {
	return s.name
}

// EmbeddedServerService supervises the in-process NATS server. The
// server runs in its own goroutines; Serve just holds the slot and
// shuts it down on cancellation so a crashed server gets restarted.
type EmbeddedServerService struct {
	server *bus.EmbeddedServer
}

// NewEmbeddedServerService wraps an embedded NATS server for supervision.
func NewEmbeddedServerService(server *bus.EmbeddedServer) *EmbeddedServerService {
	return &EmbeddedServerService{server: server}
}

// Serve blocks until the context is canceled, then shuts the server down.
func (s *EmbeddedServerService) Serve(ctx context.Context) error {
	if !s.server.IsRunning() {
		return bus.ErrBusUnavailable
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Embedded NATS shutdown error")
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *EmbeddedServerService) String() string {
	return "embedded-nats"
}
