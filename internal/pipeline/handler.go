// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package pipeline consumes player lifecycle events and projects them
// into the player store and presence cache.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/openarcade/presenced/internal/bus"
	"github.com/openarcade/presenced/internal/events"
	"github.com/openarcade/presenced/internal/metrics"
	"github.com/openarcade/presenced/internal/presence"
	"github.com/openarcade/presenced/internal/store"
)

// PlayerStore is the durable identity lookup used by the handler.
type PlayerStore interface {
	FindByUsername(ctx context.Context, username string) (*store.Player, error)
	GetOrCreatePlayer(ctx context.Context, username string) (*store.Player, error)
}

// PresenceCache is the presence projection written by the handler.
type PresenceCache interface {
	SetStatus(ctx context.Context, playerID int64, status presence.Status) error
}

// Handler processes lifecycle events. It is stateless between messages,
// so redelivery to a different instance after a crash changes nothing:
// every effect is either an idempotent upsert or an overwrite.
//
// Error classing decides message fate in the router's middleware:
//   - bus.PermanentError: diverted to the poison topic and acked
//   - bus.RetryableError (or any other error): nacked for redelivery
type Handler struct {
	store      PlayerStore
	cache      PresenceCache
	serializer *events.Serializer
	logger     watermill.LoggerAdapter

	messagesReceived  atomic.Int64
	messagesProcessed atomic.Int64
	parseErrors       atomic.Int64
}

// NewHandler creates a lifecycle event handler.
func NewHandler(playerStore PlayerStore, cache PresenceCache, logger watermill.LoggerAdapter) *Handler {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	return &Handler{
		store:      playerStore,
		cache:      cache,
		serializer: events.NewSerializer(),
		logger:     logger,
	}
}

// Handle processes one lifecycle message. Registered with the router as
// a no-publisher handler.
func (h *Handler) Handle(msg *message.Message) error {
	h.messagesReceived.Add(1)
	start := time.Now()

	routingKey := msg.Metadata.Get(events.MetadataRoutingKey)
	metrics.RecordBusConsume()

	if !events.KnownRoutingKey(routingKey) {
		h.parseErrors.Add(1)
		metrics.RecordBusMalformed()
		h.logger.Error("Unknown routing key, discarding message", nil, watermill.LogFields{
			"message_id":  msg.UUID,
			"routing_key": routingKey,
		})
		return bus.NewPermanentError("unknown routing key: "+routingKey, nil)
	}

	event, err := h.serializer.Unmarshal(msg.Payload)
	if err != nil {
		h.parseErrors.Add(1)
		metrics.RecordBusMalformed()
		h.logger.Error("Malformed event payload, discarding message", err, watermill.LogFields{
			"message_id":  msg.UUID,
			"routing_key": routingKey,
		})
		return bus.NewPermanentError("malformed payload", err)
	}

	if err := event.Validate(); err != nil {
		h.parseErrors.Add(1)
		metrics.RecordBusMalformed()
		h.logger.Error("Invalid event, discarding message", err, watermill.LogFields{
			"message_id":  msg.UUID,
			"routing_key": routingKey,
			"client_id":   event.ClientID,
		})
		return bus.NewPermanentError("invalid event", err)
	}

	ctx := msg.Context()

	switch routingKey {
	case events.RoutingKeyConnected:
		err = h.handleConnected(ctx, event)
	case events.RoutingKeyDisconnected:
		err = h.handleDisconnected(ctx, event)
	}
	if err != nil {
		metrics.RecordBusRetryable()
		h.logger.Error("Transient failure, message will be redelivered", err, watermill.LogFields{
			"message_id":  msg.UUID,
			"routing_key": routingKey,
			"username":    event.Username,
		})
		return bus.NewRetryableError("process lifecycle event", err)
	}

	h.messagesProcessed.Add(1)
	metrics.RecordBusProcessed()
	metrics.RecordBusProcessingDuration(time.Since(start))
	return nil
}

// handleConnected ensures the durable record exists and flips the
// presence flag to online. The username conflict race is absorbed by
// GetOrCreatePlayer, which re-reads after a lost insert.
func (h *Handler) handleConnected(ctx context.Context, event *events.LifecycleEvent) error {
	player, err := h.store.GetOrCreatePlayer(ctx, event.Username)
	if err != nil {
		return err
	}

	if err := h.cache.SetStatus(ctx, player.ID, presence.StatusOnline); err != nil {
		return err
	}

	h.logger.Debug("Player connected", watermill.LogFields{
		"player_id": player.ID,
		"username":  player.Username,
		"client_id": event.ClientID,
	})
	return nil
}

// handleDisconnected flips the presence flag to offline. A disconnect
// for a player the store has never seen is a no-op, not a failure: the
// matching connect may still be in flight and will settle things when
// it arrives.
func (h *Handler) handleDisconnected(ctx context.Context, event *events.LifecycleEvent) error {
	player, err := h.store.FindByUsername(ctx, event.Username)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			h.logger.Debug("Disconnect for unknown player, ignoring", watermill.LogFields{
				"username":  event.Username,
				"client_id": event.ClientID,
			})
			return nil
		}
		return err
	}

	if err := h.cache.SetStatus(ctx, player.ID, presence.StatusOffline); err != nil {
		return err
	}

	h.logger.Debug("Player disconnected", watermill.LogFields{
		"username":  event.Username,
		"client_id": event.ClientID,
	})
	return nil
}

// Stats reports handler counters for the readiness endpoint.
func (h *Handler) Stats() (received, processed, parseErrors int64) {
	return h.messagesReceived.Load(), h.messagesProcessed.Load(), h.parseErrors.Load()
}
