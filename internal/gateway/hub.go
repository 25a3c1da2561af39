// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package gateway terminates client WebSocket sessions and emits player
// lifecycle events to the bus. The gateway holds no durable state; the
// session table lives only as long as the process.
package gateway

import (
	"context"
	"sync"

	"github.com/openarcade/presenced/internal/logging"
	"github.com/openarcade/presenced/internal/metrics"
)

// Message types for gateway WebSocket traffic.
const (
	MessageTypeChat    = "chat"
	MessageTypeSystem  = "system"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
	MessageTypeWelcome = "welcome"
)

// Message is a WebSocket frame payload.
type Message struct {
	Type     string      `json:"type"`
	Username string      `json:"username,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// Hub maintains the set of live sessions and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Broadcast queues a message for delivery to all live sessions. Drops
// the message if the hub's buffer is full rather than blocking callers.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("type", msg.Type).Msg("Broadcast buffer full, dropping message")
	}
}

// ClientCount returns the number of live sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve runs the hub until the context is canceled, then closes all
// live sessions. Implements the supervisor service contract.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Lifecycle events take priority over broadcasts so the session
		// table is consistent before messages fan out.
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.GatewaySessions.Set(float64(total))
	logging.Info().
		Int64("client_id", client.ID()).
		Str("username", client.Username()).
		Int("total_clients", total).
		Msg("Session registered")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.GatewaySessions.Set(float64(total))
	logging.Info().
		Int64("client_id", client.ID()).
		Str("username", client.Username()).
		Int("total_clients", total).
		Msg("Session unregistered")
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.GatewayBroadcasts.Inc()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer: skip rather than stall the hub. The
			// client's own ping timeout will reap a dead connection.
			logging.Warn().
				Int64("client_id", client.ID()).
				Msg("Client send buffer full, skipping message")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.GatewaySessions.Set(0)
	logging.Info().Msg("Hub shut down, all sessions closed")
}
