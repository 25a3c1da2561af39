// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openarcade/presenced/internal/config"
	"github.com/openarcade/presenced/internal/events"
	"github.com/openarcade/presenced/internal/logging"
)

// LifecyclePublisher emits player lifecycle events to the bus.
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, routingKey string, event *events.LifecycleEvent) error
}

// Handler upgrades HTTP requests into WebSocket sessions and emits the
// matching lifecycle events.
type Handler struct {
	hub       *Hub
	publisher LifecyclePublisher
	cfg       *config.GatewayConfig
	upgrader  websocket.Upgrader
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(hub *Hub, publisher LifecyclePublisher, cfg *config.GatewayConfig) *Handler {
	return &Handler{
		hub:       hub,
		publisher: publisher,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway fronts game clients, not browsers on a shared
			// origin; origin checks stay with the deployment's proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws. The username query parameter names the
// identity to connect as; sessions without one get a generated name
// derived from the session id.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID := NextClientID()
	username := r.URL.Query().Get("username")
	if username == "" {
		username = fmt.Sprintf("Player_%d", clientID)
	}

	event := &events.LifecycleEvent{
		ClientID: clientID,
		Username: username,
	}

	// The connected event must land on the bus before the session is
	// live. A session whose connect was never published would go
	// offline-invisible for its entire lifetime.
	publishCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	err = h.publisher.PublishLifecycle(publishCtx, events.RoutingKeyConnected, event)
	cancel()
	if err != nil {
		logging.Error().Err(err).
			Int64("client_id", clientID).
			Str("username", username).
			Msg("Failed to publish connected event, rejecting session")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "service unavailable"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	client := NewClient(h.hub, conn, clientID, username,
		rate.Limit(h.cfg.ReadRatePerSecond), h.cfg.ReadBurst)

	// Queue the welcome before the session is visible to the hub. Once
	// registered, an instant disconnect lets the hub close the send
	// channel out from under this goroutine.
	client.send <- Message{
		Type: MessageTypeWelcome,
		Data: map[string]interface{}{
			"client_id": clientID,
			"username":  username,
		},
	}

	go h.publishDisconnected(client)

	h.hub.Register <- client
	client.Start(h.cfg.MaxMessageSize)
}

// publishDisconnected waits for the session to end and emits the
// disconnected event. Publish failure here is logged and dropped: the
// session is already gone, and the presence entry goes stale rather
// than wrong about identity.
func (h *Handler) publishDisconnected(client *Client) {
	<-client.Done()

	event := &events.LifecycleEvent{
		ClientID: client.ID(),
		Username: client.Username(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.publisher.PublishLifecycle(ctx, events.RoutingKeyDisconnected, event); err != nil {
		logging.Error().Err(err).
			Int64("client_id", client.ID()).
			Str("username", client.Username()).
			Msg("Failed to publish disconnected event, presence entry may go stale")
	}
}
