// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package gateway

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openarcade/presenced/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientIDCounter assigns transient session identifiers. IDs restart at
// one on process restart; they identify sessions, not players.
var clientIDCounter atomic.Int64

// NextClientID allocates a new session identifier.
func NextClientID() int64 {
	return clientIDCounter.Add(1)
}

// Client is a middleman between one WebSocket connection and the hub.
type Client struct {
	id       int64
	username string
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
	limiter  *rate.Limiter
	done     chan struct{}
}

// NewClient creates a session for an accepted connection.
func NewClient(hub *Hub, conn *websocket.Conn, id int64, username string, readRate rate.Limit, readBurst int) *Client {
	return &Client{
		id:       id,
		username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, 256),
		limiter:  rate.NewLimiter(readRate, readBurst),
		done:     make(chan struct{}),
	}
}

// ID returns the transient session identifier.
func (c *Client) ID() int64 {
	return c.id
}

// Username returns the identity the session connected as.
func (c *Client) Username() string {
	return c.username
}

// Done is closed when the session's read loop has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readPump pumps inbound frames from the connection to the hub.
func (c *Client) readPump(maxMessageSize int64) {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
		close(c.done)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Int64("client_id", c.id).Msg("unexpected websocket close error")
			}
			break
		}

		if !c.limiter.Allow() {
			logging.Warn().Int64("client_id", c.id).Msg("Read rate limit exceeded, dropping frame")
			continue
		}

		switch msg.Type {
		case MessageTypePing:
			pong := Message{Type: MessageTypePong}
			select {
			case c.send <- pong:
			default:
			}
		case MessageTypeChat:
			msg.Username = c.username
			c.hub.Broadcast(msg)
		}
	}
}

// writePump pumps hub messages to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start(maxMessageSize int64) {
	go c.writePump()
	go c.readPump(maxMessageSize)
}
