// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package events defines the lifecycle event contract shared by the
// gateway (publisher) and the player service (consumer).
package events

import (
	"github.com/google/uuid"
)

// Topic is the logical publish/subscribe channel for game events.
// NATS subjects are formed as Topic + "." + routing key.
const Topic = "game_events"

// Routing keys for player lifecycle events.
const (
	RoutingKeyConnected    = "player.connected"
	RoutingKeyDisconnected = "player.disconnected"
)

// MetadataRoutingKey is the message metadata key carrying the routing key.
// The consumer reads it back instead of re-deriving it from the subject.
const MetadataRoutingKey = "routing_key"

// SubjectFor returns the NATS subject for a routing key.
func SubjectFor(routingKey string) string {
	return Topic + "." + routingKey
}

// ConsumerSubject is the wildcard subject matching both lifecycle
// routing keys on the shared topic.
const ConsumerSubject = Topic + ".player.*"

// LifecycleEvent is the transient message emitted when a client session
// opens or closes. ClientID identifies the transport session, not a
// player; Username is the identity key used to resolve or create one.
type LifecycleEvent struct {
	ClientID int64  `json:"client_id"`
	Username string `json:"username"`
}

// NewEventID returns a unique message id, used both as the Watermill
// message UUID and as the Nats-Msg-Id for JetStream publish dedup.
func NewEventID() string {
	return uuid.New().String()
}

// Validate checks required fields.
func (e *LifecycleEvent) Validate() error {
	if e.Username == "" {
		return &ValidationError{Field: "username", Message: "required"}
	}
	return nil
}

// KnownRoutingKey reports whether the routing key names a lifecycle event.
func KnownRoutingKey(key string) bool {
	return key == RoutingKeyConnected || key == RoutingKeyDisconnected
}

// ValidationError describes a missing or invalid event field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
