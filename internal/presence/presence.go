// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package presence maintains the online/offline projection in Redis.
//
// Presence is an eventually consistent projection of lifecycle events,
// not a source of truth: keys are overwritten last-processed-wins, and
// an absent key reads as offline.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openarcade/presenced/internal/config"
	"github.com/openarcade/presenced/internal/logging"
	"github.com/openarcade/presenced/internal/metrics"
)

// Status is a player's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// keyFor returns the Redis key holding the status for a player id.
func keyFor(playerID int64) string {
	return fmt.Sprintf("player:%d:status", playerID)
}

// Cache stores presence flags in Redis keyed by durable player id.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis using the configured URL and verifies the
// connection before returning.
func New(cfg *config.PresenceConfig) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logging.Info().Str("url", cfg.URL).Msg("Presence cache connected")
	return &Cache{client: client, ttl: cfg.TTL}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests with
// miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// SetStatus writes the presence flag for a player id, overwriting any
// previous value. With a zero TTL the key persists until overwritten.
func (c *Cache) SetStatus(ctx context.Context, playerID int64, status Status) error {
	if err := c.client.Set(ctx, keyFor(playerID), string(status), c.ttl).Err(); err != nil {
		return fmt.Errorf("set presence for player %d: %w", playerID, err)
	}
	metrics.RecordPresenceWrite(string(status))
	return nil
}

// GetStatus reads the presence flag for a player id. A missing key is
// reported as offline, not as an error.
func (c *Cache) GetStatus(ctx context.Context, playerID int64) (Status, error) {
	val, err := c.client.Get(ctx, keyFor(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StatusOffline, nil
		}
		return StatusOffline, fmt.Errorf("get presence for player %d: %w", playerID, err)
	}

	switch Status(val) {
	case StatusOnline:
		return StatusOnline, nil
	default:
		return StatusOffline, nil
	}
}

// Ping verifies the Redis connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
