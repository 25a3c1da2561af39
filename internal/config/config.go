// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package config loads layered configuration for both presenced binaries.
//
// Sources, highest priority last: built-in defaults, optional YAML config
// file, environment variables (NATS_URL, DATABASE_PATH, PRESENCE_URL, ...).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for both the gateway and the player
// service. Each binary reads only the sections it needs.
type Config struct {
	NATS     NATSConfig     `koanf:"nats"`
	Database DatabaseConfig `koanf:"database"`
	Presence PresenceConfig `koanf:"presence"`
	Server   ServerConfig   `koanf:"server"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Log      LogConfig      `koanf:"log"`
}

// NATSConfig configures the event bus adapter.
type NATSConfig struct {
	// URL of an external NATS server. Ignored when EmbeddedServer is true.
	URL string `koanf:"url" validate:"required"`

	// EmbeddedServer runs an in-process NATS JetStream server. Useful for
	// single-node deployments and tests; production runs external NATS.
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory for the embedded server.
	StoreDir string `koanf:"store_dir"`

	MaxMemory int64 `koanf:"max_memory" validate:"min=0"`
	MaxStore  int64 `koanf:"max_store" validate:"min=0"`

	// StreamName is the JetStream stream holding lifecycle events.
	StreamName string `koanf:"stream_name" validate:"required"`

	// StreamRetention bounds how long unconsumed events are retained.
	StreamRetention time.Duration `koanf:"stream_retention"`

	// DuplicateWindow is the JetStream publish-side dedup window.
	DuplicateWindow time.Duration `koanf:"duplicate_window"`

	// DurableName and QueueGroup identify the shared durable subscription
	// that load-balances events across consumer instances.
	DurableName string `koanf:"durable_name" validate:"required"`
	QueueGroup  string `koanf:"queue_group" validate:"required"`

	SubscribersCount int           `koanf:"subscribers_count" validate:"min=1"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	MaxDeliver       int           `koanf:"max_deliver"`
	MaxAckPending    int           `koanf:"max_ack_pending"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`

	// RouterRetryCount is the number of in-process retries before a
	// failed message is nacked back to JetStream. Zero disables in-process
	// retry so bus redelivery is the sole retry mechanism.
	RouterRetryCount         int           `koanf:"router_retry_count" validate:"min=0"`
	RouterRetryInitialDelay  time.Duration `koanf:"router_retry_initial_delay"`
	RouterPoisonQueueEnabled bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic   string        `koanf:"router_poison_queue_topic"`
}

// DatabaseConfig configures the durable player store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	MaxOpenConns int `koanf:"max_open_conns" validate:"min=1"`
}

// PresenceConfig configures the Redis presence cache.
type PresenceConfig struct {
	// URL is the Redis connection URL (e.g. redis://localhost:6379/0).
	URL string `koanf:"url" validate:"required"`

	PoolSize     int `koanf:"pool_size" validate:"min=1"`
	MinIdleConns int `koanf:"min_idle_conns" validate:"min=0"`

	// TTL bounds how long a presence entry survives without updates.
	// Zero disables expiry. Correctness does not require a TTL; it only
	// limits how long a lost disconnect can leave a stale "online" flag.
	TTL time.Duration `koanf:"ttl"`
}

// ServerConfig configures the player service HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// GatewayConfig configures the connection-facing gateway.
type GatewayConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// MaxMessageSize caps inbound WebSocket frames in bytes.
	MaxMessageSize int64 `koanf:"max_message_size" validate:"min=1"`

	// ReadRatePerSecond throttles inbound frames per connection.
	ReadRatePerSecond float64 `koanf:"read_rate_per_second" validate:"min=0"`
	ReadBurst         int     `koanf:"read_burst" validate:"min=1"`
}

// LogConfig configures logging for the process.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the host:port listen address for the HTTP API.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the host:port listen address for the gateway.
func (c GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration using struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
