// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations searched in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/presenced/config.yaml",
	"/etc/presenced/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied.
// Defaults are loaded first, then overridden by file and env vars.
func defaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   false,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        1 << 30,  // 1GB
			MaxStore:         10 << 30, // 10GB
			StreamName:       "GAME_EVENTS",
			StreamRetention:  7 * 24 * time.Hour,
			DuplicateWindow:  2 * time.Minute,
			DurableName:      "player-service",
			QueueGroup:       "player-consumers",
			SubscribersCount: 4,
			AckWaitTimeout:   30 * time.Second,
			MaxDeliver:       -1, // unlimited redelivery; poison topic catches malformed events
			MaxAckPending:    1024,
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			CloseTimeout:     30 * time.Second,

			RouterRetryCount:         0, // bus redelivery is the sole retry mechanism
			RouterRetryInitialDelay:  100 * time.Millisecond,
			RouterPoisonQueueEnabled: true,
			RouterPoisonQueueTopic:   "game_events.poison",
		},
		Database: DatabaseConfig{
			Path:         "/data/presenced.duckdb",
			MaxOpenConns: 4,
		},
		Presence: PresenceConfig{
			URL:          "redis://localhost:6379/0",
			PoolSize:     10,
			MinIdleConns: 2,
			TTL:          0, // disabled; presence entries persist until overwritten
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8081,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Gateway: GatewayConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			Timeout:           30 * time.Second,
			MaxMessageSize:    32 * 1024,
			ReadRatePerSecond: 20,
			ReadBurst:         10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// NATS_QUEUE_GROUP -> nats.queue_group, LOG_LEVEL -> log.level
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// configSections are the env var prefixes recognized by envTransform.
var configSections = []string{"nats", "database", "presence", "server", "gateway", "log"}

// envTransform maps environment variable names to koanf config paths.
// Only variables starting with a known section prefix are mapped; the
// rest of the process environment is ignored.
//
//	NATS_URL            -> nats.url
//	NATS_QUEUE_GROUP    -> nats.queue_group
//	DATABASE_PATH       -> database.path
//	PRESENCE_TTL        -> presence.ttl
//	LOG_LEVEL           -> log.level
func envTransform(key string) string {
	lower := strings.ToLower(key)
	for _, section := range configSections {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + strings.TrimPrefix(lower, prefix)
		}
	}
	return ""
}

// sliceConfigPaths are config paths parsed as comma-separated slices
// when they arrive as strings from environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}
