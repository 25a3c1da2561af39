// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.NATS.StreamName != "GAME_EVENTS" {
		t.Errorf("Expected stream GAME_EVENTS, got %s", cfg.NATS.StreamName)
	}
	if cfg.NATS.QueueGroup != "player-consumers" {
		t.Errorf("Expected queue group player-consumers, got %s", cfg.NATS.QueueGroup)
	}
	if cfg.NATS.RouterRetryCount != 0 {
		t.Errorf("Expected in-process retry disabled, got %d", cfg.NATS.RouterRetryCount)
	}
	if !cfg.NATS.RouterPoisonQueueEnabled {
		t.Error("Expected poison queue enabled by default")
	}
	if cfg.Server.Port == cfg.Gateway.Port {
		t.Error("API and gateway must not share a default port")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NATS_QUEUE_GROUP", "other-consumers")
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.NATS.QueueGroup != "other-consumers" {
		t.Errorf("Expected env override, got %s", cfg.NATS.QueueGroup)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Expected env override, got %s", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected env override, got %s", cfg.Log.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("database:\n  path: /tmp/test.duckdb\nserver:\n  port: 9999\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Expected file override, got %s", cfg.Database.Path)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected file override, got %d", cfg.Server.Port)
	}
	// Untouched sections keep defaults.
	if cfg.NATS.StreamName != "GAME_EVENTS" {
		t.Errorf("Expected default stream name, got %s", cfg.NATS.StreamName)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Expected env to beat file, got %s", cfg.Log.Level)
	}
}

func TestEnvTransform(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"NATS_URL", "nats.url"},
		{"NATS_QUEUE_GROUP", "nats.queue_group"},
		{"DATABASE_PATH", "database.path"},
		{"PRESENCE_TTL", "presence.ttl"},
		{"SERVER_CORS_ORIGINS", "server.cors_origins"},
		{"LOG_LEVEL", "log.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tc := range cases {
		if got := envTransform(tc.in); got != tc.want {
			t.Errorf("envTransform(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Run("defaults validate", func(t *testing.T) {
		if err := defaultConfig().Validate(); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("missing required field fails", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.NATS.StreamName = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error")
		}
	})

	t.Run("port out of range fails", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error")
		}
	})
}

func TestAddr(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Server.Addr() == "" || cfg.Gateway.Addr() == "" {
		t.Error("Expected non-empty listen addresses")
	}
}
