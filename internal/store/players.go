// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openarcade/presenced/internal/metrics"
)

// Player is a durable player record. ID is assigned by the store and is
// distinct from the transient client_id carried by lifecycle events.
type Player struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// FindByUsername returns the player with the given username, or
// ErrPlayerNotFound if none exists.
func (db *DB) FindByUsername(ctx context.Context, username string) (*Player, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, username, level, created_at FROM players WHERE username = ?`,
		username)

	var p Player
	if err := row.Scan(&p.ID, &p.Username, &p.Level, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("query player by username: %w", err)
	}
	return &p, nil
}

// CreatePlayer inserts a new player with the default level and returns
// the stored record. A concurrent insert of the same username surfaces
// as ErrUsernameConflict.
func (db *DB) CreatePlayer(ctx context.Context, username string) (*Player, error) {
	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO players (username) VALUES (?) RETURNING id, username, level, created_at`,
		username)

	var p Player
	if err := row.Scan(&p.ID, &p.Username, &p.Level, &p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			metrics.RecordUsernameConflict()
			return nil, ErrUsernameConflict
		}
		return nil, fmt.Errorf("insert player: %w", err)
	}

	metrics.RecordPlayerCreated()
	return &p, nil
}

// GetOrCreatePlayer finds the player with the given username, creating
// it if absent. The conflict path re-reads so that two concurrent
// callers both observe the single surviving record.
func (db *DB) GetOrCreatePlayer(ctx context.Context, username string) (*Player, error) {
	p, err := db.FindByUsername(ctx, username)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, err
	}

	p, err = db.CreatePlayer(ctx, username)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrUsernameConflict) {
		return nil, err
	}

	// Lost the insert race; the winner's row is now visible.
	return db.FindByUsername(ctx, username)
}

// ListPlayers returns up to limit players ordered by creation time,
// newest first. A non-positive limit applies the default of 100.
func (db *DB) ListPlayers(ctx context.Context, limit, offset int) ([]Player, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, level, created_at FROM players
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer func() { _ = rows.Close() }()

	players := make([]Player, 0, limit)
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Username, &p.Level, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player rows: %w", err)
	}
	return players, nil
}

// CountPlayers returns the total number of player records.
func (db *DB) CountPlayers(ctx context.Context) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return count, nil
}
