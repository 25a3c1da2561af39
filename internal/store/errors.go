// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package store

import (
	"errors"
	"strings"
)

var (
	// ErrPlayerNotFound is returned when a lookup matches no player.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrUsernameConflict is returned when an insert violates the
	// username uniqueness constraint. Callers recover by re-reading,
	// since a concurrent writer has already created the record.
	ErrUsernameConflict = errors.New("username already exists")
)

// isUniqueViolation reports whether err is DuckDB's unique constraint
// violation. The driver does not expose structured error codes, so the
// message text is the only signal available.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "violates unique constraint") ||
		strings.Contains(msg, "Constraint Error")
}
