// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package api serves the player query surface over HTTP using Chi.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/openarcade/presenced/internal/presence"
	"github.com/openarcade/presenced/internal/store"
)

// PlayerStore is the durable player access used by handlers.
type PlayerStore interface {
	FindByUsername(ctx context.Context, username string) (*store.Player, error)
	CreatePlayer(ctx context.Context, username string) (*store.Player, error)
	ListPlayers(ctx context.Context, limit, offset int) ([]store.Player, error)
	CountPlayers(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// PresenceReader is the presence projection read by handlers.
type PresenceReader interface {
	GetStatus(ctx context.Context, playerID int64) (presence.Status, error)
	Ping(ctx context.Context) error
}

// Handler holds dependencies for the player API endpoints.
type Handler struct {
	store    PlayerStore
	presence PresenceReader
	bus      BusHealth
}

// NewHandler creates an API handler.
func NewHandler(playerStore PlayerStore, presenceReader PresenceReader) *Handler {
	return &Handler{
		store:    playerStore,
		presence: presenceReader,
	}
}

// createPlayerRequest is the POST /players request body.
type createPlayerRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
}

// playerStatusResponse is the GET /players/{username}/status body.
type playerStatusResponse struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// CreatePlayer handles POST /api/v1/players. Registration through the
// API uses the same identity rules as the event pipeline: usernames are
// unique, and the first writer wins.
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", err)
		return
	}
	if req.Username == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username is required", nil)
		return
	}

	player, err := h.store.CreatePlayer(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUsernameConflict) {
			respondError(w, http.StatusConflict, "USERNAME_TAKEN", "Username already registered", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to create player", err)
		return
	}

	respondData(w, http.StatusCreated, player)
}

// GetPlayer handles GET /api/v1/players/{username}.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	player, err := h.store.FindByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			respondError(w, http.StatusNotFound, "PLAYER_NOT_FOUND", "Player not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load player", err)
		return
	}

	respondData(w, http.StatusOK, player)
}

// GetPlayerStatus handles GET /api/v1/players/{username}/status. The
// presence flag is advisory: absence reads as offline, and a stale
// online entry is possible if a disconnect event was lost.
func (h *Handler) GetPlayerStatus(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	player, err := h.store.FindByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			respondError(w, http.StatusNotFound, "PLAYER_NOT_FOUND", "Player not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load player", err)
		return
	}

	status, err := h.presence.GetStatus(r.Context(), player.ID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "PRESENCE_UNAVAILABLE", "Presence cache unavailable", err)
		return
	}

	respondData(w, http.StatusOK, &playerStatusResponse{
		Username: player.Username,
		Status:   string(status),
	})
}

// ListPlayers handles GET /api/v1/players with limit/offset pagination.
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 100)
	offset := getIntParam(r, "offset", 0)
	if limit > 1000 {
		limit = 1000
	}

	players, err := h.store.ListPlayers(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list players", err)
		return
	}

	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "success",
		Data:   players,
		Metadata: Metadata{
			Timestamp: time.Now(),
			Count:     len(players),
		},
	})
}

// getIntParam extracts an integer query parameter with a default value
func getIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
