// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gateway's HTTP surface: the WebSocket endpoint,
// a liveness probe, and metrics.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/ws", handler.ServeWS)
	r.Get("/healthz", handler.healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// healthz reports gateway liveness and the live session count.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	body := map[string]interface{}{
		"status":    "alive",
		"sessions":  h.hub.ClientCount(),
		"timestamp": time.Now(),
	}
	_ = json.NewEncoder(w).Encode(body)
}
