// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package api

import (
	"net/http"
	"time"
)

// BusHealth reports whether the messaging layer is up.
type BusHealth interface {
	IsHealthy() bool
}

// healthStatus is a single component's health report.
type healthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// SetBusHealth attaches the messaging health probe. The API can run
// without one, in which case readiness skips the bus component.
func (h *Handler) SetBusHealth(bus BusHealth) {
	h.bus = bus
}

// HealthLive handles GET /api/v1/health/live. Liveness means the
// process is serving requests, nothing more.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     &healthStatus{Status: "alive", Timestamp: time.Now()},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}

// HealthReady handles GET /api/v1/health/ready. Readiness checks the
// store, the presence cache, and the bus when attached; any failing
// component degrades the report to 503.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := make(map[string]string)
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		components["store"] = "unavailable: " + err.Error()
		healthy = false
	} else {
		components["store"] = "ok"
	}

	if err := h.presence.Ping(ctx); err != nil {
		components["presence"] = "unavailable: " + err.Error()
		healthy = false
	} else {
		components["presence"] = "ok"
	}

	if h.bus != nil {
		if h.bus.IsHealthy() {
			components["bus"] = "ok"
		} else {
			components["bus"] = "unavailable"
			healthy = false
		}
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	respondJSON(w, status, &APIResponse{
		Status: "success",
		Data: &healthStatus{
			Status:     overall,
			Components: components,
			Timestamp:  time.Now(),
		},
		Metadata: Metadata{Timestamp: time.Now()},
	})
}
