// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

// Package metrics provides Prometheus instrumentation for presenced.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Bus metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total number of lifecycle events published to the bus",
		},
		[]string{"routing_key"},
	)

	BusConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_messages_consumed_total",
			Help: "Total number of messages delivered to the consumption pipeline",
		},
	)

	BusProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_messages_processed_total",
			Help: "Total number of messages processed and acknowledged",
		},
	)

	BusMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_messages_malformed_total",
			Help: "Total number of malformed messages dropped to the poison topic",
		},
	)

	BusRetryable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_messages_retryable_failures_total",
			Help: "Total number of transient processing failures left for bus redelivery",
		},
	)

	BusProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bus_message_processing_duration_seconds",
			Help:    "Duration of single-message pipeline processing in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Player store metrics
	PlayersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "players_created_total",
			Help: "Total number of player records created on first contact",
		},
	)

	UsernameConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "player_username_conflicts_total",
			Help: "Total number of creation races lost to a concurrent consumer",
		},
	)

	// Presence cache metrics
	PresenceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_writes_total",
			Help: "Total number of presence status writes",
		},
		[]string{"status"},
	)

	// Gateway metrics
	GatewaySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Current number of live gateway WebSocket sessions",
		},
	)

	GatewayBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_broadcasts_total",
			Help: "Total number of messages broadcast to live sessions",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordBusPublish records a lifecycle event published to the bus.
func RecordBusPublish(routingKey string) {
	BusPublished.WithLabelValues(routingKey).Inc()
}

// RecordBusConsume records a message delivered to the pipeline.
func RecordBusConsume() {
	BusConsumed.Inc()
}

// RecordBusProcessed records a message processed and acknowledged.
func RecordBusProcessed() {
	BusProcessed.Inc()
}

// RecordBusMalformed records a malformed message dropped to the poison topic.
func RecordBusMalformed() {
	BusMalformed.Inc()
}

// RecordBusRetryable records a transient failure left for redelivery.
func RecordBusRetryable() {
	BusRetryable.Inc()
}

// RecordBusProcessingDuration records single-message processing time.
func RecordBusProcessingDuration(d time.Duration) {
	BusProcessingDuration.Observe(d.Seconds())
}

// RecordPlayerCreated records a first-contact player creation.
func RecordPlayerCreated() {
	PlayersCreated.Inc()
}

// RecordUsernameConflict records a creation race lost to another consumer.
func RecordUsernameConflict() {
	UsernameConflicts.Inc()
}

// RecordPresenceWrite records a presence status write.
func RecordPresenceWrite(status string) {
	PresenceWrites.WithLabelValues(status).Inc()
}
