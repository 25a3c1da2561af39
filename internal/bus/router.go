// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// RouterConfig controls handler middleware behavior.
type RouterConfig struct {
	// CloseTimeout bounds graceful shutdown of in-flight handlers.
	CloseTimeout time.Duration

	// RetryCount is the number of in-process retries before a failed
	// message is nacked back to the broker. Zero disables the retry
	// middleware entirely so the broker's redelivery is the only retry
	// mechanism.
	RetryCount        int
	RetryInitialDelay time.Duration

	// PoisonQueueEnabled routes permanently failed messages to
	// PoisonQueueTopic instead of nacking them.
	PoisonQueueEnabled bool
	PoisonQueueTopic   string
}

// DefaultRouterConfig returns router settings matching the delivery
// contract: no in-process retries, malformed messages diverted to the
// poison topic.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		CloseTimeout:       30 * time.Second,
		RetryCount:         0,
		RetryInitialDelay:  time.Second,
		PoisonQueueEnabled: true,
		PoisonQueueTopic:   "game_events.poison",
	}
}

// Router wires subscribers to handlers with recovery, optional retry,
// and poison-queue middleware.
type Router struct {
	router *message.Router
	config RouterConfig
	logger watermill.LoggerAdapter
}

// NewRouter creates a message router with the standard middleware chain.
// Permanent failures (malformed payloads, unknown routing keys) are
// published to the poison topic and acked; retryable failures are nacked
// so the broker redelivers them.
func NewRouter(cfg *RouterConfig, publisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	r, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	r.AddMiddleware(middleware.Recoverer)
	r.AddMiddleware(middleware.CorrelationID)

	if cfg.PoisonQueueEnabled {
		poison, err := middleware.PoisonQueueWithFilter(publisher, cfg.PoisonQueueTopic, func(err error) bool {
			return IsPermanentError(err)
		})
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		r.AddMiddleware(poison)
	}

	if cfg.RetryCount > 0 {
		r.AddMiddleware(middleware.Retry{
			MaxRetries:      cfg.RetryCount,
			InitialInterval: cfg.RetryInitialDelay,
			Multiplier:      2.0,
			Logger:          logger,
		}.Middleware)
	}

	return &Router{
		router: r,
		config: *cfg,
		logger: logger,
	}, nil
}

// AddConsumerHandler registers a no-publisher handler for the topic.
func (r *Router) AddConsumerHandler(name, topic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) {
	r.router.AddNoPublisherHandler(name, topic, subscriber, handler)
}

// Run starts the router and blocks until the context is canceled or the
// router is closed.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel closed once all handlers are started.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router, waiting up to CloseTimeout for
// in-flight handlers.
func (r *Router) Close() error {
	return r.router.Close()
}
