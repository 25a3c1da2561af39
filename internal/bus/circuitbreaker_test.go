// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/openarcade/presenced/internal/events"
)

func TestNewCircuitBreaker(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test-breaker")
	cb := NewCircuitBreaker(cfg, nil)

	if cb == nil {
		t.Fatal("Expected non-nil circuit breaker")
	}
	if cb.Name() != "test-breaker" {
		t.Errorf("Expected name=test-breaker, got %s", cb.Name())
	}
	if CircuitBreakerState(cb) != "closed" {
		t.Errorf("Expected initial state=closed, got %s", CircuitBreakerState(cb))
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "open-test",
		MaxRequests:      1,
		Interval:         1 * time.Second,
		Timeout:          1 * time.Second,
		FailureThreshold: 2,
	}
	cb := NewCircuitBreaker(cfg, nil)

	testErr := errors.New("fail")
	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, testErr
		})
	}

	_, err := cb.Execute(func() (interface{}, error) {
		return "should not execute", nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState, got %v", err)
	}
	if CircuitBreakerState(cb) != "open" {
		t.Errorf("Expected state=open, got %s", CircuitBreakerState(cb))
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "recovery-test",
		MaxRequests:      1,
		Interval:         50 * time.Millisecond,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 1,
	}
	cb := NewCircuitBreaker(cfg, nil)

	_, _ = cb.Execute(func() (interface{}, error) {
		return nil, errors.New("fail")
	})
	if CircuitBreakerState(cb) != "open" {
		t.Fatalf("Expected state=open, got %s", CircuitBreakerState(cb))
	}

	time.Sleep(100 * time.Millisecond)

	result, err := cb.Execute(func() (interface{}, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Expected half-open call to succeed, got %v", err)
	}
	if result != "recovered" {
		t.Errorf("Expected 'recovered', got %v", result)
	}
}

func TestPublisher_CircuitBreakerRejectsWhenOpen(t *testing.T) {
	srv := startTestServer(t)

	publisher, err := NewPublisher(DefaultPublisherConfig(srv.ClientURL()), nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { _ = publisher.Close() })

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "publish-test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}, nil)
	publisher.SetCircuitBreaker(cb)

	// Trip the breaker out of band; every publish must now fail fast
	// without touching the transport.
	_, _ = cb.Execute(func() (interface{}, error) {
		return nil, errors.New("fail")
	})

	event := &events.LifecycleEvent{ClientID: 1, Username: "alice"}
	err = publisher.PublishLifecycle(context.Background(), events.RoutingKeyConnected, event)
	if !errors.Is(err, ErrBusUnavailable) {
		t.Errorf("Expected ErrBusUnavailable, got %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState in chain, got %v", err)
	}
}
