// Presenced - Player Identity and Presence Synchronization
// Copyright 2026 OpenArcade
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openarcade/presenced

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/openarcade/presenced/internal/config"
	"github.com/openarcade/presenced/internal/presence"
	"github.com/openarcade/presenced/internal/store"
)

// fakeStore is an in-memory PlayerStore for handler tests.
type fakeStore struct {
	players map[string]*store.Player
	nextID  int64
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{players: make(map[string]*store.Player)}
}

func (f *fakeStore) FindByUsername(_ context.Context, username string) (*store.Player, error) {
	p, ok := f.players[username]
	if !ok {
		return nil, store.ErrPlayerNotFound
	}
	return p, nil
}

func (f *fakeStore) CreatePlayer(_ context.Context, username string) (*store.Player, error) {
	if _, ok := f.players[username]; ok {
		return nil, store.ErrUsernameConflict
	}
	f.nextID++
	p := &store.Player{ID: f.nextID, Username: username, Level: 1, CreatedAt: time.Now()}
	f.players[username] = p
	return p, nil
}

func (f *fakeStore) ListPlayers(_ context.Context, limit, offset int) ([]store.Player, error) {
	players := make([]store.Player, 0, len(f.players))
	for _, p := range f.players {
		players = append(players, *p)
	}
	if offset >= len(players) {
		return nil, nil
	}
	players = players[offset:]
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}

func (f *fakeStore) CountPlayers(_ context.Context) (int64, error) {
	return int64(len(f.players)), nil
}

func (f *fakeStore) Ping(_ context.Context) error {
	return f.pingErr
}

// fakePresence is a PresenceReader backed by a map.
type fakePresence struct {
	statuses map[int64]presence.Status
	getErr   error
	pingErr  error
}

func newFakePresence() *fakePresence {
	return &fakePresence{statuses: make(map[int64]presence.Status)}
}

func (f *fakePresence) GetStatus(_ context.Context, playerID int64) (presence.Status, error) {
	if f.getErr != nil {
		return presence.StatusOffline, f.getErr
	}
	status, ok := f.statuses[playerID]
	if !ok {
		return presence.StatusOffline, nil
	}
	return status, nil
}

func (f *fakePresence) Ping(_ context.Context) error {
	return f.pingErr
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:    "127.0.0.1",
		Port:    8081,
		Timeout: 10 * time.Second,
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	return &resp
}

func TestCreatePlayer(t *testing.T) {
	st := newFakeStore()
	router := NewRouter(NewHandler(st, newFakePresence()), testServerConfig())

	t.Run("creates player", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/players",
			strings.NewReader(`{"username": "alice"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeResponse(t, rec)
		if resp.Status != "success" {
			t.Errorf("Expected success, got %s", resp.Status)
		}
	})

	t.Run("duplicate conflicts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/players",
			strings.NewReader(`{"username": "alice"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("Expected 409, got %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Error == nil || resp.Error.Code != "USERNAME_TAKEN" {
			t.Errorf("Expected USERNAME_TAKEN error, got %+v", resp.Error)
		}
	})

	t.Run("missing username rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/players",
			strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/players",
			strings.NewReader(`not json`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestGetPlayer(t *testing.T) {
	st := newFakeStore()
	if _, err := st.CreatePlayer(context.Background(), "alice"); err != nil {
		t.Fatalf("Failed to seed player: %v", err)
	}
	router := NewRouter(NewHandler(st, newFakePresence()), testServerConfig())

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/players/alice", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"username":"alice"`) {
			t.Errorf("Expected player in body, got %s", rec.Body.String())
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/players/nobody", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rec.Code)
		}
	})
}

func TestGetPlayerStatus(t *testing.T) {
	st := newFakeStore()
	p, err := st.CreatePlayer(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Failed to seed player: %v", err)
	}
	pres := newFakePresence()

	router := NewRouter(NewHandler(st, pres), testServerConfig())

	t.Run("online", func(t *testing.T) {
		pres.statuses[p.ID] = presence.StatusOnline

		req := httptest.NewRequest(http.MethodGet, "/api/v1/players/alice/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"online"`) {
			t.Errorf("Expected online status, got %s", rec.Body.String())
		}
	})

	t.Run("absent presence reads offline", func(t *testing.T) {
		delete(pres.statuses, p.ID)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/players/alice/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"offline"`) {
			t.Errorf("Expected offline status, got %s", rec.Body.String())
		}
	})

	t.Run("unknown player 404s", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/players/nobody/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("cache failure degrades to 503", func(t *testing.T) {
		pres.getErr = errors.New("connection refused")
		defer func() { pres.getErr = nil }()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/players/alice/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503, got %d", rec.Code)
		}
	})
}

func TestListPlayers(t *testing.T) {
	st := newFakeStore()
	for _, name := range []string{"alice", "bob"} {
		if _, err := st.CreatePlayer(context.Background(), name); err != nil {
			t.Fatalf("Failed to seed player: %v", err)
		}
	}
	router := NewRouter(NewHandler(st, newFakePresence()), testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/players", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Metadata.Count != 2 {
		t.Errorf("Expected count 2, got %d", resp.Metadata.Count)
	}
}

func TestHealth(t *testing.T) {
	t.Run("live always succeeds", func(t *testing.T) {
		router := NewRouter(NewHandler(newFakeStore(), newFakePresence()), testServerConfig())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
	})

	t.Run("ready reports degraded store", func(t *testing.T) {
		st := newFakeStore()
		st.pingErr = errors.New("database closed")
		router := NewRouter(NewHandler(st, newFakePresence()), testServerConfig())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503, got %d", rec.Code)
		}
	})

	t.Run("ready succeeds with healthy dependencies", func(t *testing.T) {
		router := NewRouter(NewHandler(newFakeStore(), newFakePresence()), testServerConfig())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
	})
}
