package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockFeed struct{ joined bool }

func (m *mockFeed) IsJoined() bool { return m.joined }

type mockPeers struct{ n int }

func (m *mockPeers) PeerCount() int { return m.n }

type mockDBChecker struct{ err error }

func (m *mockDBChecker) Ping(_ context.Context) error { return m.err }

func newTestServer(feedJoined bool) *Server {
	logger := zap.NewNop()
	f := &mockFeed{joined: feedJoined}
	p := &mockPeers{n: 3}
	// nil pool — readyz will report postgres as "error".
	return NewServer(":0", nil, f, p, logger)
}

func newTestServerWithDB(db DBChecker, feedJoined bool) *Server {
	s := newTestServer(feedJoined)
	s.dbChecker = db
	return s
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", body["status"])
	}
}

func TestHealthz_ContentType(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
}

func TestReadyz_NotReady_FeedNotJoined(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%v'", body["status"])
	}

	checks := body["checks"].(map[string]any)
	if checks["feed"] != "not_joined" {
		t.Errorf("expected feed 'not_joined', got '%v'", checks["feed"])
	}
	if checks["postgres"] != "error" {
		t.Errorf("expected postgres 'error' (nil pool), got '%v'", checks["postgres"])
	}
}

func TestReadyz_FeedJoinedButDBDown(t *testing.T) {
	s := newTestServer(true)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 (DB down), got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	checks := body["checks"].(map[string]any)
	if checks["feed"] != "ok" {
		t.Errorf("expected feed 'ok', got '%v'", checks["feed"])
	}
	if checks["postgres"] != "error" {
		t.Errorf("expected postgres 'error', got '%v'", checks["postgres"])
	}
}

func TestReadyz_ContentType(t *testing.T) {
	s := newTestServer(false)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	db := &mockDBChecker{err: nil}
	s := newTestServerWithDB(db, true)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("expected status 'ready', got '%v'", body["status"])
	}

	checks := body["checks"].(map[string]any)
	if checks["postgres"] != "ok" {
		t.Errorf("expected postgres 'ok', got '%v'", checks["postgres"])
	}
	if checks["feed"] != "ok" {
		t.Errorf("expected feed 'ok', got '%v'", checks["feed"])
	}
	if checks["peers_active"] != "3" {
		t.Errorf("expected peers_active '3', got '%v'", checks["peers_active"])
	}
}
