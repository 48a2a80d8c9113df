package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chatservice "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/events"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/room"
	"github.com/zhouzirui/z-chatroom/backend/internal/storage"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	store := room.Open(context.Background(), storage.NewMemoryBackend(), "chatRooms")
	svc := chatservice.NewService(store, nil, chatservice.Options{SystemPrompt: "You are a helpful assistant."}, bus)
	return NewRouter(svc, bus)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["completion"] != false {
		t.Fatalf("expected completion unavailable, got %v", body["completion"])
	}
}

func TestAPIRoutesMounted(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/rooms", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json response, got %q", ct)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	if resp.Code != http.StatusOK || !strings.HasPrefix(strings.TrimSpace(resp.Body.String()), "[") {
		t.Fatalf("unexpected list response %d %s", resp.Code, resp.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "chatroom_http_requests_total") {
		t.Fatal("expected http request counter in metrics output")
	}
}
