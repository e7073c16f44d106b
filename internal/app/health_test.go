package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"kanban/api/internal/session"
	"kanban/api/internal/store"
)

type unreachableStore struct {
	*store.MemoryStore
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/health", "/api/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rr.Code)
		}
	}
}

func redisSessions(t *testing.T, down bool) Dependencies {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if down {
		mr.Close()
	}
	return Dependencies{Sessions: session.NewRedisStore(client)}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		data       dataStore
		deps       func(t *testing.T) Dependencies
		wantStatus int
		wantOK     bool
		wantChecks map[string]string
	}{
		{
			name:       "database reachable",
			data:       store.NewMemoryStore(),
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantChecks: map[string]string{"database": "ok"},
		},
		{
			name:       "database down",
			data:       unreachableStore{store.NewMemoryStore()},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     false,
			wantChecks: map[string]string{"database": "error"},
		},
		{
			name:       "redis sessions reachable",
			data:       store.NewMemoryStore(),
			deps:       func(t *testing.T) Dependencies { return redisSessions(t, false) },
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantChecks: map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name:       "redis sessions down",
			data:       store.NewMemoryStore(),
			deps:       func(t *testing.T) Dependencies { return redisSessions(t, true) },
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     false,
			wantChecks: map[string]string{"database": "ok", "redis": "error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Dependencies{}
			if tt.deps != nil {
				deps = tt.deps(t)
			}
			server := NewHTTPServer(newTestService(tt.data, deps), "*", quietLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var body struct {
				OK     bool `json:"ok"`
				Checks map[string]struct {
					Status string `json:"status"`
				} `json:"checks"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.OK != tt.wantOK {
				t.Fatalf("ok = %v, want %v", body.OK, tt.wantOK)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %+v, want %v", body.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name].Status; got != want {
					t.Fatalf("%s check = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	h := newHarness(t)
	status, resp := h.do(http.MethodGet, "/nope", "", nil)
	if status != http.StatusNotFound || resp.Success || resp.Code != "NOT_FOUND" {
		t.Fatalf("got %d %+v", status, resp)
	}
}
