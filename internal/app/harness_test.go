package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kanban/api/internal/authpw"
	"kanban/api/internal/config"
	"kanban/api/internal/store"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

type harness struct {
	t       *testing.T
	store   *store.MemoryStore
	service *Service
	handler http.Handler
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		CORSOrigin: "*",
	}
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(data dataStore, deps Dependencies) *Service {
	svc := New(testConfig(), data, deps, quietLogger())
	svc.passwords = authpw.NewService(data).WithCost(bcrypt.MinCost)
	return svc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	svc := newTestService(st, Dependencies{})
	return &harness{
		t:       t,
		store:   st,
		service: svc,
		handler: NewHTTPServer(svc, "*", quietLogger()).Handler(),
	}
}

func (h *harness) do(method, path, token string, body any) (int, apiResponse) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)

	var resp apiResponse
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			h.t.Fatalf("%s %s: decode response %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr.Code, resp
}

// mustDo performs a request and decodes data into out, failing unless the
// status matches.
func (h *harness) mustDo(method, path, token string, body any, wantStatus int, out any) {
	h.t.Helper()
	status, resp := h.do(method, path, token, body)
	if status != wantStatus {
		h.t.Fatalf("%s %s: status = %d (%s %s), want %d", method, path, status, resp.Code, resp.Message, wantStatus)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			h.t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
}

func (h *harness) register(email, name string) (string, UserView) {
	h.t.Helper()
	var result AuthResult
	h.mustDo(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "secret123", "name": name,
	}, http.StatusCreated, &result)
	return result.AccessToken, result.User
}

// board is a workspace with one space whose four default columns are
// addressable by name.
type board struct {
	workspaceID string
	spaceID     string
	columns     map[string]string
}

func (h *harness) newBoard(token, name string) board {
	h.t.Helper()
	var ws WorkspaceView
	h.mustDo(http.MethodPost, "/api/workspaces", token, map[string]string{"name": name}, http.StatusCreated, &ws)
	var sp BoardSpace
	h.mustDo(http.MethodPost, "/api/workspaces/"+ws.ID+"/spaces", token, map[string]string{"name": "Board"}, http.StatusCreated, &sp)
	b := board{workspaceID: ws.ID, spaceID: sp.ID, columns: map[string]string{}}
	for _, col := range sp.Columns {
		b.columns[col.Name] = col.ID
	}
	return b
}

func (h *harness) createTask(token, columnID, title string) TaskView {
	h.t.Helper()
	var task TaskView
	h.mustDo(http.MethodPost, "/api/columns/"+columnID+"/tasks", token, map[string]string{"title": title}, http.StatusCreated, &task)
	return task
}

func (h *harness) orders(columnID string) map[string]int {
	h.t.Helper()
	tasks, err := h.store.ListTasksByColumn(context.Background(), columnID)
	if err != nil {
		h.t.Fatalf("list tasks: %v", err)
	}
	out := make(map[string]int, len(tasks))
	for _, task := range tasks {
		out[task.Title] = task.Order
	}
	return out
}

func sameOrders(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if got, ok := b[k]; !ok || got != v {
			return false
		}
	}
	return true
}
