// Package server provides unit tests for the HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/qualivida/portalsync/internal/data"
	"github.com/qualivida/portalsync/internal/remote"
	"github.com/qualivida/portalsync/internal/store"
)

// stubRowStore fails or succeeds wholesale.
type stubRowStore struct {
	mu   sync.Mutex
	fail bool
}

func (s *stubRowStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *stubRowStore) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *stubRowStore) Select(ctx context.Context, table string, filter map[string]string) ([]remote.Row, error) {
	return nil, s.err()
}

func (s *stubRowStore) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	return row, s.err()
}

func (s *stubRowStore) Update(ctx context.Context, table, id string, patch remote.Row) error {
	return s.err()
}

func (s *stubRowStore) Delete(ctx context.Context, table, id string) error {
	return s.err()
}

func newTestRouter(t *testing.T) (*gin.Engine, *data.Facade) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	facade := data.NewFacade(store.NewCache(db), store.NewOutbox(db), &stubRowStore{},
		data.WithReachable(func() bool { return false }))
	return NewRouter(facade), facade
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHealthz checks the liveness endpoint.
func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// TestWriteThenRead verifies a POSTed row is served back from the
// cache and shows up as a pending outbox entry in the status.
func TestWriteThenRead(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/data/residents",
		`{"id":"r1","name":"Ana"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/api/v1/data/residents", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var result struct {
		Rows      []remote.Row `json:"rows"`
		FromCache bool         `json:"from_cache"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !result.FromCache {
		t.Error("expected from_cache")
	}
	if len(result.Rows) != 1 || result.Rows[0]["name"] != "Ana" {
		t.Errorf("unexpected rows: %v", result.Rows)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/sync/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status struct {
		Outbox struct {
			Pending int `json:"pending"`
		} `json:"outbox"`
	}
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Outbox.Pending != 1 {
		t.Errorf("expected 1 pending entry, got %d", status.Outbox.Pending)
	}
}

// TestUpdateAndDeleteRoutes verifies the id-bearing routes.
func TestUpdateAndDeleteRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	doRequest(router, http.MethodPost, "/api/v1/data/packages", `{"id":"p1"}`)

	w := doRequest(router, http.MethodPut, "/api/v1/data/packages/p1", `{"status":"delivered"}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 for PUT, got %d", w.Code)
	}

	w = doRequest(router, http.MethodDelete, "/api/v1/data/packages/p1", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 for DELETE, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/data/packages", "")
	var result struct {
		Rows []remote.Row `json:"rows"`
	}
	json.Unmarshal(w.Body.Bytes(), &result)
	if len(result.Rows) != 0 {
		t.Errorf("expected empty partition after delete, got %v", result.Rows)
	}
}

// TestBadJSONRejected verifies malformed bodies are a 400.
func TestBadJSONRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/data/residents", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// TestTriggerAndRetry verifies the sync control endpoints respond
// without blocking.
func TestTriggerAndRetry(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/sync/trigger", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 for trigger, got %d", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/api/v1/sync/retry", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for retry, got %d", w.Code)
	}
	var resp struct {
		Requeued int `json:"requeued"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Requeued != 0 {
		t.Errorf("expected 0 re-queued with empty outbox, got %d", resp.Requeued)
	}
}
