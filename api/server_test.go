package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"aiharvest/orchestrator"
	"aiharvest/store"
)

// stubStore answers the few calls the handlers make.
type stubStore struct {
	counts  map[string]int
	pingErr error
}

func (s *stubStore) GetByKey(context.Context, string, string, string) (*store.Record, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) Insert(context.Context, *store.Record) error         { return nil }
func (s *stubStore) Update(context.Context, string, *store.Record) error { return nil }
func (s *stubStore) CountByCategory(context.Context) (map[string]int, error) {
	return s.counts, nil
}
func (s *stubStore) Ping(context.Context) error { return s.pingErr }
func (s *stubStore) Close() error               { return nil }

func doRequest(t *testing.T, router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRoutesDegradeWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewServer(orchestrator.New(nil, nil), nil).Router()

	// A missing store must answer 503, never crash the handler.
	for _, path := range []string{"/api/health", "/api/articles/count"} {
		if w := doRequest(t, router, http.MethodGet, path); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d; want 503", path, w.Code)
		}
	}
}

func TestHealthReportsHealthyStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &stubStore{}
	router := NewServer(orchestrator.New(nil, st), st).Router()

	w := doRequest(t, router, http.MethodGet, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestArticleCountTotals(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &stubStore{counts: map[string]int{"repositories": 3, "stackoverflow": 2}}
	router := NewServer(orchestrator.New(nil, st), st).Router()

	w := doRequest(t, router, http.MethodGet, "/api/articles/count")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Total      int            `json:"total"`
		Categories map[string]int `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 5 || body.Categories["repositories"] != 3 {
		t.Fatalf("body = %+v", body)
	}
}
