package starter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/narravox/narravox/backend/internal/model/starter"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(starter.NewMemoryStore(starter.Seed(), starter.SurprisePrompts())).RegisterRoutes(r)
	return r
}

func TestListStarters(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/starters", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "cyberpunk-jazz") {
		t.Fatalf("expected seed starters, got %s", resp.Body.String())
	}
}

func TestGetStarter(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/starters/romance-vinyl", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/starters/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
