package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
)

func setupRouter(activeID string) *chi.Mux {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed()), activeID).RegisterRoutes(r)
	return r
}

func TestListPersonas(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter("friendly").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas", nil))

	var items []persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(items) != len(persona.Seed()) {
		t.Fatalf("expected %d personas, got %d", len(persona.Seed()), len(items))
	}
}

func TestActivePersonaFallsBack(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter("missing").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/personas/active", nil))

	var item persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if item.ID != "friendly" {
		t.Fatalf("expected fallback to first persona, got %q", item.ID)
	}
}
