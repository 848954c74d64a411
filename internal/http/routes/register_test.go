package routes

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/database/migrations"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/handlers"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

func setupTestRouter(t *testing.T) (http.Handler, huma.API) {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services, err := service.NewServices(&config.Config{}, repository.NewRepositories(db), logger)
	if err != nil {
		t.Fatalf("failed to create services: %v", err)
	}

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("test", "0.0.0"))
	Register(api, handlers.NewHandlers(services, logger))
	return router, api
}

func TestLivenessProbe(t *testing.T) {
	router, api := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /livez status = %d, want %d", rec.Code, http.StatusOK)
	}

	// The probe stays out of the published docs.
	if api.OpenAPI().Paths["/livez"] != nil {
		t.Error("/livez should not appear in the OpenAPI spec")
	}
}

func TestHealthRoute(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/v1/health status = %d, want %d", rec.Code, http.StatusOK)
	}
}
