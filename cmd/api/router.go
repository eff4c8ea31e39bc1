package main

import (
	"net/http"

	"cardcore/internal/authorization"
	"cardcore/internal/card"
	"cardcore/internal/ledger"
	"cardcore/internal/processor"
	"cardcore/internal/settlement"
	"cardcore/internal/storage"
	"cardcore/pkg/cache"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// apiDeps bundles the services and repositories the HTTP handlers call
// into. Handlers never touch a repository or pipeline's internals
// directly; they translate an HTTP request into a pipeline call and a
// pipeline response into an HTTP response.
type apiDeps struct {
	db          *storage.DB
	cardRepo    *card.Repository
	mappingRepo *card.MappingRepository
	authStore   *ledger.AuthorizationStore
	authSvc     *authorization.Service
	settleSvc   *settlement.Service
	processors  map[string]processor.Adapter
}

func newRouter(deps *apiDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", deps.handleHealthz)

	r.Post("/authorizations", deps.handleAuthorize)
	r.Post("/settlement/clear/{authorizationId}", deps.handleClear)
	r.Post("/settlement/release/{authorizationId}", deps.handleRelease)
	r.Post("/settlement/reverse/{authorizationId}", deps.handleReverse)

	r.Post("/cards", deps.handleCreateCard)
	r.Get("/cards/{id}", deps.handleGetCard)
	r.Post("/cards/{id}/freeze", deps.handleFreezeCard)
	r.Post("/cards/{id}/unfreeze", deps.handleUnfreezeCard)
	r.Post("/cards/{id}/close", deps.handleCloseCard)

	r.Post("/webhooks/processor/{processor}/authorize", deps.handleWebhookAuthorize)
	r.Post("/webhooks/processor/{processor}/clear", deps.handleWebhookClear)
	r.Post("/webhooks/processor/{processor}/reverse", deps.handleWebhookReverse)

	return r
}

func (d *apiDeps) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := d.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db unreachable")
		return
	}
	if err := cache.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "cache unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
}
