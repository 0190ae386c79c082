package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lifepress/internal/postservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *postservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/types", h.Types)

	// Posts.
	r.Post("/posts/derive", h.Derive)
	r.Get("/posts/stats", h.Stats)
	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.Save)
	r.Get("/posts/*", h.GetPost)
	r.Get("/files/*", h.GetFile)

	// Editor.
	r.Post("/preview", h.Preview)
	r.Get("/draft", h.GetDraft)
	r.Put("/draft", h.PutDraft)
	r.Delete("/draft", h.DeleteDraft)

	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
