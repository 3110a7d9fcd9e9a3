package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halvard/tiwaz/internal/taskservice"
	"github.com/halvard/tiwaz/internal/tasks"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// publish, if non-nil, receives every change batch for broadcast.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *taskservice.Service, authEnabled bool, token string, publish func([]tasks.Change), sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, publish)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Task index.
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks/reorder", h.Reorder)
	r.Get("/tasks/{id}", h.GetTask)
	r.Post("/tasks/{id}/toggle", h.ToggleTask)

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
