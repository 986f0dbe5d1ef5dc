package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events, the only route that
// also accepts the token as a query parameter.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	if sseHandler != nil {
		r.With(StreamAuthMiddleware(authEnabled, token)).Get("/events", sseHandler.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Note list.
		r.Get("/notes", h.ListNotes)
		r.Route("/notes/{id}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.Delete("/", h.DeleteNote)
			r.Post("/copy", h.CopyNote)
			r.Get("/pick", h.PickNote)
		})

		// Editor sessions.
		r.Post("/sessions", h.StartSession)
		r.Route("/sessions/{sid}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Put("/body", h.SetBody)
			r.Post("/suspend", h.Suspend)
			r.Post("/exit", h.Exit)
			r.Post("/save", h.Save)
			r.Post("/revert", h.Revert)
			r.Post("/delete", h.DeleteSessionNote)
			r.Post("/export", h.ExportSession)
		})

		r.Get("/exports", h.ListExports)

		r.Get("/clipboard", h.GetClipboard)
		r.Put("/clipboard", h.PutClipboard)
	})

	return r
}
