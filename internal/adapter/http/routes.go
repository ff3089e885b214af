package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Healthz)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
		})

		r.Get("/sessions", h.ListSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/messages", h.GetMessages)
			r.Post("/messages", h.SendMessage)
			r.Get("/turn", h.GetTurn)
			r.Post("/stop", h.StopTurn)
			r.Post("/retry", h.RetryTurn)
			r.Post("/push", h.PushMessage)
		})
	})
}
