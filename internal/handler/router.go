package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/philosophers/agora/backend/internal/handler/persona"
	"github.com/philosophers/agora/backend/internal/handler/session"
	middlewarePkg "github.com/philosophers/agora/backend/internal/middleware"
	personaModel "github.com/philosophers/agora/backend/internal/model/persona"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas *personaModel.Registry, s session.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		session.New(s).RegisterRoutes(api)
	})

	return r
}
