package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.middleware)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}
		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Get("/modules", g.handleGetAllModules())
			r.Get("/config", g.handleGetConfig())
			r.Post("/config/reload", g.handleReloadConfig())

			r.Get("/environments", g.handleListEnvironments())
			r.Get("/events", g.handleEvents())

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", g.handleListSessions())
				r.Post("/", g.handleSelect())
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", g.handleGetSession())
					r.Delete("/", g.handleDeleteSession())
					r.Put("/", g.handleSelect())
					r.Get("/tools", g.handleTools())
					r.Get("/history", g.handleHistory())
					r.Get("/state", g.handleState())
					r.Get("/source", g.handleSource())
					r.Post("/invoke", g.handleInvoke())
					r.Post("/reset", g.handleReset())
					r.Get("/events", g.handleEvents())
				})
			})
		})
	})

	return r
}
