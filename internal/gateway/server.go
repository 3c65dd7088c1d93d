package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flemzord/relayclaw/internal/mcpserver"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics)
	}

	// The MCP endpoint is reached by the local CLI only and has no
	// bearer token to offer.
	if g.mcp != nil {
		r.Handle(mcpserver.Path, g.mcp)
	}

	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.logger))
			if g.events != nil {
				r.Get("/ws/events", g.events.ServeHTTP)
			}
			r.Route("/api", func(r chi.Router) {
				r.Get("/facts", g.handleListFacts())
				r.Get("/jobs", g.handleListJobs())
				r.Post("/jobs/{index}/test", g.handleTestJob())
			})
		})
	}

	return r
}
