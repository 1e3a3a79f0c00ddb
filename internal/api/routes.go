package api

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig configures Router.
type RouterConfig struct {
	// Interceptors wrap every RPC, outermost first.
	Interceptors []connect.Interceptor

	// Gatherer is served at /metrics when set.
	Gatherer prometheus.Gatherer

	// Google serves /auth/google when set.
	Google *GoogleHandler
}

// Router mounts the RPC handlers and the plain HTTP endpoints.
func (s *Server) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Google != nil {
		r.Mount("/auth/google", cfg.Google.Routes())
	}

	for _, rt := range s.routes(connect.WithInterceptors(cfg.Interceptors...)) {
		r.Handle(rt.path, rt.handler)
	}
	return r
}
