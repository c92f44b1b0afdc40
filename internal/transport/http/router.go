// Package httptransport assembles the wallet backend's HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vcwallet/internal/platform/middleware"
	"vcwallet/pkg/platform/httputil"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps are the components served by the router.
type Deps struct {
	// Tokens authenticates app tokens on protected routes.
	Tokens middleware.TokenValidator
	// Signing upgrades /ws to the remote signing channel.
	Signing http.Handler
	// Protected register routes that require an authenticated holder.
	Protected []Registrar
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Checks are readiness checks reported by /health, keyed by component.
	Checks map[string]func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter wires all public endpoints.
func NewRouter(deps Deps) http.Handler {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))

	r.Get("/health", health(deps.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if deps.Signing != nil {
		r.Get("/ws", deps.Signing.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger(deps.Logger))
		r.Use(middleware.RequireAuth(deps.Tokens, deps.Logger))
		for _, registrar := range deps.Protected {
			registrar.Register(r)
		}
	})
	return r
}

func health(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			}
		}
		httputil.WriteJSON(w, status, body)
	}
}
