// Package httptransport assembles the HTTP surface: middleware chain,
// authenticated application routes, health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphandler "formflow/internal/application/handler"
	"formflow/internal/platform/metrics"
	"formflow/internal/platform/middleware"
	"formflow/pkg/platform/httputil"
)

const requestTimeout = 30 * time.Second

// HealthChecker reports the readiness of one backing dependency.
type HealthChecker func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Applications *apphandler.Handler
	Validator    middleware.JWTValidator
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	// Health maps dependency names to their checks; a failing check turns
	// /healthz into a 503.
	Health map[string]HealthChecker
}

// NewRouter wires the public endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Latency(deps.Metrics))

	r.Get("/healthz", handleHealth(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		deps.Applications.Register(r)
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		checks := make(map[string]string, len(deps.Health))
		for name, check := range deps.Health {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": checks,
		})
	}
}
