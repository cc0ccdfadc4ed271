package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/observability"
	"github.com/tourbook/tourbook/internal/platform/httpx"
	"github.com/tourbook/tourbook/internal/recovery"
	"github.com/tourbook/tourbook/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	RecoveryHandler *recovery.Handler
	UsersHandler    *users.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with tourbook defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "Can't find "+r.URL.Path+" on this server!")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "Method "+r.Method+" is not allowed on "+r.URL.Path)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		params.RecoveryHandler.MountRoutes(r)
		params.UsersHandler.MountRoutes(r)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
