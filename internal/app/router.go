package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-ops/meridian-ops/internal/auth"
	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/negotiation"
	"github.com/meridian-ops/meridian-ops/internal/observability"
	"github.com/meridian-ops/meridian-ops/internal/party"
	"github.com/meridian-ops/meridian-ops/internal/purchasing"
	"github.com/meridian-ops/meridian-ops/internal/sales"
	"github.com/meridian-ops/meridian-ops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	TokenStore         *auth.TokenStore
	CatalogHandler     *catalog.Handler
	PartyHandler       *party.Handler
	PurchasingHandler  *purchasing.Handler
	SalesHandler       *sales.Handler
	NegotiationHandler *negotiation.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		params.AuthHandler.MountPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(params.TokenStore))
			params.AuthHandler.MountRoutes(r)
			params.CatalogHandler.MountRoutes(r)
			params.PartyHandler.MountRoutes(r)
			params.PurchasingHandler.MountRoutes(r)
			params.SalesHandler.MountRoutes(r)
			params.NegotiationHandler.MountRoutes(r)
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
