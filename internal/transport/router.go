package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Panel        Panel
	Authenticate func(http.Handler) http.Handler
	Readiness    observability.ReadinessChecks
	Logger       *zap.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and the
// panel routes. Health, readiness and metrics endpoints bypass
// authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if path := deps.Config.Observability.Metrics.Path; deps.Config.Observability.Metrics.Enabled && path != "" {
		r.Handle(path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/panel", func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		if p := deps.Panel; p != nil {
			r.Post("/sales", handleOperation("GetSalesList", p.GetSalesList, logger))
			r.Post("/sales/detail", handleOperation("GetSaleDetail", p.GetSaleDetail, logger))
			r.Post("/cities", handleOperation("GetCities", p.GetCities, logger))
		}
	})

	return r
}
