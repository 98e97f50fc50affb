package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openpdv/pdvhost/internal/handler"
	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/middleware"
	"github.com/openpdv/pdvhost/internal/model"
)

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	Logger  *slog.Logger
	Version string

	Gate    middleware.Authorizer
	Limiter middleware.Limiter
	Metrics metrics.Recorder
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	Sync   *handler.SyncHandler
	Health *handler.HealthHandler

	IsDevelopment   bool
	MinAuthDuration time.Duration

	RateLimitEnabled bool
	AccountRPM       int
	AccountBurst     int
	IPRPM            int
	IPBurst          int
}

// NewRouter builds the chi router. Every sync route sits behind the
// authorization middleware; help, health and metrics routes do not.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	h := handler.New(cfg.Version)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Healthz)
		r.Get("/readyz", cfg.Health.Readyz)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:       cfg.Logger,
		Limiter:      cfg.Limiter,
		Metrics:      cfg.Metrics,
		Enabled:      cfg.RateLimitEnabled,
		AccountRPM:   cfg.AccountRPM,
		AccountBurst: cfg.AccountBurst,
		IPRPM:        cfg.IPRPM,
		IPBurst:      cfg.IPBurst,
	}

	r.Route(handler.BasePath, func(r chi.Router) {
		r.Get("/", h.Help)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Use(middleware.Authorize(middleware.AuthorizeConfig{
				Logger:      cfg.Logger,
				Gate:        cfg.Gate,
				Metrics:     cfg.Metrics,
				Role:        model.RoleTerminal,
				MinDuration: cfg.MinAuthDuration,
			}))
			r.Use(middleware.RateLimitAccount(rateLimitCfg))

			cfg.Sync.Mount(r)
		})
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
