package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/partner-scorecard/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	me       RouteRegistrar
	scoring  RouteRegistrar
	partners []RouteRegistrar
	admin    []RouteRegistrar
	exports  RouteRegistrar
	internal RouteRegistrar

	authMiddlewares     []func(http.Handler) http.Handler
	mutationMiddlewares []func(http.Handler) http.Handler
	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and expected route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	authed := append(append([]func(http.Handler) http.Handler{}, cfg.authMiddlewares...), cfg.mutationMiddlewares...)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrars []RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				useAll(group, groupMW)
				registered := false
				for _, registrar := range registrars {
					if registrar != nil {
						registrar(group)
						registered = true
					}
				}
				if !registered {
					registerNotImplemented(group, name)
				}
			})
		}

		// /me and /scoring use colon actions on the group root, so they register on the api router.
		api.Group(func(group chi.Router) {
			useAll(group, authed)
			if cfg.me != nil {
				cfg.me(group)
			} else {
				registerNotImplementedRoute(group, "/me", "me")
				registerNotImplementedRoute(group, "/me:signup", "me")
			}
			if cfg.scoring != nil {
				cfg.scoring(group)
			} else {
				registerNotImplementedRoute(group, "/scoring:preview", "scoring")
				registerNotImplementedRoute(group, "/questions", "scoring")
			}
		})

		mount("/partners", cfg.partners, "partners", authed)
		mount("/admin", cfg.admin, "admin", authed)
		mount("/exports", []RouteRegistrar{cfg.exports}, "exports", cfg.authMiddlewares)
		mount("/internal", []RouteRegistrar{cfg.internal}, "internal", cfg.internalMiddlewares)
	})

	return r
}

func useAll(r chi.Router, mws []func(http.Handler) http.Handler) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAuthMiddlewares configures the authentication chain applied to every group except
// /internal.
func WithAuthMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.authMiddlewares = append(cfg.authMiddlewares, mw...)
	}
}

// WithMutationMiddlewares configures middlewares that run after authentication on groups that
// accept writes, such as idempotency replay.
func WithMutationMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.mutationMiddlewares = append(cfg.mutationMiddlewares, mw...)
	}
}

// WithMeRoutes configures the registrar responsible for caller scoped endpoints.
func WithMeRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.me = reg
	}
}

// WithScoringRoutes configures the registrar responsible for score preview and the question
// catalog.
func WithScoringRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.scoring = reg
	}
}

// WithPartnerRoutes adds registrars to the /partners group.
func WithPartnerRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.partners = append(cfg.partners, reg...)
	}
}

// WithAdminRoutes adds registrars to the /admin group.
func WithAdminRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = append(cfg.admin, reg...)
	}
}

// WithExportRoutes configures the registrar responsible for export endpoints.
func WithExportRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.exports = reg
	}
}

// WithInternalRoutes configures the registrar responsible for internal endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal = reg
	}
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}

func registerNotImplementedRoute(r chi.Router, path string, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc(path, handler)
}
