// Package api exposes the dispatcher over HTTP for local UI clients.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/suilink/dispatch"
)

// Dispatcher answers tagged requests.
type Dispatcher interface {
	DispatchJSON(ctx context.Context, raw []byte) dispatch.Response
	State(ctx context.Context) (dispatch.State, error)
}

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	dispatcher Dispatcher
	token      string
	limiter    *authLimiter
	audit      *auditLogger
	alertFn    AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithToken requires every dispatch request to carry the bearer token.
func WithToken(token string) Option {
	return func(a *API) { a.token = token }
}

// WithAlertFunc is called when login or signing failures spike.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) { a.alertFn = fn }
}

// New creates a new API instance.
func New(d Dispatcher, opts ...Option) *API {
	a := &API{
		dispatcher: d,
		limiter:    newAuthLimiter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Get("/health", a.Health)

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)
		r.Post("/dispatch", a.Dispatch)
		r.Get("/state", a.State)
	})

	return r
}
