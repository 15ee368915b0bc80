// Package api exposes the credentials service over a JSON REST API.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-openapi/runtime/middleware"

	"github.com/ledgerkeep/ledgerkeep/credentials"
)

const defaultRevealLimit = 30

// API holds the dependencies needed by the REST handlers.
type API struct {
	credentials *credentials.Service
	auth        TokenVerifier
	audit       *auditLogger
	alerts      *metricsCollector
	webhook     *auditWebhook
	metrics     *Metrics
	revealLimit int
}

//go:embed openapi.yaml
var openapiDocument []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAlertFunc registers a callback for anomaly alerts such as a spike in
// failed credential reveals.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alerts = newMetricsCollector(fn)
	}
}

// WithAuditWebhook forwards every audit event to url as JSON. authHeader is
// an optional "Header: Value" pair sent with each request.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhook = newAuditWebhook(url, authHeader)
	}
}

// WithMetrics records request and credential operation metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithRevealRateLimit caps how many credentials one user may reveal per minute.
func WithRevealRateLimit(n int) Option {
	return func(a *API) {
		a.revealLimit = n
	}
}

// New creates a new API instance. Requests are authenticated with auth.
func New(svc *credentials.Service, auth TokenVerifier, opts ...Option) *API {
	a := &API{
		credentials: svc,
		auth:        auth,
		revealLimit: defaultRevealLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	a.audit.metrics = a.alerts
	a.audit.webhook = a.webhook
	return a
}

// Close flushes pending audit webhook deliveries.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	if a.metrics != nil {
		r.Use(a.metrics.Middleware)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDocument)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Route("/credentials", func(r chi.Router) {
		r.Use(SecurityHeaders)
		r.Use(a.AuthMiddleware)
		r.Get("/", a.ListCredentials)
		r.Post("/", a.CreateCredential)
		r.With(a.revealLimiter()).Get("/{name}", a.GetCredential)
		r.Put("/{name}", a.UpdateCredential)
		r.Delete("/{name}", a.DeleteCredential)
	})

	return r
}

// revealLimiter limits reveals per authenticated user rather than per address,
// since many users can share one egress IP.
func (a *API) revealLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(a.revealLimit, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return identityFromContext(r.Context()).UserID, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			a.audit.logEvent(AuditRevealRateLimited, r, identityFromContext(r.Context()).UserID)
			writeError(w, http.StatusTooManyRequests, "too many requests")
		}),
	)
}
