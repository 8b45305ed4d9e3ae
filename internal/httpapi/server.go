package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshgate/meshgate/internal/admission"
	"github.com/meshgate/meshgate/internal/subscriptions"
	"github.com/meshgate/meshgate/pkg/gateway"
	"github.com/meshgate/meshgate/pkg/schema"
)

// Server represents the HTTP API server
type Server struct {
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
}

// Config holds server configuration
type Config struct {
	// Listen is the address to bind, e.g. ":8080"
	Listen string

	// SecretKey signs JWT tokens
	SecretKey string

	// NoAuth bypasses authentication on non-admin endpoints
	NoAuth bool

	// Metrics serves /metrics from this registry when set
	Metrics *prometheus.Registry

	Logger *slog.Logger
}

// NewServer creates a new HTTP API server
func NewServer(gw gateway.Gateway, limiter *admission.Controller, subs *subscriptions.Registry, schemas *schema.Registry, config Config) *Server {
	jwtAuth := NewJWTAuth(config.SecretKey)
	handlers := NewHandlers(gw, jwtAuth, limiter, subs, schemas)
	middleware := NewMiddleware(jwtAuth, config.Logger, config.NoAuth)

	server := &Server{
		handlers:   handlers,
		middleware: middleware,
	}

	router := server.setupRoutes(config.Metrics)
	server.server = &http.Server{
		Addr:           config.Listen,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the configured route tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(metrics *prometheus.Registry) http.Handler {
	r := mux.NewRouter()

	// Apply global middleware
	wrap := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}
	authed := func(handler http.HandlerFunc) http.Handler {
		return wrap(s.middleware.AuthRequired(handler))
	}
	admin := func(handler http.HandlerFunc) http.Handler {
		return wrap(s.middleware.AdminRequired(handler))
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Authentication (no auth required)
	api.Handle("/auth/login", wrap(s.handlers.Login)).Methods(http.MethodPost, http.MethodOptions)

	// Topics
	api.Handle("/topics", authed(s.handlers.ListTopics)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/topics/{topic}", authed(s.handlers.TopicInfo)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/topics/{topic}/samples", authed(s.handlers.ReadSamples)).Methods(http.MethodGet)
	api.Handle("/topics/{topic}/samples", authed(s.handlers.WriteSample)).Methods(http.MethodPost, http.MethodOptions)

	// Subscriptions
	api.Handle("/subscriptions", authed(s.handlers.CreateSubscription)).Methods(http.MethodPost, http.MethodOptions)
	api.Handle("/subscriptions/{id}/samples", authed(s.handlers.PollSubscription)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/subscriptions/{id}", authed(s.handlers.DeleteSubscription)).Methods(http.MethodDelete, http.MethodOptions)

	// Lifecycle
	api.Handle("/disconnect", authed(s.handlers.Disconnect)).Methods(http.MethodPost, http.MethodOptions)

	// Admin (admin auth required, never bypassed)
	api.Handle("/admin/subscriptions", admin(s.handlers.AdminListSubscriptions)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/admin/stats", admin(s.handlers.AdminGetStats)).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/admin/ratelimit", admin(s.handlers.AdminToggleRateLimit)).Methods(http.MethodPut, http.MethodOptions)
	api.Handle("/admin/agents/{agent}/disconnect", admin(s.handlers.AdminDisconnectAgent)).Methods(http.MethodPost, http.MethodOptions)

	// Health (no auth required)
	api.Handle("/health", wrap(s.handlers.Health)).Methods(http.MethodGet, http.MethodOptions)

	// Prometheus metrics (no auth required)
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	}

	return r
}
