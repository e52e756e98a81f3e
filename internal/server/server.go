// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/config"
	apierrors "github.com/frozlabs/todovault/internal/errors"
	"github.com/frozlabs/todovault/internal/handler"
	"github.com/frozlabs/todovault/internal/health"
	"github.com/frozlabs/todovault/internal/metrics"
	"github.com/frozlabs/todovault/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	attacher     *middleware.TenantAttacher
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	attacher *middleware.TenantAttacher,
	healthCheck *health.HealthCheck,
	errorHandler *apierrors.Handler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		attacher:     attacher,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger, s.metrics),
		middleware.CORS([]string{"*"}),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Account and session lifecycle (no tenant attachment)
	v1.HandleFunc("/auth/register", s.handlers.Register).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", s.handlers.Login).Methods(http.MethodPost)
	v1.HandleFunc("/auth/logout", s.handlers.Logout).Methods(http.MethodPost)
	v1.HandleFunc("/auth/validate", s.handlers.Validate).Methods(http.MethodGet)
	v1.HandleFunc("/guest/session", s.handlers.StartGuest).Methods(http.MethodPost)
	v1.HandleFunc("/guest/session", s.handlers.EndGuest).Methods(http.MethodDelete)

	// Todo routes run behind the tenant attacher: every handler below sees a
	// pool bound to exactly the resolved identity's store.
	todos := v1.PathPrefix("/todos").Subrouter()
	todos.Use(s.attacher.Attach)
	todos.HandleFunc("", s.handlers.ListTodos).Methods(http.MethodGet)
	todos.HandleFunc("", s.handlers.CreateTodo).Methods(http.MethodPost)
	todos.HandleFunc("/{id:[0-9]+}", s.handlers.GetTodo).Methods(http.MethodGet)
	todos.HandleFunc("/{id:[0-9]+}", s.handlers.UpdateTodo).Methods(http.MethodPatch)
	todos.HandleFunc("/{id:[0-9]+}/toggle", s.handlers.ToggleTodo).Methods(http.MethodPost)
	todos.HandleFunc("/{id:[0-9]+}", s.handlers.DeleteTodo).Methods(http.MethodDelete)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
