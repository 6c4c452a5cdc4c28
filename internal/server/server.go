// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root for HTTP: handlers, middleware and routes are
// wired here, and nowhere else. main.go builds the collaborators (store,
// session manager, coordinator) and hands them in.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/sakif/studysync/internal/auth"
	"github.com/sakif/studysync/internal/handler"
	"github.com/sakif/studysync/internal/middleware"
)

// Config holds server configuration.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Sessions is what the server needs from the session manager: the session
// endpoints plus the check behind RequireSession. *auth.Manager satisfies it.
type Sessions interface {
	handler.Sessions
	auth.SessionSource
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the routes are built on.
type Deps struct {
	Groups   handler.StudyGroups
	Sessions Sessions
	Store    Pinger
	// Metrics is exposed on /metrics when set.
	Metrics prometheus.Gatherer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Server and sets up its routes.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Groups == nil || deps.Sessions == nil {
		return nil, errors.New("server: groups and sessions are required")
	}
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                        → liveness + store ping
// GET    /metrics                        → Prometheus (when enabled)
// POST   /api/session                    → sign in with a token
// DELETE /api/session                    → sign out
// POST   /api/session/refresh            → re-issue the token      [session]
// GET    /api/groups                     → current collection      [session]
// POST   /api/groups/refetch             → reload from the backend [session]
// POST   /api/groups                     → create                  [session]
// PATCH  /api/groups/{id}                → update (owner only)     [session]
// DELETE /api/groups/{id}                → delete (owner only)     [session]
// POST   /api/groups/{id}/join           → join                    [session]
// POST   /api/groups/{id}/leave          → leave                   [session]
// GET    /api/groups/{id}/membership     → isMember / isOwner      [session]
//
// Middleware order: RequestID → RealIP → Logger → Recoverer.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}

	sessionHandler := handler.NewSessionHandler(s.deps.Sessions, s.logger)
	groupsHandler := handler.NewGroupsHandler(s.deps.Groups, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/session", sessionHandler.HandleSignIn)
		r.Delete("/session", sessionHandler.HandleSignOut)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(s.deps.Sessions))

			r.Post("/session/refresh", sessionHandler.HandleRefresh)

			r.Get("/groups", groupsHandler.HandleList)
			r.Post("/groups", groupsHandler.HandleCreate)
			r.Post("/groups/refetch", groupsHandler.HandleRefetch)
			r.Patch("/groups/{id}", groupsHandler.HandleUpdate)
			r.Delete("/groups/{id}", groupsHandler.HandleDelete)
			r.Post("/groups/{id}/join", groupsHandler.HandleJoin)
			r.Post("/groups/{id}/leave", groupsHandler.HandleLeave)
			r.Get("/groups/{id}/membership", groupsHandler.HandleMembership)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", slog.String("error", err.Error()))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q}`+"\n", status)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait for in-flight requests to finish (30s timeout)
// Closing the store is the caller's job, after Start returns.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
