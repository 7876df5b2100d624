// Package web wires the HTTP server, middleware stack and API routes.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/presensia/presensia/internal/auth"
	"github.com/presensia/presensia/internal/blob"
	"github.com/presensia/presensia/internal/config"
	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/device"
	"github.com/presensia/presensia/internal/identity"
	"github.com/presensia/presensia/internal/ledger"
	"github.com/presensia/presensia/internal/settings"
	"github.com/presensia/presensia/internal/web/middleware"
)

// Deps bundles the wired services the API routes depend on.
type Deps struct {
	TokenConfig auth.TokenConfig
	Gate        *device.Gate
	Matcher     *identity.Matcher
	Issuer      *auth.Issuer
	Ledger      *ledger.Ledger
	Settings    settings.Provider
	Blobs       *blob.Store

	Employees  database.EmployeeReader
	Templates  interface {
		database.TemplateReader
		database.TemplateWriter
	}
	Attendance database.AttendanceReader
}

// Server is the HTTP front of the attendance API.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
}

// NewServer creates a web server with the standard middleware stack and all
// API routes mounted.
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
		deps:   deps,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	slog.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
