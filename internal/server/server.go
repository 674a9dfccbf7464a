// Package server exposes the generation pipeline over HTTP: a health
// probe, generate and review endpoints, the template library, and
// project file management under the configured output directory.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/events"
	"github.com/gameforge/forge/internal/orchestrator"
	"github.com/gameforge/forge/internal/store"
	"github.com/gameforge/forge/internal/templates"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8001"

	// DefaultVersion is reported by the health endpoint when the build
	// does not inject one.
	DefaultVersion = "1.0.0"

	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
	maxBodyBytes           = 4 << 20
)

// DefaultAllowedOrigins matches the local dev frontend.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// Generator runs generation and review flows against the configured
// backend order.
type Generator interface {
	GenerateGame(ctx context.Context, sessionID, prompt string, opts orchestrator.Options) (*backend.Result, error)
	ReviewGame(ctx context.Context, sessionID, code, feedback string) (*backend.Result, error)
	Describe() []backend.Descriptor
}

// EventPublisher publishes server lifecycle events.
type EventPublisher interface {
	Publish(event events.Event)
}

// Config carries the listener settings. MaxTurns is forwarded to the
// generator on every request; zero keeps the backend default.
type Config struct {
	Addr            string
	Version         string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	MaxTurns        int
}

// Server wires the generation pipeline, file store, and template
// library behind an HTTP API.
type Server struct {
	generator       Generator
	files           *store.Store
	library         *templates.Library
	bus             EventPublisher
	logger          *log.Logger
	version         string
	allowedOrigins  []string
	shutdownTimeout time.Duration
	maxTurns        int
	http            *http.Server
}

// New validates the dependencies and builds a server around them.
func New(cfg Config, gen Generator, files *store.Store, library *templates.Library, bus EventPublisher, logger *log.Logger) (*Server, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if files == nil {
		return nil, errors.New("file store is required")
	}
	if library == nil {
		return nil, errors.New("template library is required")
	}
	if bus == nil {
		return nil, errors.New("event publisher is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		generator:       gen,
		files:           files,
		library:         library,
		bus:             bus,
		logger:          logger,
		version:         cfg.Version,
		allowedOrigins:  cfg.AllowedOrigins,
		shutdownTimeout: cfg.ShutdownTimeout,
		maxTurns:        cfg.MaxTurns,
	}
	if s.version == "" {
		s.version = DefaultVersion
	}
	if len(s.allowedOrigins) == 0 {
		s.allowedOrigins = DefaultAllowedOrigins
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler builds the full middleware-wrapped route table. It is exposed
// separately from Run so tests can drive it without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/review", s.handleReview)
	mux.HandleFunc("GET /api/templates/{gameType}", s.handleTemplate)
	mux.HandleFunc("GET /api/projects", s.handleListFiles)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{project}/files", s.handleProjectFiles)
	mux.HandleFunc("GET /api/projects/{project}/files/{filename}", s.handleProjectFile)
	return s.withRequestID(s.withCORS(s.withAccessLog(mux)))
}

// Run serves until ctx is canceled, then drains in-flight requests
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("api server listening", "addr", s.http.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", s.http.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}
