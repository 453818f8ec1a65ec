// Package server exposes the question router and index administration over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yates-Labs/lectern/internal/rag"
	"github.com/Yates-Labs/lectern/internal/router"
)

// Answerer routes a question to an answer.
type Answerer interface {
	Answer(ctx context.Context, req router.Request) (*router.Result, error)
}

// IndexController is the part of the index the server manages.
type IndexController interface {
	Load(ctx context.Context) (*rag.Snapshot, error)
	Invalidate()
}

// Rebuilder runs corpus ingestion and returns the number of chunks indexed.
type Rebuilder interface {
	RebuildIndex(ctx context.Context) (int, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string

	// AdminToken enables the index administration endpoints when non-empty.
	AdminToken string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	Version string
}

// DefaultConfig returns the default listen address and timeouts.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    64 << 10,
	}
}

// Server serves the assistant API.
type Server struct {
	config    Config
	answerer  Answerer
	index     IndexController
	rebuilder Rebuilder
	logger    zerolog.Logger
	health    *healthRegistry
}

// New creates a server. rebuilder may be nil, which disables the rebuild
// endpoint even when an admin token is configured.
func New(config Config, answerer Answerer, index IndexController, rebuilder Rebuilder, logger zerolog.Logger) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("index cannot be nil")
	}
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}

	s := &Server{
		config:    config,
		answerer:  answerer,
		index:     index,
		rebuilder: rebuilder,
		logger:    logger.With().Str("component", "server").Logger(),
		health:    newHealthRegistry(),
	}
	s.RegisterCheck("index", IndexHealthChecker(index))
	return s, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assistant", s.handleAssistant)
	if s.config.AdminToken != "" {
		if s.rebuilder != nil {
			mux.Handle("POST /api/index/rebuild", s.requireAdmin(http.HandlerFunc(s.handleRebuild)))
		}
		mux.Handle("POST /api/index/reload", s.requireAdmin(http.HandlerFunc(s.handleReload)))
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /livez", s.handleLive)
	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.SetLive(false)
	s.logger.Info().Dur("timeout", s.config.ShutdownTimeout).Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		event := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
