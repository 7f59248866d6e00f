// Package server exposes the package index over HTTP using the gem index
// URL layout.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/frederic-klein/stickler/internal/loader"
	"github.com/frederic-klein/stickler/internal/logging"
)

// Config configures a Server.
type Config struct {
	// Source provides the index each request is answered from.
	Source loader.Source
	// ArchiveRoot is the directory package archives are served from.
	ArchiveRoot string
	// MarshalVersion is the format tag embedded in index URLs, e.g. "4.8".
	MarshalVersion string
	Logger         *slog.Logger
}

// Server answers index requests.
type Server struct {
	source      loader.Source
	archiveRoot string
	routes      []route
	logger      *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// New creates a new Server.
func New(cfg Config) *Server {
	s := &Server{
		source:      cfg.Source,
		archiveRoot: cfg.ArchiveRoot,
		logger:      logging.Default(cfg.Logger).With("component", "server"),
	}
	s.routes = s.buildRoutes(cfg.MarshalVersion)
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.logMiddleware(http.HandlerFunc(s.dispatch))
}

// Serve serves on listener until Stop is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server starting", "addr", listener.Addr().String())

	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeTCP listens on addr and serves until Stop is called.
func (s *Server) ServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("server stopping")
	return srv.Shutdown(ctx)
}

const requestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
