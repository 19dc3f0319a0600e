// Package httpserver wires the status API routes into an http.Server.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/server/handlers"
	smw "git.home.luguber.info/inful/cicdsim/internal/server/middleware"
)

const shutdownTimeout = 5 * time.Second

// Options configures the server.
type Options struct {
	Addr    string
	Store   handlers.BuildReader
	Runtime handlers.Runtime

	// Optional: serves GET /metrics when set.
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// Server serves the read-only status API.
type Server struct {
	opts    Options
	logger  *slog.Logger
	router  chi.Router
	adapter *ferrors.HTTPErrorAdapter

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New builds the router. Store is required.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, ferrors.ValidationError("status store is required").Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		adapter: ferrors.NewHTTPErrorAdapter(opts.Logger),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	builds := handlers.NewBuildHandlers(s.opts.Store, s.logger)
	monitoring := handlers.NewMonitoringHandlers(s.opts.Runtime, s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(smw.Chain(s.logger, s.adapter))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.adapter.WriteErrorResponse(w, req, ferrors.NotFoundError("route not found").
			WithContext("path", req.URL.Path).Build())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := ferrors.ValidationError("invalid HTTP method").
			WithContext("method", req.Method).
			WithContext("allowed_method", http.MethodGet).
			Build()
		s.adapter.WriteErrorResponse(w, req, err)
	})

	r.Get("/", builds.HandleIndex)
	r.Get("/healthz", monitoring.HandleHealthCheck)
	r.Route("/builds", func(r chi.Router) {
		r.Get("/", builds.HandleListBuilds)
		r.Get("/{id}", builds.HandleGetBuild)
	})
	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}
	return r
}

// Handler returns the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listen address so bind failures surface before serving,
// then serves in the background.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "http listen failed").
			WithContext("addr", s.opts.Addr).Build()
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.srv, s.ln = srv, ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Run starts the server and blocks until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "http shutdown").Build()
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
