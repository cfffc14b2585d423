// Package server is the taglet development server. It renders tags from
// the live registry handle, pushes reloads to browsers over a websocket
// after every swap and exposes status and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/taglet/internal/devmode"
	"github.com/conneroisu/taglet/internal/logging"
)

// Options configures a Server.
type Options struct {
	Host string
	Port int
	// LiveReload injects the reload script into rendered pages.
	LiveReload bool
	// AllowedOrigins are extra websocket origin patterns besides the
	// server's own host.
	AllowedOrigins []string
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP request collectors. Nil disables them.
	Registerer prometheus.Registerer
	Logger     logging.Logger
}

// Server serves the live registry.
type Server struct {
	opts   Options
	handle *devmode.Handle
	orch   *devmode.Orchestrator
	hub    *hub
	logger logging.Logger

	serverMutex sync.RWMutex
	httpServer  *http.Server
}

// New creates a server over orch's handle and subscribes to its swaps.
func New(orch *devmode.Orchestrator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	logger := opts.Logger.WithComponent("server")
	s := &Server{
		opts:   opts,
		handle: orch.Handle(),
		orch:   orch,
		hub:    newHub(logger),
		logger: logger,
	}
	orch.Subscribe(s.onRecompile)
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.opts.Registerer != nil {
		r.Use(newHTTPMetrics(s.opts.Registerer).middleware)
	}

	r.Get("/", s.handleIndex)
	r.Get("/render/{tag}", s.handleRender)
	r.Post("/render/{tag}", s.handleRender)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/api/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Development server listening", "url", "http://"+s.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes websocket clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()

	s.serverMutex.RLock()
	server := s.httpServer
	s.serverMutex.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// onRecompile pushes the outcome of every recompilation to browsers.
func (s *Server) onRecompile(e devmode.Event) {
	switch {
	case e.Swapped && e.State == devmode.StateActive:
		s.hub.broadcast(UpdateMessage{
			Type:       "reload",
			Generation: e.Snapshot.Generation,
			Timestamp:  time.Now(),
		})
	case e.Errors.HasErrors():
		s.hub.broadcast(UpdateMessage{
			Type:      "error",
			Errors:    diagnostics(e.Errors),
			Timestamp: time.Now(),
		})
	}
}
