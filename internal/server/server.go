// Package server implements the ops HTTP server of the schedule command.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// RunReader is the sync log view the server exposes.
type RunReader interface {
	LatestSyncRun(ctx context.Context) (*model.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
}

// Trigger starts a sync run outside the schedule. TriggerSync returns false
// when a run is already in progress.
type Trigger interface {
	TriggerSync() bool
}

// Options configures the server. Trigger and Gatherer are optional.
type Options struct {
	Runs     RunReader
	Trigger  Trigger
	Gatherer prometheus.Gatherer
}

// Server is the ops HTTP server.
type Server struct {
	opts   Options
	router chi.Router
	addr   string
	srv    *http.Server
	log    *zap.Logger
}

// New creates a new HTTP server listening on addr.
func New(addr string, opts Options) *Server {
	s := &Server{
		opts: opts,
		addr: addr,
		log:  zap.L().With(zap.String("component", "server")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	s.router = r
	s.registerRoutes(r)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("starting server", zap.String("addr", s.addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/health", s.health)

	r.Route("/sync", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/latest", s.latestRun)
		if s.opts.Trigger != nil {
			r.Post("/trigger", s.trigger)
		}
	})

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
