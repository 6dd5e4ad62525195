// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the host-facing HTTP API of the daemon.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/epgmerge/internal/api/middleware"
	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/log"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the HTTP API server.
type Server struct {
	deps    Deps
	cfg     config.APIConfig
	handler http.Handler
	logger  zerolog.Logger
}

// New builds the server and its routes.
func New(deps Deps, cfg config.APIConfig) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        "epgmerge-api",
		EnableLogging:         true,
		RateLimitPerMinute:    s.cfg.RateLimit,
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.TriggerRateLimit())
			r.Post("/update", s.handleUpdate)
			r.Post("/update/stop", s.handleStop)
			r.Post("/timerpass", s.handleTimerPass)
			r.Post("/housekeeping", s.handleHousekeeping)
		})

		r.Post("/reconcile", s.handleReconcile)

		r.Get("/sources", s.handleListSources)
		r.Get("/sources/order", s.handleSourceOrder)
		r.Post("/sources/reorder", s.handleReorder)
		r.Get("/sources/{name}", s.handleGetSource)
		r.Put("/sources/{name}", s.handleUpdateSource)
		r.Get("/sources/{name}/log", s.handleSourceLog)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info().
		Str(log.FieldEvent, "api.listening").
		Str("addr", ln.Addr().String()).
		Msg("http api listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
