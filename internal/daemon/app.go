// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the EPG components together and owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/epgmerge/internal/api"
	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/executor"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/housekeeping"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/scheduler"
	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/ManuGH/epgmerge/internal/svdrp"
	"github.com/ManuGH/epgmerge/internal/telemetry"
)

const (
	shutdownTimeout   = 30 * time.Second
	metricsReadHeader = 5 * time.Second
)

// App owns the long-lived runtime: watchers, reload wiring, the daily
// scheduler, housekeeping and the network servers.
type App struct {
	logger   zerolog.Logger
	holder   *config.ConfigHolder
	store    *store.Store
	registry *source.Registry
	exec     *executor.Executor
	updater  *updater
	sched    *scheduler.Scheduler
	keeper   *housekeeping.Keeper
	api      *api.Server
	svdrp    *svdrp.Server
	health   *health.Manager
	provider *telemetry.Provider

	cancelBase   context.CancelFunc
	reloadSignal os.Signal
}

// Run starts all owned subsystems and blocks until ctx is cancelled or one
// of the servers fails. An active update is cancelled before Run returns.
func (a *App) Run(ctx context.Context) error {
	if a.exec == nil {
		return ErrMissingExecutor
	}
	if a.store == nil {
		return ErrMissingStore
	}
	defer a.release()

	cfg := a.holder.Get()
	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if it cannot be started.
	g.Go(func() error {
		if err := a.holder.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		return nil
	})

	applyCh := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-applyCh:
				a.apply(next)
			}
		}
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(xglog.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.holder.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		if err := a.registry.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "sources.watcher_start_failed").Msg("failed to start sources watcher")
		}
		return nil
	})

	g.Go(func() error { return a.sched.Run(ctx) })
	g.Go(func() error { return a.keeper.Run(ctx) })

	if addr := cfg.API.ListenAddr; addr != "" {
		g.Go(func() error {
			if err := a.api.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("API server: %w", err)
			}
			return nil
		})
	}
	if addr := cfg.SVDRP.ListenAddr; addr != "" {
		g.Go(func() error { return a.svdrp.ListenAndServe(ctx, addr) })
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		g.Go(func() error { return a.serveMetrics(ctx, cfg.Metrics.ListenAddr) })
	}

	a.logger.Info().
		Str(xglog.FieldEvent, "daemon.started").
		Str("api", cfg.API.ListenAddr).
		Str("svdrp", cfg.SVDRP.ListenAddr).
		Int("sources", a.registry.Len()).
		Time("next_run", a.sched.NextRun()).
		Msg("epgmerge running")

	err := g.Wait()
	if err != nil {
		a.logger.Error().Err(err).Msg("server error, initiating shutdown")
	} else {
		a.logger.Info().Msg("shutdown signal received")
	}
	return err
}

// apply pushes the hot-reloadable settings into the running components.
func (a *App) apply(cfg config.AppConfig) {
	a.exec.SetImportAll(cfg.ImportAll)
	a.sched.SetExecTime(cfg.Schedule.ExecTime)
	a.sched.SetWakeUp(cfg.Schedule.WakeUp)
	a.logger.Debug().
		Bool("import_all", cfg.ImportAll).
		Int("exec_time", cfg.Schedule.ExecTime).
		Msg("applied reloaded configuration")
}

// release stops the executor, waits for follow-up passes and closes what
// Bootstrap opened.
func (a *App) release() {
	if a.exec.IsActive() {
		a.logger.Info().Msg("cancelling active epg update")
	}
	a.exec.Stop()
	a.cancelBase()
	a.updater.wait()

	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing epg store failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// serveMetrics serves the Prometheus registry until ctx is cancelled.
func (a *App) serveMetrics(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: metricsReadHeader,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		a.logger.Error().Err(err).Str(xglog.FieldEvent, "metrics.server.failed").Msg("metrics server failed")
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Health exposes the health manager for callers that probe readiness.
func (a *App) Health() *health.Manager { return a.health }
