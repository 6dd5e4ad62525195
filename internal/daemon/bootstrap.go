// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/ManuGH/epgmerge/internal/api"
	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/epg"
	"github.com/ManuGH/epgmerge/internal/eplists"
	"github.com/ManuGH/epgmerge/internal/executor"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/host"
	"github.com/ManuGH/epgmerge/internal/housekeeping"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/openwebif"
	"github.com/ManuGH/epgmerge/internal/reconcile"
	"github.com/ManuGH/epgmerge/internal/runner"
	"github.com/ManuGH/epgmerge/internal/scheduler"
	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/ManuGH/epgmerge/internal/svdrp"
	"github.com/ManuGH/epgmerge/internal/telemetry"
)

const orderSyncTimeout = 10 * time.Second

// Bootstrap builds every component from the current configuration. The
// returned App owns the EPG store and the tracer provider; both are released
// when Run returns.
func Bootstrap(ctx context.Context, holder *config.ConfigHolder) (*App, error) {
	if holder == nil {
		return nil, ErrMissingConfig
	}
	cfg := holder.Get()
	logger := xglog.WithComponent("daemon")

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	opts := store.Options{BusyTimeout: cfg.Store.BusyTimeout}
	st, err := store.Open(ctx, cfg.EPGFile, opts)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("open epg store: %w", err)
	}

	registry := source.NewRegistry(cfg.SourcesDir, cfg.StateDir, 0)
	registry.OnChange(func(added, _ []string) {
		syncCtx, cancel := context.WithTimeout(context.Background(), orderSyncTimeout)
		defer cancel()
		if err := syncOrder(syncCtx, st, registry, added); err != nil {
			logger.Error().Err(err).Str(xglog.FieldEvent, "sources.order_sync_failed").Msg("cannot sync source order")
		}
	})
	if _, _, err := registry.Discover(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial scan of sources dir failed")
	}

	episodes := eplists.New(cfg.EPListsDir)

	var (
		timers host.TimerSource = host.NewStaticTimers()
		guide  host.GuideIndex  = host.NopGuide{}
	)
	if cfg.OpenWebIF.BaseURL != "" {
		owi := openwebif.New(cfg.OpenWebIF)
		timers, guide = owi, owi
	}

	storeOpener := reconcile.StoreOpener(cfg.EPGFile, opts)
	exec := executor.New(
		registry,
		runner.New(cfg.Executor.PollInterval, cfg.Executor.KillGrace),
		epg.NewImporter(epg.StoreOpener(cfg.EPGFile, opts), 0),
		reconcile.NewEnricher(timers, storeOpener, episodes),
		guide,
		executor.Options{
			SourcesDir:     cfg.SourcesDir,
			Backoff:        cfg.Executor.Backoff,
			SoftRetries:    softRetries(cfg.Executor.SoftRetries),
			EnrichAttempts: cfg.Executor.EnrichAttempts,
			StopPolicy:     cfg.Executor.StopPolicy,
			ImportAll:      cfg.ImportAll,
		},
	)
	engine := reconcile.NewEngine(st, holder, episodes)
	pass := reconcile.NewTimerPass(timers, storeOpener, holder, episodes)
	keeper := housekeeping.New(cfg.EPGFile, opts, cfg.Housekeeping.Interval, cfg.Housekeeping.Timeout)

	base, cancelBase := context.WithCancel(context.Background())
	upd := newUpdater(base, exec, pass)
	sched := scheduler.New(upd, cfg.Schedule.ExecTime, cfg.Schedule.UpStart)
	sched.SetWakeUp(cfg.Schedule.WakeUp)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewFileChecker("epg_store", cfg.EPGFile))
	hm.RegisterChecker(health.NewLastRunChecker(func() (time.Time, string) {
		return lastRun(exec)
	}))
	hm.RegisterChecker(health.NewSourcesChecker(func() (int, int) {
		return countSources(registry)
	}))

	apiSrv := api.New(api.Deps{
		Executor:    upd,
		Schedule:    sched,
		Sources:     registry,
		Order:       st,
		Reconciler:  engine,
		TimerPass:   pass,
		Housekeeper: keeper,
		Health:      hm,
		Version:     cfg.Version,
	}, cfg.API)

	return &App{
		logger:       logger,
		holder:       holder,
		store:        st,
		registry:     registry,
		exec:         exec,
		updater:      upd,
		sched:        sched,
		keeper:       keeper,
		api:          apiSrv,
		svdrp:        svdrp.NewServer(upd, registry, cfg.SVDRP.RateLimit, cfg.SVDRP.Burst, cfg.Version),
		health:       hm,
		provider:     provider,
		cancelBase:   cancelBase,
		reloadSignal: syscall.SIGHUP,
	}, nil
}

// syncOrder gives newly discovered sources a priority slot and reorders the
// registry to match the persisted order.
func syncOrder(ctx context.Context, st *store.Store, registry *source.Registry, added []string) error {
	for _, name := range added {
		if _, err := st.EnsureSource(ctx, name); err != nil {
			return err
		}
	}
	ranks, err := st.SourceOrder(ctx)
	if err != nil {
		return err
	}
	names := make([]string, len(ranks))
	for i, r := range ranks {
		names[i] = r.Name
	}
	registry.Order(names)
	return nil
}

func lastRun(exec *executor.Executor) (time.Time, string) {
	rep, ok := exec.LastReport()
	if !ok {
		return time.Time{}, ""
	}
	if !rep.Success && !rep.Cancelled {
		for _, r := range rep.Results {
			if r.Error != "" {
				return rep.Finished, fmt.Sprintf("source %s: %s", r.Source, r.Error)
			}
		}
		return rep.Finished, "no source delivered data"
	}
	return rep.Finished, ""
}

func countSources(registry *source.Registry) (total, ready int) {
	for _, s := range registry.Snapshot() {
		total++
		if s.Ready() {
			ready++
		}
	}
	return total, ready
}

// softRetries maps the configured retry count onto executor.Options, where
// zero selects the default rather than disabling retries.
func softRetries(n int) int {
	if n <= 0 {
		return executor.NoSoftRetries
	}
	return n
}
