// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/executor"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/reconcile"
	"github.com/ManuGH/epgmerge/internal/store"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.DataDir = filepath.Join(root, "data")
	cfg.SourcesDir = filepath.Join(root, "sources")
	cfg.StateDir = filepath.Join(root, "state")
	cfg.EPGFile = filepath.Join(root, "data", "epg.db")
	cfg.EPListsDir = filepath.Join(root, "eplists")
	cfg.API.ListenAddr = ""
	cfg.SVDRP.ListenAddr = ""
	cfg.Schedule.UpStart = false
	for _, dir := range []string{cfg.DataDir, cfg.SourcesDir, cfg.StateDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return cfg
}

func bootstrap(t *testing.T, cfg config.AppConfig) *App {
	t.Helper()
	holder := config.NewConfigHolder(cfg, config.NewLoader("", cfg.Version), "")
	app, err := Bootstrap(context.Background(), holder)
	require.NoError(t, err)
	app.reloadSignal = nil
	return app
}

func TestBootstrap_RequiresConfig(t *testing.T) {
	_, err := Bootstrap(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestBootstrap_SyncsSourceOrder(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourcesDir, "beta"), []byte("file\n14\nard.de\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourcesDir, "alpha"), []byte("pipe\n7\nard.de\n"), 0o644))

	app := bootstrap(t, cfg)
	t.Cleanup(app.release)

	assert.Equal(t, []string{"alpha", "beta"}, app.registry.Names())
	ranks, err := app.store.SourceOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []store.SourceRank{{Name: "alpha", Priority: 0}, {Name: "beta", Priority: 1}}, ranks)

	// A persisted order wins over discovery order on the next sync.
	require.NoError(t, app.store.Reindex(context.Background(), 1, 0))
	require.NoError(t, syncOrder(context.Background(), app.store, app.registry, nil))
	assert.Equal(t, []string{"beta", "alpha"}, app.registry.Names())
}

func TestBootstrap_HealthChecks(t *testing.T) {
	app := bootstrap(t, testConfig(t))
	t.Cleanup(app.release)

	resp := app.Health().Health(context.Background(), true)
	require.Contains(t, resp.Checks, "epg_store")
	assert.NotEqual(t, health.StatusUnhealthy, resp.Checks["epg_store"].Status)
	assert.Equal(t, health.StatusDegraded, resp.Checks["sources"].Status)
	assert.Equal(t, health.StatusDegraded, resp.Checks["last_update"].Status)
}

func TestApp_RunReloadAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.SVDRP.ListenAddr = "127.0.0.1:0"
	app := bootstrap(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.svdrp.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	next := cfg
	next.Schedule.ExecTime = 430
	next.ImportAll = true
	app.apply(next)
	require.Eventually(t, func() bool {
		at := app.sched.NextRun()
		return at.Hour() == 4 && at.Minute() == 30
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_RunRejectsIncompleteApp(t *testing.T) {
	assert.ErrorIs(t, (&App{}).Run(context.Background()), ErrMissingExecutor)
}

type fakeRun struct {
	started bool
	report  executor.Report
}

func (f *fakeRun) Start() bool                         { return f.started }
func (f *fakeRun) Stop()                               {}
func (f *fakeRun) IsActive() bool                      { return false }
func (f *fakeRun) LastReport() (executor.Report, bool) { return f.report, true }
func (f *fakeRun) Wait(context.Context) error          { return nil }

type countingPass struct {
	runs atomic.Int32
	err  error
}

func (p *countingPass) Run(context.Context) (reconcile.TimerPassResult, error) {
	p.runs.Add(1)
	return reconcile.TimerPassResult{Timers: 1}, p.err
}

func TestUpdater_TimerPassFollowsSuccessfulRun(t *testing.T) {
	tests := []struct {
		name    string
		started bool
		success bool
		passErr error
		want    int32
	}{
		{"success", true, true, nil, 1},
		{"pass error is logged", true, true, errors.New("receiver down"), 1},
		{"failed run", true, false, nil, 0},
		{"already running", false, true, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass := &countingPass{err: tt.passErr}
			run := &fakeRun{started: tt.started, report: executor.Report{Success: tt.success}}
			u := newUpdater(context.Background(), run, pass)

			assert.Equal(t, tt.started, u.Start())
			u.wait()
			assert.Equal(t, tt.want, pass.runs.Load())
		})
	}
}

func TestUpdater_NoPassConfigured(t *testing.T) {
	u := newUpdater(context.Background(), &fakeRun{started: true, report: executor.Report{Success: true}}, nil)
	assert.True(t, u.Start())
	u.wait()
}

func TestSoftRetries(t *testing.T) {
	assert.Equal(t, executor.NoSoftRetries, softRetries(0))
	assert.Equal(t, 1, softRetries(1))
	assert.Equal(t, 2, softRetries(2))
}
