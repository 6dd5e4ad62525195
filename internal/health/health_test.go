// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
	assert.True(t, resp.Ready)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready, "degraded is still ready")

	m.RegisterChecker(&mockChecker{name: "unhealthy", status: StatusUnhealthy})
	m.RegisterChecker(&mockChecker{name: "late", status: StatusDegraded})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady_StatusCode(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "store", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Contains(t, body.Checks, "store")
}

func TestServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "store", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "epg.db")
	empty := filepath.Join(dir, "empty.db")
	require.NoError(t, os.WriteFile(full, []byte("SQLite format 3\x00"), 0o600))
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name string
		path string
		want Status
	}{
		{"unset", "", StatusHealthy},
		{"missing", filepath.Join(dir, "nope.db"), StatusDegraded},
		{"directory", dir, StatusUnhealthy},
		{"empty", empty, StatusDegraded},
		{"present", full, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFileChecker("epg_store", tt.path).Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestLastRunChecker(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		err  string
		want Status
	}{
		{"never", time.Time{}, "", StatusDegraded},
		{"failed", time.Now(), "source tvm: hard failure", StatusDegraded},
		{"stale", time.Now().Add(-48 * time.Hour), "", StatusDegraded},
		{"fresh", time.Now().Add(-time.Hour), "", StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLastRunChecker(func() (time.Time, string) { return tt.at, tt.err })
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestSourcesChecker(t *testing.T) {
	check := func(total, ready int) Status {
		return NewSourcesChecker(func() (int, int) { return total, ready }).Check(context.Background()).Status
	}
	assert.Equal(t, StatusDegraded, check(0, 0))
	assert.Equal(t, StatusUnhealthy, check(2, 0))
	assert.Equal(t, StatusDegraded, check(2, 1))
	assert.Equal(t, StatusHealthy, check(2, 2))
}

func TestPerformStartupChecks(t *testing.T) {
	root := t.TempDir()
	cfg := config.AppConfig{
		DataDir:    filepath.Join(root, "data"),
		StateDir:   filepath.Join(root, "state"),
		SourcesDir: filepath.Join(root, "sources"),
		EPGFile:    filepath.Join(root, "data", "epg.db"),
	}
	cfg.API.ListenAddr = "127.0.0.1:8080"
	cfg.SVDRP.ListenAddr = ":6419"
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, cfg.StateDir)

	bad := cfg
	bad.API.ListenAddr = "localhost"
	require.Error(t, PerformStartupChecks(context.Background(), bad))

	bad = cfg
	bad.OpenWebIF.BaseURL = "ftp://receiver"
	require.Error(t, PerformStartupChecks(context.Background(), bad))
}
