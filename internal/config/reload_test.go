// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigHolder_ReloadNotifiesListeners(t *testing.T) {
	path := writeConfig(t, "schedule:\n  execTime: 100\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewConfigHolder(initial, loader, path)
	ch := make(chan AppConfig, 1)
	holder.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  execTime: 300\n"), 0o600))
	require.NoError(t, holder.Reload(context.Background()))

	assert.Equal(t, 300, holder.Get().Schedule.ExecTime)
	select {
	case got := <-ch:
		assert.Equal(t, 300, got.Schedule.ExecTime)
	default:
		t.Fatal("listener not notified")
	}
}

func TestConfigHolder_InvalidReloadKeepsOld(t *testing.T) {
	path := writeConfig(t, "schedule:\n  execTime: 100\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := NewConfigHolder(initial, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  execTime: 9999\n"), 0o600))
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, 100, holder.Get().Schedule.ExecTime)
}

func TestConfigHolder_WatchPicksUpChanges(t *testing.T) {
	path := writeConfig(t, "schedule:\n  execTime: 100\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := NewConfigHolder(initial, loader, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- holder.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  execTime: 445\n"), 0o600))

	assert.Eventually(t, func() bool {
		return holder.Get().Schedule.ExecTime == 445
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConfigHolder_WatchWithoutFile(t *testing.T) {
	holder := NewConfigHolder(Defaults(), NewLoader("", ""), "")
	assert.NoError(t, holder.Watch(context.Background()))
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.ImportAll = true
	cfg.Channels = []ChannelMapping{{ChannelID: "S19.2E-1-1-1", Enabled: true, Flags: []string{FlagLongText}}}

	require.NoError(t, WriteFile(path, cfg))

	loaded, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.True(t, loaded.ImportAll)
	require.Len(t, loaded.Channels, 1)
	assert.Equal(t, "S19.2E-1-1-1", loaded.Channels[0].ChannelID)
	assert.True(t, loaded.Channels[0].Has(FlagLongText))
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.OpenWebIF.Password = "secret"
	assert.Equal(t, "***", Redacted(cfg).OpenWebIF.Password)
	assert.Equal(t, "secret", cfg.OpenWebIF.Password)
	assert.Empty(t, Redacted(Defaults()).OpenWebIF.Password)
}
