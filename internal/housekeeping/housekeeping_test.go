// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, path string, starts ...time.Time) {
	t.Helper()
	st, err := store.Open(context.Background(), path, store.Options{})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	for _, s := range starts {
		require.NoError(t, st.Insert(context.Background(), store.Event{
			Source: "tvm", ChannelID: "C1", Key: store.NaturalKey(s, ""),
			Start: s, Duration: time.Hour, Title: "x",
		}))
	}
}

func TestRunOnce_MissingStoreIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	k := New(path, store.Options{}, 0, 0)

	n, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "housekeeping must not create the store")
}

func TestRunOnce_EmptyStoreIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	seed(t, path)
	k := New(path, store.Options{}, 0, 0)

	n, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnce_DeletesExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	seed(t, path, now.Add(-3*time.Hour), now.Add(-2*time.Hour), now.Add(-30*time.Minute), now.Add(time.Hour))
	k := New(path, store.Options{}, time.Hour, time.Minute)
	k.now = func() time.Time { return now }

	n, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	st, err := store.Open(context.Background(), path, store.Options{})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	left, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), left)
}

func TestRun_StopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	seed(t, path, now.Add(-3*time.Hour))
	k := New(path, store.Options{}, 10*time.Millisecond, time.Second)
	k.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, err := store.Open(context.Background(), path, store.Options{})
		if err != nil {
			return false
		}
		defer func() { _ = st.Close() }()
		n, err := st.Count(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
