// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/persistence/sqlite"
)

// holdWriteLock opens a second pool on path and keeps a write transaction
// open until the test ends.
func holdWriteLock(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, path, sqlite.Config{BusyTimeout: time.Millisecond, MaxOpenConns: 1})
	require.NoError(t, err)
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		_ = conn.Close()
		_ = db.Close()
	})
}

// busyError returns a real SQLITE_BUSY error from the driver.
func busyError(t *testing.T, path string) error {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, path, sqlite.Config{BusyTimeout: time.Millisecond, MaxOpenConns: 1})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.Error(t, err)
	require.True(t, sqlite.IsBusy(err), "want SQLITE_BUSY, got %v", err)
	return err
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestStore_WriterContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	ctx := context.Background()
	s, err := Open(ctx, path, Options{BusyTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Insert(ctx, event("tvm", "C1", base, time.Hour, "News")))

	holdWriteLock(t, path)

	// WAL readers never wait for the writer.
	got, ok, err := s.Lookup(ctx, "C1", NaturalKey(base, ""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "News", got.Title)
	_, ok, err = s.LookupAt(ctx, "C1", base)
	require.NoError(t, err)
	assert.True(t, ok)

	began := time.Now()
	err = s.Insert(ctx, event("tvm", "C2", base, time.Hour, "Late"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.True(t, sqlite.IsBusy(err))
	assert.Less(t, time.Since(began), 2*time.Second, "insert must give up after the busy timeout")

	err = s.Update(ctx, got)
	assert.ErrorIs(t, err, ErrStore)
}

func TestLookup_BusyIsMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	s, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	holdWriteLock(t, path)
	busy := busyError(t, path)

	ev, ok, err := s.lookupRow(errRow{busy})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Event{}, ev)

	_, ok, err = s.lookupRow(errRow{sql.ErrNoRows})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.lookupRow(errRow{sql.ErrConnDone})
	assert.ErrorIs(t, err, ErrStore)
}
