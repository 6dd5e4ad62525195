// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/store"
)

var importNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const listing = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <programme start="20250301201500 +0000" stop="20250301214500 +0000" channel="ard.de">
    <title>Tatort</title>
    <sub-title>Das Opfer</sub-title>
    <desc>Kommissare ermitteln.</desc>
    <credits><actor>A One</actor><actor>B Two</actor></credits>
    <episode-num system="onscreen">S01E12</episode-num>
  </programme>
  <programme start="20250301214500 +0000" channel="ard.de">
    <title>Tagesthemen</title>
  </programme>
  <programme start="20250301221500 +0000" stop="20250301230000 +0000" channel="ard.de">
    <title>Spielfilm</title>
    <desc>Drama, USA 1994. Regie: Robert Zemeckis.</desc>
  </programme>
  <programme start="20250301080000 +0000" stop="20250301090000 +0000" channel="ard.de">
    <title>Already over</title>
  </programme>
  <programme start="20250301201500 +0000" stop="20250301220000 +0000" channel="zdf.de">
    <title>Not selected</title>
  </programme>
  <programme start="20250320201500 +0000" stop="20250320220000 +0000" channel="ard.de">
    <title>Too far ahead</title>
  </programme>
</tv>`

func newSource(t *testing.T) *source.Source {
	t.Helper()
	root := t.TempDir()
	sources, state := filepath.Join(root, "sources"), filepath.Join(root, "state")
	require.NoError(t, os.MkdirAll(sources, 0o755))
	require.NoError(t, os.MkdirAll(state, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sources, "tvm"), []byte("pipe\n7\nard.de\nzdf.de\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(state, "tvm"), []byte("#no pin\n3\nard.de\n"), 0o600))
	src, err := source.Load("tvm", sources, state, 0)
	require.NoError(t, err)
	return src
}

func newImporter(t *testing.T) (*Importer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epg.db")
	im := NewImporter(StoreOpener(path, store.Options{}), 0)
	im.now = func() time.Time { return importNow }
	return im, path
}

func TestImporter_Import(t *testing.T) {
	im, path := newImporter(t)
	src := newSource(t)

	stats, err := im.Import(context.Background(), src, []byte(listing))
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Programmes)
	assert.Equal(t, 3, stats.Inserted)
	assert.Equal(t, 3, stats.Skipped, "unselected channel, beyond horizon, already ended")

	st, err := store.Open(context.Background(), path, store.Options{})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	start := time.Date(2025, 3, 1, 20, 15, 0, 0, time.UTC)
	ev, ok, err := st.LookupAt(context.Background(), "ard.de", start)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tvm", ev.Source)
	assert.Equal(t, "Das Opfer", ev.ShortText)
	assert.Equal(t, 90*time.Minute, ev.Duration)
	assert.Equal(t, "1", ev.Extras[store.ExtraSeason])
	assert.Equal(t, "12", ev.Extras[store.ExtraEpisode])
	assert.Equal(t, "A One, B Two", ev.Extras["actor"])

	news, ok, err := st.LookupAt(context.Background(), "ard.de", start.Add(90*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, news.Duration, "open programme closes at the next start")

	film, ok, err := st.LookupAt(context.Background(), "ard.de", start.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1994", film.Extras[store.ExtraDate])
	assert.Equal(t, "USA", film.Extras[store.ExtraCountry])
	assert.Equal(t, "Robert Zemeckis", film.Extras["director"])
}

func TestImporter_ReimportIsIdempotent(t *testing.T) {
	im, _ := newImporter(t)
	src := newSource(t)

	_, err := im.Import(context.Background(), src, []byte(listing))
	require.NoError(t, err)

	stats, err := im.Import(context.Background(), src, []byte(listing))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 3, stats.Unchanged)
}

func TestImporter_ProcessCodes(t *testing.T) {
	im, _ := newImporter(t)
	src := newSource(t)

	assert.Equal(t, ResultOK, im.Process(context.Background(), src, []byte(listing)))
	assert.Equal(t, ResultOK, im.Process(context.Background(), src, []byte(`<tv></tv>`)))
	assert.Equal(t, ResultDecode, im.Process(context.Background(), src, []byte(`<tv><programme>`)))
	assert.Contains(t, src.Log().String(), "import failed")
}

type brokenWriter struct{}

func (brokenWriter) Put(context.Context, store.Event) (store.PutResult, error) {
	return store.PutUnchanged, errors.New("disk full")
}

func (brokenWriter) Close() error { return nil }

func TestImporter_StoreFailure(t *testing.T) {
	im := NewImporter(func(context.Context) (Writer, error) { return brokenWriter{}, nil }, 0)
	im.now = func() time.Time { return importNow }

	assert.Equal(t, ResultStore, im.Process(context.Background(), newSource(t), []byte(listing)))
}

func TestImporter_NothingToStoreSkipsOpen(t *testing.T) {
	opened := false
	im := NewImporter(func(context.Context) (Writer, error) {
		opened = true
		return brokenWriter{}, nil
	}, 0)
	im.now = func() time.Time { return importNow }

	stats, err := im.Import(context.Background(), newSource(t), []byte(`<tv/>`))
	require.NoError(t, err)
	assert.Zero(t, stats.Programmes)
	assert.False(t, opened)
}
