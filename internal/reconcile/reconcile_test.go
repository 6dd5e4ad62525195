// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/eplists"
	"github.com/ManuGH/epgmerge/internal/host"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticConfig struct{ cfg config.AppConfig }

func (s staticConfig) Get() config.AppConfig { return s.cfg }

type episodeMap map[string]eplists.Episode

func (m episodeMap) Lookup(title, shortText string) (eplists.Episode, bool) {
	ep, ok := m[eplists.Fold(title)+"|"+eplists.Fold(shortText)]
	return ep, ok
}

var start = time.Date(2025, 3, 2, 20, 15, 0, 0, time.UTC)

func testConfig(mappings ...config.ChannelMapping) config.AppConfig {
	cfg := config.Defaults()
	cfg.Channels = mappings
	cfg.TextMappings = config.DefaultTextMappings()
	return cfg
}

func openStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epg.db")
	st, err := store.Open(context.Background(), path, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func broadcast(ch string) *host.Event {
	return &host.Event{
		ID:          100,
		ChannelID:   ch,
		Start:       start,
		Duration:    90 * time.Minute,
		Title:       "Tatort",
		Description: "EIT text",
	}
}

func imported(src, ch string) store.Event {
	return store.Event{
		Source:      src,
		ChannelID:   ch,
		Key:         store.NaturalKey(start, ""),
		Start:       start,
		Duration:    90 * time.Minute,
		Title:       "Tatort",
		ShortText:   "Murot und das Murmeltier",
		Description: "Imported text",
		Extras: store.Extras{
			store.ExtraSeason:  "1",
			store.ExtraEpisode: "2",
			"actor":            "Ulrich Tukur, Barbara Philipp",
		},
	}
}

var allFlags = []string{config.FlagShortText, config.FlagLongText, config.FlagSeason, config.FlagCredits}

func TestEligibility(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  config.AppConfig
		ev   func() *host.Event
		want Decision
	}{
		{"unmapped", testConfig(), func() *host.Event { return broadcast("C1") }, DecisionIneligible},
		{"mapped disabled", testConfig(config.ChannelMapping{ChannelID: "C1"}), func() *host.Event { return broadcast("C1") }, DecisionIneligible},
		{"import all without timer", func() config.AppConfig { c := testConfig(); c.ImportAll = true; return c }(),
			func() *host.Event { ev := broadcast("C1"); ev.ShortText = "x"; return ev }, DecisionIneligible},
		{"import all without short text", func() config.AppConfig { c := testConfig(); c.ImportAll = true; return c }(),
			func() *host.Event { ev := broadcast("C1"); ev.HasTimer = true; return ev }, DecisionIneligible},
		{"import all with timer and short text", func() config.AppConfig { c := testConfig(); c.ImportAll = true; return c }(),
			func() *host.Event { ev := broadcast("C1"); ev.HasTimer = true; ev.ShortText = "x"; return ev }, DecisionCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(st, staticConfig{tt.cfg}, nil)
			assert.Equal(t, tt.want, e.Reconcile(ctx, tt.ev()))
		})
	}
	assert.Equal(t, DecisionIneligible, NewEngine(st, staticConfig{testConfig()}, nil).Reconcile(ctx, nil))
}

func TestReconcile_CreatesEITFallback(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()
	e := NewEngine(st, staticConfig{testConfig(config.ChannelMapping{ChannelID: "C1", Enabled: true})}, nil)

	ev := broadcast("C1")
	assert.False(t, e.Handle(ctx, ev))

	got, ok, err := st.Lookup(ctx, "C1", store.NaturalKey(start, ""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.EITSource, got.Source)
	require.NotNil(t, got.EITEventID)
	assert.Equal(t, ev.ID, *got.EITEventID)
	assert.Equal(t, DecisionUnchanged, e.Reconcile(ctx, ev))
}

func TestReconcile_MergesAndIsIdempotent(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, imported("tvm", "C1")))
	e := NewEngine(st, staticConfig{testConfig(config.ChannelMapping{ChannelID: "C1", Enabled: true, Flags: allFlags})}, nil)

	ev := broadcast("C1")
	require.Equal(t, DecisionUpdated, e.Reconcile(ctx, ev))
	assert.Equal(t, "S01E02 Murot und das Murmeltier", ev.ShortText)
	assert.True(t, strings.HasPrefix(ev.Description, "Imported text\n\n"))
	assert.Contains(t, ev.Description, "Season: 1\nEpisode: 2")
	assert.Contains(t, ev.Description, "Actor: Ulrich Tukur, Barbara Philipp")
	assert.True(t, ev.Processed)

	row, _, err := st.Lookup(ctx, "C1", store.NaturalKey(start, ""))
	require.NoError(t, err)
	assert.True(t, row.Touched)
	require.NotNil(t, row.EITEventID)
	assert.Equal(t, uint32(100), *row.EITEventID)

	snapshot := *ev
	assert.Equal(t, DecisionUnchanged, e.Reconcile(ctx, ev))
	if diff := cmp.Diff(snapshot, *ev); diff != "" {
		t.Errorf("second pass wrote again (-first +second):\n%s", diff)
	}
}

func TestReconcile_ImportedDescriptionEmpty(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()
	imp := imported("tvm", "C1")
	imp.Description = ""
	eit := uint32(100)
	imp.EITEventID = &eit
	require.NoError(t, st.Insert(ctx, imp))
	e := NewEngine(st, staticConfig{testConfig(config.ChannelMapping{ChannelID: "C1", Enabled: true, Flags: []string{config.FlagShortText}})}, nil)

	ev := broadcast("C1")
	require.Equal(t, DecisionUpdated, e.Reconcile(ctx, ev))
	assert.Equal(t, "Murot und das Murmeltier", ev.ShortText)
	assert.Equal(t, "EIT text", ev.Description)

	row, _, err := st.Lookup(ctx, "C1", imp.Key)
	require.NoError(t, err)
	assert.Equal(t, "EIT text", row.Description, "broadcast text is kept with the import")
	assert.Equal(t, DecisionUnchanged, e.Reconcile(ctx, ev))
}

func TestReconcile_WriteBackRules(t *testing.T) {
	ctx := context.Background()
	mapping := config.ChannelMapping{ChannelID: "C1", Enabled: true, Flags: []string{config.FlagShortText, config.FlagLongText}}

	t.Run("never empty short text", func(t *testing.T) {
		st, _ := openStore(t)
		imp := imported("tvm", "C1")
		imp.ShortText = ""
		require.NoError(t, st.Insert(ctx, imp))
		ev := broadcast("C1")
		NewEngine(st, staticConfig{testConfig(mapping)}, nil).Handle(ctx, ev)
		assert.Empty(t, ev.ShortText)
		assert.Equal(t, "Imported text", ev.Description)
	})

	t.Run("never short text equal to title", func(t *testing.T) {
		st, _ := openStore(t)
		imp := imported("tvm", "C1")
		imp.ShortText = "TATORT"
		require.NoError(t, st.Insert(ctx, imp))
		ev := broadcast("C1")
		ev.ShortText = "Original"
		NewEngine(st, staticConfig{testConfig(mapping)}, nil).Handle(ctx, ev)
		assert.Equal(t, "Original", ev.ShortText)
	})

	t.Run("keeps description already starting with merged text", func(t *testing.T) {
		st, _ := openStore(t)
		require.NoError(t, st.Insert(ctx, imported("tvm", "C1")))
		ev := broadcast("C1")
		ev.Description = "Imported text, plus the broadcaster's notes"
		NewEngine(st, staticConfig{testConfig(mapping)}, nil).Handle(ctx, ev)
		assert.Equal(t, "Imported text, plus the broadcaster's notes", ev.Description)
		assert.True(t, ev.Processed)
	})
}

func TestReconcile_SeasonFromEpisodeLists(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()
	imp := imported("tvm", "C1")
	imp.Extras = nil
	require.NoError(t, st.Insert(ctx, imp))
	eps := episodeMap{eplists.Fold("Tatort") + "|" + eplists.Fold("Murot und das Murmeltier"): {Season: 7, Episode: 11}}
	e := NewEngine(st, staticConfig{testConfig(config.ChannelMapping{ChannelID: "C1", Enabled: true, Flags: []string{config.FlagShortText, config.FlagSeason}})}, eps)

	ev := broadcast("C1")
	require.Equal(t, DecisionUpdated, e.Reconcile(ctx, ev))
	assert.Equal(t, "S07E11 Murot und das Murmeltier", ev.ShortText)
	assert.Contains(t, ev.Description, "Season: 7")
}

func TestReconcile_PriorityLimitFallsBackToEIT(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()
	_, err := st.EnsureSource(ctx, "first")
	require.NoError(t, err)
	require.NoError(t, st.Insert(ctx, imported("second", "C1")))
	e := NewEngine(st, staticConfig{testConfig(config.ChannelMapping{ChannelID: "C1", Enabled: true, Flags: allFlags, Priority: 1})}, nil)

	assert.Equal(t, DecisionCreated, e.Reconcile(ctx, broadcast("C1")))
}

type failingStore struct{ Store }

func (failingStore) Lookup(context.Context, string, int64) (store.Event, bool, error) {
	return store.Event{}, false, store.ErrStore
}

func TestReconcile_StoreErrorLeavesEventAlone(t *testing.T) {
	e := NewEngine(failingStore{}, staticConfig{testConfig(config.ChannelMapping{ChannelID: "C1", Enabled: true, Flags: allFlags})}, nil)
	ev := broadcast("C1")
	before := *ev
	assert.Equal(t, DecisionStoreError, e.Reconcile(context.Background(), ev))
	assert.Equal(t, before, *ev)
	assert.False(t, e.Handle(context.Background(), ev))
}

func TestTimerPass_Backfills(t *testing.T) {
	st, path := openStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, imported("tvm", "C1")))

	withText := broadcast("C2")
	withText.ShortText = "set"
	timers := host.NewStaticTimers(
		host.Timer{ID: "1", ChannelID: "C1", Event: broadcast("C1")},
		host.Timer{ID: "2", ChannelID: "C2", Event: withText},
		host.Timer{ID: "3", ChannelID: "C3", Event: broadcast("C3")},
		host.Timer{ID: "4", ChannelID: "C4"},
	)
	p := NewTimerPass(timers, StoreOpener(path, store.Options{}), staticConfig{testConfig()}, nil)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Timers)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Backfilled)
	assert.Zero(t, res.Errors)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "S01E02 Murot und das Murmeltier", res.Events[0].ShortText)
	assert.True(t, res.Events[0].Processed)

	// The host sees the merged event on its next listing.
	after, err := timers.Timers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S01E02 Murot und das Murmeltier", after[0].Event.ShortText)
	assert.Equal(t, "set", after[1].Event.ShortText)
	assert.Empty(t, after[2].Event.ShortText)

	row, ok, err := st.Lookup(ctx, "C1", store.NaturalKey(start, ""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Touched)
	require.NotNil(t, row.EITEventID)
	assert.Equal(t, uint32(100), *row.EITEventID)
}

// copyTimers hands out freshly built events on every call and accepts no
// write-back.
type copyTimers struct{ build func() []host.Timer }

func (c copyTimers) Timers(context.Context) ([]host.Timer, error) { return c.build(), nil }

func TestTimerPass_BackfillPersistsWithoutWriteBack(t *testing.T) {
	st, path := openStore(t)
	ctx := context.Background()
	imp := imported("tvm", "C1")
	imp.Extras = nil
	require.NoError(t, st.Insert(ctx, imp))
	eps := episodeMap{eplists.Fold("Tatort") + "|" + eplists.Fold("Murot und das Murmeltier"): {Season: 7, Episode: 11, Overall: 42}}

	src := copyTimers{build: func() []host.Timer {
		return []host.Timer{{ID: "1", ChannelID: "C1", Event: broadcast("C1")}}
	}}
	p := NewTimerPass(src, StoreOpener(path, store.Options{}), staticConfig{testConfig()}, eps)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Backfilled)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "S07E11 Murot und das Murmeltier", res.Events[0].ShortText)

	row, ok, err := st.Lookup(ctx, "C1", store.NaturalKey(start, ""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Touched)
	assert.Equal(t, "Murot und das Murmeltier", row.ShortText)
	assert.Equal(t, "7", row.Extras[store.ExtraSeason])
	assert.Equal(t, "11", row.Extras[store.ExtraEpisode])
	assert.Equal(t, "42", row.Extras[store.ExtraEpisodeOverall])
}

type blockingTimers struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTimers) Timers(context.Context) ([]host.Timer, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return nil, nil
}

func TestTimerPass_SingleFlight(t *testing.T) {
	bt := &blockingTimers{entered: make(chan struct{}), release: make(chan struct{})}
	p := NewTimerPass(bt, func(context.Context) (Handle, error) { return nil, errors.New("unused") }, staticConfig{testConfig()}, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = p.Run(context.Background()) }()
	<-bt.entered
	go func() { defer wg.Done(); _, _ = p.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(bt.release)
	wg.Wait()

	assert.Equal(t, int32(1), bt.calls.Load())
}

func TestEnricher(t *testing.T) {
	st, path := openStore(t)
	ctx := context.Background()
	imp := imported("tvm", "C1")
	imp.Extras = nil
	eit := uint32(5)
	imp.EITEventID = &eit
	require.NoError(t, st.Insert(ctx, imp))
	other := imported("tvm", "C9")
	other.Extras = nil
	require.NoError(t, st.Insert(ctx, other))

	eps := episodeMap{eplists.Fold("Tatort") + "|" + eplists.Fold("Murot und das Murmeltier"): {Season: 3, Episode: 4, Overall: 40}}
	en := NewEnricher(host.NewStaticTimers(host.Timer{ID: "1", ChannelID: "C1"}), StoreOpener(path, store.Options{}), eps)
	en.now = func() time.Time { return start }
	require.NoError(t, en.Enrich(ctx))

	row, _, err := st.Lookup(ctx, "C1", imp.Key)
	require.NoError(t, err)
	assert.Equal(t, store.Extras{store.ExtraSeason: "3", store.ExtraEpisode: "4", store.ExtraEpisodeOverall: "40"}, row.Extras)
	assert.Nil(t, row.EITEventID, "enriched rows are merged again")

	untouched, _, err := st.Lookup(ctx, "C9", other.Key)
	require.NoError(t, err)
	assert.Empty(t, untouched.Extras)
}
