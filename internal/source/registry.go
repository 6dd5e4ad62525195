// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchDebounce collapses bursts of directory events into one rescan.
const WatchDebounce = 500 * time.Millisecond

// Registry owns the ordered set of sources. Structural changes take the
// write lock; the executor iterates a Snapshot taken under the read lock.
type Registry struct {
	sourcesDir string
	stateDir   string
	ringSize   int
	logger     zerolog.Logger

	mu      sync.RWMutex
	sources []*Source

	onChange func(added, removed []string)
}

// NewRegistry creates an empty registry over the given directories.
func NewRegistry(sourcesDir, stateDir string, ringSize int) *Registry {
	return &Registry{
		sourcesDir: sourcesDir,
		stateDir:   stateDir,
		ringSize:   ringSize,
		logger:     xglog.WithComponent("sources"),
	}
}

// OnChange registers a callback invoked after Discover changed the set.
func (r *Registry) OnChange(fn func(added, removed []string)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Discover scans the sources directory, adding new definitions, reloading
// changed ones and dropping those whose file disappeared. New sources are
// appended in name order so existing priorities are kept.
func (r *Registry) Discover(ctx context.Context) (added, removed []string, err error) {
	entries, err := os.ReadDir(r.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return nil, nil, fmt.Errorf("read sources dir: %w", err)
		}
	}

	present := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ok, err := IsDefinition(r.sourcesDir, e.Name())
		if err != nil {
			r.logger.Error().Err(err).Str(xglog.FieldSource, e.Name()).Msg("cannot access config file")
			continue
		}
		if !ok {
			if !e.IsDir() && filepath.Ext(e.Name()) == "" {
				r.logger.Debug().Str(xglog.FieldSource, e.Name()).Msg("ignoring non config file")
			}
			continue
		}
		var mod time.Time
		if info, err := e.Info(); err == nil {
			mod = info.ModTime()
		}
		present[e.Name()] = mod
	}

	r.mu.Lock()
	kept := r.sources[:0:0]
	for _, s := range r.sources {
		mod, ok := present[s.Name]
		if !ok {
			removed = append(removed, s.Name)
			r.logger.Info().Str(xglog.FieldSource, s.Name).Msg("epg source removed")
			continue
		}
		delete(present, s.Name)
		if !mod.Equal(s.defModTime) {
			reloaded, lerr := Load(s.Name, r.sourcesDir, r.stateDir, r.ringSize)
			if lerr != nil {
				r.logger.Warn().Err(lerr).Str(xglog.FieldSource, s.Name).Msg("reload of changed definition failed")
			}
			reloaded.lastExec = s.LastExec()
			reloaded.ring = s.ring
			s = reloaded
		}
		kept = append(kept, s)
	}

	names := make([]string, 0, len(present))
	for name := range present {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s, lerr := Load(name, r.sourcesDir, r.stateDir, r.ringSize)
		if lerr != nil {
			r.logger.Warn().Err(lerr).Str(xglog.FieldSource, name).Msg("source added but not ready")
		}
		kept = append(kept, s)
		added = append(added, name)
		r.logger.Info().Str(xglog.FieldSource, name).Msg("epg source added")
	}
	r.sources = kept
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil && (len(added) > 0 || len(removed) > 0) {
		onChange(added, removed)
	}
	return added, removed, nil
}

// Snapshot returns the sources in priority order. The slice is a copy; the
// sources themselves guard their own mutable state.
func (r *Registry) Snapshot() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sources)
}

// Get returns the source with the given name.
func (r *Registry) Get(name string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of known sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Names returns the source names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Name
	}
	return out
}

// Order reorders the registry to follow names. Unknown names are ignored
// and sources not listed keep their relative order at the end.
func (r *Registry) Order(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rank := make(map[string]int, len(names))
	for i, n := range names {
		rank[n] = i
	}
	slices.SortStableFunc(r.sources, func(a, b *Source) int {
		ra, aok := rank[a.Name]
		rb, bok := rank[b.Name]
		switch {
		case aok && bok:
			return ra - rb
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	})
}

// Watch rescans the sources directory whenever it changes, until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if err := os.MkdirAll(r.sourcesDir, 0750); err != nil {
		return fmt.Errorf("create sources dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(r.sourcesDir); err != nil {
		return fmt.Errorf("watch sources dir: %w", err)
	}
	r.logger.Info().
		Str("event", "sources.watcher_started").
		Str(xglog.FieldPath, r.sourcesDir).
		Msg("watching sources directory")

	timer := time.NewTimer(WatchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.logger.Debug().Str("op", ev.Op.String()).Str(xglog.FieldPath, ev.Name).Msg("sources dir changed")
			timer.Reset(WatchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error().Err(err).Str("event", "sources.watcher_error").Msg("sources watcher error")
		case <-timer.C:
			if _, _, err := r.Discover(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("rescan of sources dir failed")
			}
		}
	}
}
