// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reconcile merges imported listing data into broadcast events.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/eplists"
	"github.com/ManuGH/epgmerge/internal/host"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/ManuGH/epgmerge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store is the part of the event store reconciliation reads and writes.
type Store interface {
	Lookup(ctx context.Context, channel string, key int64) (store.Event, bool, error)
	LookupAt(ctx context.Context, channel string, start time.Time) (store.Event, bool, error)
	Insert(ctx context.Context, ev store.Event) error
	Update(ctx context.Context, ev store.Event) error
}

// Handle is a short-lived store connection owned by one pass.
type Handle interface {
	Store
	ChannelEvents(ctx context.Context, channel string, from time.Time) ([]store.Event, error)
	Put(ctx context.Context, ev store.Event) (store.PutResult, error)
	Close() error
}

// Opener opens a Handle for one pass.
type Opener func(ctx context.Context) (Handle, error)

// StoreOpener opens the SQLite store at path for every pass.
func StoreOpener(path string, opts store.Options) Opener {
	return func(ctx context.Context) (Handle, error) {
		st, err := store.Open(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// Episodes resolves season/episode numbers from the user's lists.
type Episodes interface {
	Lookup(title, shortText string) (eplists.Episode, bool)
}

// ConfigSource yields the current configuration.
type ConfigSource interface {
	Get() config.AppConfig
}

// Decision is the outcome of one reconciliation.
type Decision string

const (
	DecisionIneligible Decision = "ineligible"
	DecisionCreated    Decision = "created"
	DecisionUpdated    Decision = "updated"
	DecisionUnchanged  Decision = "unchanged"
	DecisionStoreError Decision = "store_error"
)

// importAllFlags apply to unmapped channels reconciled under import-all.
var importAllFlags = []string{config.FlagSeason}

// Engine reconciles broadcast events against the event store.
type Engine struct {
	store    Store
	cfg      ConfigSource
	episodes Episodes
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewEngine builds an engine. episodes may be nil.
func NewEngine(st Store, cfg ConfigSource, episodes Episodes) *Engine {
	return &Engine{
		store:    st,
		cfg:      cfg,
		episodes: episodes,
		logger:   xglog.WithComponent("reconcile"),
		tracer:   telemetry.Tracer("epgmerge/reconcile"),
	}
}

// Handle merges imported data into ev. It always returns false: the host
// keeps ownership of where the event ends up.
func (e *Engine) Handle(ctx context.Context, ev *host.Event) bool {
	if ev == nil {
		return false
	}
	ctx, span := e.tracer.Start(ctx, "reconcile.handle",
		trace.WithAttributes(telemetry.EventAttributes(ev.ChannelID, store.NaturalKey(ev.Start, ""))...))
	defer span.End()

	d := e.Reconcile(ctx, ev)
	metrics.IncReconcileDecision(string(d))
	span.SetAttributes(attribute.String(telemetry.ReconcileDecisionKey, string(d)))
	return false
}

// Reconcile is Handle with the decision exposed.
func (e *Engine) Reconcile(ctx context.Context, ev *host.Event) Decision {
	if ev == nil {
		return DecisionIneligible
	}
	cfg := e.cfg.Get()
	flags, ok := eligible(cfg, ev)
	if !ok {
		return DecisionIneligible
	}
	m, _ := cfg.Mapping(ev.ChannelID)

	logger := e.logger.With().
		Str(xglog.FieldChannel, ev.ChannelID).
		Uint32(xglog.FieldEventID, ev.ID).
		Logger()

	imp, created, err := lookupOrCreate(ctx, e.store, ev, m.Priority)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "reconcile.store_error").Msg("skipping merge")
		return DecisionStoreError
	}
	if created {
		logger.Debug().Str(xglog.FieldEvent, "reconcile.created").Msg("stored broadcast event as fallback")
		return DecisionCreated
	}
	if !needsUpdate(imp, ev) {
		return DecisionUnchanged
	}

	mr := merge(imp, ev, flags, cfg.TextMappings, e.episodes)
	imp.EITEventID = &ev.ID
	if imp.Description == "" && ev.Description != "" {
		imp.Description = ev.Description
	}
	if err := e.store.Update(ctx, imp); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "reconcile.store_error").Msg("skipping merge")
		return DecisionStoreError
	}
	mr.apply(ev)

	logger.Debug().
		Str(xglog.FieldEvent, "reconcile.updated").
		Str(xglog.FieldSource, imp.Source).
		Msg("merged imported data")
	return DecisionUpdated
}

// eligible returns the flags to apply to ev, or false when ev must be left alone.
func eligible(cfg config.AppConfig, ev *host.Event) ([]string, bool) {
	m, mapped := cfg.Mapping(ev.ChannelID)
	if mapped {
		return m.Flags, m.Enabled
	}
	if cfg.ImportAll && ev.HasTimer && ev.ShortText != "" {
		return importAllFlags, true
	}
	return nil, false
}

// lookupOrCreate finds the imported event for ev, or stores ev itself under
// the EIT pseudo source. maxPriority > 0 ignores rows of sources ranked at or
// below it.
func lookupOrCreate(ctx context.Context, st Store, ev *host.Event, maxPriority int) (store.Event, bool, error) {
	key := store.NaturalKey(ev.Start, "")
	imp, ok, err := st.Lookup(ctx, ev.ChannelID, key)
	if err != nil {
		return store.Event{}, false, err
	}
	if !ok {
		imp, ok, err = st.LookupAt(ctx, ev.ChannelID, ev.Start)
		if err != nil {
			return store.Event{}, false, err
		}
	}
	if ok && (maxPriority <= 0 || imp.Priority < maxPriority || imp.Source == store.EITSource) {
		return imp, false, nil
	}

	id := ev.ID
	fallback := store.Event{
		Source:      store.EITSource,
		ChannelID:   ev.ChannelID,
		Key:         key,
		Start:       ev.Start,
		Duration:    ev.Duration,
		Title:       ev.Title,
		ShortText:   ev.ShortText,
		Description: ev.Description,
		EITEventID:  &id,
	}
	err = st.Insert(ctx, fallback)
	if errors.Is(err, store.ErrDuplicateKey) {
		return fallback, false, nil
	}
	if err != nil {
		return store.Event{}, false, err
	}
	return fallback, true, nil
}

// needsUpdate applies the update policy in priority order.
func needsUpdate(imp store.Event, ev *host.Event) bool {
	if !imp.Merged() {
		return true
	}
	if imp.Description == "" && ev.Description != "" {
		return true
	}
	if imp.Description != "" && ev.Description != "" &&
		!strings.EqualFold(imp.Description, ev.Description) && !ev.Processed {
		return true
	}
	return false
}
